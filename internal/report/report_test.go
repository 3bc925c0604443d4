package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosurv/domain/core"
	"gosurv/domain/run"
)

func sampleRun() *run.Run {
	return &run.Run{
		ID:          core.RunID("0192-run"),
		CreatedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		DatasetName: "wells.csv",
		Subjects:    100,
		Events:      60,
		Seed:        42,
		Config:      json.RawMessage(`{"folds":2}`),
		Fingerprint: core.Hash("abcdef0123456789"),
		Folds: []run.FoldResult{
			{Fold: 0, TrainSize: 50, TestSize: 50, TestEvents: 30, DesignColumns: 8, Selected: []string{"pump_depth", "x_01"}, LogTransformed: []string{"rate"}, CIndex: 0.71},
			{Fold: 1, TrainSize: 50, TestSize: 50, TestEvents: 30, DesignColumns: 8, Selected: []string{"x_01"}, CIndex: 0.69},
		},
		Summary: run.Summary{Scores: []float64{0.71, 0.69}, Mean: 0.70, StdDev: 0.01},
		Elapsed: 1500 * time.Millisecond,
	}
}

func TestSelectionTable_OrdersByFrequencyThenName(t *testing.T) {
	table := SelectionTable(sampleRun())
	require.Len(t, table, 2)
	assert.Equal(t, FeatureCount{Name: "x_01", Folds: 2}, table[0])
	assert.Equal(t, FeatureCount{Name: "pump_depth", Folds: 1}, table[1])
}

func TestMarkdown(t *testing.T) {
	md := string(Markdown(sampleRun()))

	assert.Contains(t, md, "# Cross-validation run 0192-run")
	assert.Contains(t, md, "wells.csv (100 subjects, 60 events)")
	assert.Contains(t, md, "fingerprint abcdef012345")
	assert.Contains(t, md, "Mean C-index: 0.7000 ± 0.0100")
	assert.Contains(t, md, "| 1 | 50 | 50 | 30 | 8 | 2 | 0 | 0.7100 |")
	assert.Contains(t, md, "| `x_01` | 2/2 |")
	assert.Contains(t, md, "Log-transformed in at least one fold: rate")
	assert.Contains(t, md, `{"folds":2}`)
}

func TestMarkdown_NoSelection(t *testing.T) {
	r := sampleRun()
	for i := range r.Folds {
		r.Folds[i].Selected = nil
	}
	assert.Contains(t, string(Markdown(r)), "No feature was selected.")
}

func TestHTML(t *testing.T) {
	page := string(HTML(sampleRun()))

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<title>Cross-validation run 0192-run</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "<code>pump_depth</code>")
	assert.Contains(t, page, "0.7100")
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	Console(&buf, sampleRun())

	out := buf.String()
	assert.Contains(t, out, "Fold 1 C-index = 0.7100\n")
	assert.Contains(t, out, "Fold 2 C-index = 0.6900\n")
	assert.Contains(t, out, "Mean C-index over 2 folds: 0.7000 ± 0.0100")
	assert.Contains(t, out, "Most selected: x_01 (2), pump_depth (1)")
}
