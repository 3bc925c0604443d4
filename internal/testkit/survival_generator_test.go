package testkit

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestSurvivalDataGenerator_Basic(t *testing.T) {
	gen := NewSurvivalDataGenerator(DefaultSurvivalConfig())
	s, err := gen.Generate()
	require.NoError(t, err)

	assert.Len(t, s.Durations, 500)
	assert.Len(t, s.Covariates, 10)
	assert.Len(t, s.Routes, 500)

	censored := 0
	for i, d := range s.Durations {
		assert.GreaterOrEqual(t, d, 0.0)
		if !s.Events[i] {
			censored++
		}
	}
	rate := float64(censored) / 500
	assert.InDelta(t, 0.3, rate, 0.06)

	ds, err := s.Dataset("synthetic")
	require.NoError(t, err)
	assert.Equal(t, 500, ds.Len())
	assert.Equal(t, 10, ds.NumColumns())
}

func TestSurvivalDataGenerator_Deterministic(t *testing.T) {
	a, err := NewSurvivalDataGenerator(DefaultSurvivalConfig()).Generate()
	require.NoError(t, err)
	b, err := NewSurvivalDataGenerator(DefaultSurvivalConfig()).Generate()
	require.NoError(t, err)
	assert.Equal(t, a.Durations, b.Durations)
	assert.Equal(t, a.Covariates, b.Covariates)

	cfg := DefaultSurvivalConfig()
	cfg.Seed = 7
	c, err := NewSurvivalDataGenerator(cfg).Generate()
	require.NoError(t, err)
	assert.NotEqual(t, a.Durations, c.Durations)
}

func TestSurvivalDataGenerator_InvalidConfig(t *testing.T) {
	cfg := DefaultSurvivalConfig()
	cfg.Predictive = 20
	_, err := NewSurvivalDataGenerator(cfg).Generate()
	assert.Error(t, err)

	cfg = DefaultSurvivalConfig()
	cfg.CensorRate = 1
	_, err = NewSurvivalDataGenerator(cfg).Generate()
	assert.Error(t, err)
}

func TestSurvivalSample_WriteCSV(t *testing.T) {
	cfg := DefaultSurvivalConfig()
	cfg.Subjects = 20
	s, err := NewSurvivalDataGenerator(cfg).Generate()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.WriteCSV(&buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 21)
	assert.Equal(t, "lifetime_duration_days", rows[0][0])
	assert.Equal(t, "FAILED", rows[0][1])
	assert.Equal(t, "ROUTE", rows[0][len(rows[0])-1])
}

func TestSurvivalSample_WriteXLSX(t *testing.T) {
	cfg := DefaultSurvivalConfig()
	cfg.Subjects = 10
	s, err := NewSurvivalDataGenerator(cfg).Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cohort.xlsx")
	require.NoError(t, s.WriteXLSX(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	assert.Len(t, rows, 11)
	assert.Equal(t, s.Header(), rows[0])
}
