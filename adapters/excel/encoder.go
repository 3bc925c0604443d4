package excel

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/internal"
)

// EncodingConfig maps raw export columns onto the survival schema
type EncodingConfig struct {
	DurationColumn     string   `json:"duration_column"`
	EventColumn        string   `json:"event_column"`
	WeightColumn       string   `json:"weight_column"`
	DropColumns        []string `json:"drop_columns"`
	CategoricalColumns []string `json:"categorical_columns"`
}

// missingLevel names the dummy level of an empty categorical cell
const missingLevel = "nan"

var (
	invalidNameChars = regexp.MustCompile(`[^0-9a-zA-Z_]`)
	repeatedUnder    = regexp.MustCompile(`_+`)
)

// CleanColumnName replaces characters outside [0-9a-zA-Z_] with '_' and
// collapses runs of '_'
func CleanColumnName(s string) string {
	return repeatedUnder.ReplaceAllString(invalidNameChars.ReplaceAllString(s, "_"), "_")
}

// Encoder turns a RawTable into a Dataset: dropped columns removed,
// categoricals one-hot encoded with the first sorted level dropped, numeric
// gaps filled with the column median
type Encoder struct {
	config EncodingConfig
	logger *internal.Logger
}

// NewEncoder creates an encoder
func NewEncoder(config EncodingConfig, logger *internal.Logger) *Encoder {
	if logger == nil {
		logger = internal.NewDefaultLogger()
	}
	return &Encoder{config: config, logger: logger.With("Encoder")}
}

// Encode builds the dataset named name from table
func (e *Encoder) Encode(name string, table *RawTable) (*dataset.Dataset, error) {
	durIdx, ok := table.Column(e.config.DurationColumn)
	if !ok {
		return nil, core.NewColumnNotFoundError(e.config.DurationColumn)
	}
	evIdx, ok := table.Column(e.config.EventColumn)
	if !ok {
		return nil, core.NewColumnNotFoundError(e.config.EventColumn)
	}

	durations, err := parseDurations(table.Values(durIdx))
	if err != nil {
		return nil, err
	}
	events, err := parseEvents(table.Values(evIdx))
	if err != nil {
		return nil, err
	}

	var weights []float64
	wIdx := -1
	if e.config.WeightColumn != "" {
		if idx, ok := table.Column(e.config.WeightColumn); ok {
			wIdx = idx
			weights, err = e.numericColumn(e.config.WeightColumn, table.Values(idx))
			if err != nil {
				return nil, err
			}
		}
	}

	skip := map[int]bool{durIdx: true, evIdx: true}
	if wIdx >= 0 {
		skip[wIdx] = true
	}
	for _, c := range e.config.DropColumns {
		if idx, ok := table.Column(c); ok {
			skip[idx] = true
		}
	}
	categorical := make(map[int]bool)
	for _, c := range e.config.CategoricalColumns {
		if idx, ok := table.Column(c); ok && !skip[idx] {
			categorical[idx] = true
		}
	}

	var columns []dataset.Column
	for idx, header := range table.Headers {
		if skip[idx] || categorical[idx] {
			continue
		}
		raw := table.Values(idx)
		if !isNumeric(raw) {
			e.logger.Warn("skipping non-numeric column %s", header)
			continue
		}
		values, err := e.numericColumn(header, raw)
		if err != nil {
			return nil, err
		}
		if values == nil {
			continue
		}
		columns = append(columns, dataset.Column{Name: header, Kind: dataset.KindNumeric, Values: values})
	}

	// dummies follow the remaining columns, as get_dummies appends them
	for idx, header := range table.Headers {
		if categorical[idx] {
			columns = append(columns, oneHot(header, table.Values(idx))...)
		}
	}

	seen := make(map[string]string, len(columns))
	for i := range columns {
		cleaned := CleanColumnName(columns[i].Name)
		if prev, dup := seen[cleaned]; dup {
			return nil, core.NewDatasetError(fmt.Sprintf("columns %q and %q both clean to %q", prev, columns[i].Name, cleaned))
		}
		seen[cleaned] = columns[i].Name
		columns[i].Name = cleaned
	}

	e.logger.Info("Encoded %s: %d subjects, %d covariates (%d categorical sources)",
		name, len(durations), len(columns), len(categorical))
	return dataset.NewDataset(name, columns, durations, events, weights)
}

// numericColumn parses a numeric column and fills gaps with the median of
// the present values. A column with no values at all yields nil.
func (e *Encoder) numericColumn(name string, raw []string) ([]float64, error) {
	values := make([]float64, len(raw))
	var present []float64
	var missing []int
	for i, cell := range raw {
		if isMissing(cell) {
			missing = append(missing, i)
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, core.NewDatasetError(fmt.Sprintf("column %s row %d: %q is not a number", name, i+2, cell))
		}
		values[i] = v
		present = append(present, v)
	}
	if len(present) == 0 {
		e.logger.Warn("skipping column %s with no values", name)
		return nil, nil
	}
	if len(missing) > 0 {
		median, err := stats.Median(present)
		if err != nil {
			return nil, fmt.Errorf("median of %s: %w", name, err)
		}
		for _, i := range missing {
			values[i] = median
		}
		e.logger.Debug("imputed %d missing values of %s with median %g", len(missing), name, median)
	}
	return values, nil
}

// oneHot expands a categorical column into indicator columns for every
// sorted level except the first
func oneHot(name string, raw []string) []dataset.Column {
	levels := make(map[string]bool)
	cells := make([]string, len(raw))
	for i, cell := range raw {
		if isMissing(cell) {
			cell = missingLevel
		}
		cells[i] = cell
		levels[cell] = true
	}
	sorted := make([]string, 0, len(levels))
	for l := range levels {
		sorted = append(sorted, l)
	}
	sort.Strings(sorted)
	if len(sorted) < 2 {
		return nil
	}

	var out []dataset.Column
	for _, level := range sorted[1:] {
		values := make([]float64, len(cells))
		for i, c := range cells {
			if c == level {
				values[i] = 1
			}
		}
		out = append(out, dataset.Column{Name: name + "_" + level, Kind: dataset.KindIndicator, Values: values})
	}
	return out
}

func parseDurations(raw []string) ([]float64, error) {
	out := make([]float64, len(raw))
	for i, cell := range raw {
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil || math.IsNaN(v) || v < 0 {
			return nil, core.NewDatasetError(fmt.Sprintf("row %d: invalid duration %q", i+2, cell))
		}
		out[i] = v
	}
	return out, nil
}

// ParseEvent accepts 0/1, true/false and yes/no in any case
func ParseEvent(cell string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "1", "true", "t", "yes", "y":
		return true, nil
	case "0", "false", "f", "no", "n":
		return false, nil
	}
	if v, err := strconv.ParseFloat(cell, 64); err == nil && (v == 0 || v == 1) {
		return v == 1, nil
	}
	return false, fmt.Errorf("unrecognized event value %q", cell)
}

func parseEvents(raw []string) ([]bool, error) {
	out := make([]bool, len(raw))
	for i, cell := range raw {
		v, err := ParseEvent(cell)
		if err != nil {
			return nil, core.NewDatasetError(fmt.Sprintf("row %d: %v", i+2, err))
		}
		out[i] = v
	}
	return out, nil
}

func isMissing(cell string) bool {
	switch strings.ToLower(cell) {
	case "", "na", "nan", "null", "none":
		return true
	}
	return false
}

// isNumeric reports whether every present cell parses as a float
func isNumeric(raw []string) bool {
	for _, cell := range raw {
		if isMissing(cell) {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return false
		}
	}
	return true
}
