package excel

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/internal"
	"gosurv/internal/errors"
	"gosurv/internal/testkit"
)

func testEncoding() EncodingConfig {
	return EncodingConfig{
		DurationColumn:     "lifetime_duration_days",
		EventColumn:        "FAILED",
		WeightColumn:       "sample_weight",
		DropColumns:        []string{"UWI", "FAILURETYPE"},
		CategoricalColumns: []string{"ROUTE"},
	}
}

func quiet() (*internal.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return internal.NewLoggerTo(&buf, internal.LogLevelDebug), &buf
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCleanColumnName(t *testing.T) {
	tests := map[string]string{
		"rod load (lbs)":   "rod_load_lbs_",
		"ROUTE_north-east": "ROUTE_north_east",
		"a__b":             "a_b",
		"plain_name":       "plain_name",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanColumnName(in), in)
	}
}

func TestParseEvent(t *testing.T) {
	for _, s := range []string{"1", "TRUE", "yes", "1.0"} {
		v, err := ParseEvent(s)
		require.NoError(t, err, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"0", "false", "No", "0.0"} {
		v, err := ParseEvent(s)
		require.NoError(t, err, s)
		assert.False(t, v, s)
	}
	_, err := ParseEvent("maybe")
	assert.Error(t, err)
}

func TestEncoder_Encode(t *testing.T) {
	table := &RawTable{
		Headers: []string{"UWI", "lifetime_duration_days", "FAILED", "pump depth", "ROUTE", "operator", "sample_weight"},
		Rows: [][]string{
			{"w1", "100", "1", "10", "west", "acme", "1"},
			{"w2", "200", "0", "", "east", "acme", "2"},
			{"w3", "300", "true", "30", "", "bolt", ""},
			{"w4", "400", "no", "50", "west", "bolt", "1"},
		},
	}
	logger, logs := quiet()

	ds, err := NewEncoder(testEncoding(), logger).Encode("wells", table)
	require.NoError(t, err)

	assert.Equal(t, []string{"pump_depth", "ROUTE_nan", "ROUTE_west"}, ds.Names())
	assert.Equal(t, []bool{true, false, true, false}, ds.Events())
	assert.Equal(t, []float64{100, 200, 300, 400}, ds.Durations())
	// missing weight takes the median of 1, 2, 1
	assert.Equal(t, []float64{1, 2, 1, 1}, ds.Weights())

	depth, ok := ds.Column("pump_depth")
	require.True(t, ok)
	assert.Equal(t, []float64{10, 30, 30, 50}, depth.Values)
	assert.Equal(t, dataset.KindNumeric, depth.Kind)

	west, ok := ds.Column("ROUTE_west")
	require.True(t, ok)
	assert.Equal(t, dataset.KindIndicator, west.Kind)
	assert.Equal(t, []float64{1, 0, 0, 1}, west.Values)

	assert.Contains(t, logs.String(), "skipping non-numeric column operator")
}

func TestEncoder_Errors(t *testing.T) {
	logger, _ := quiet()
	enc := NewEncoder(testEncoding(), logger)

	_, err := enc.Encode("x", &RawTable{Headers: []string{"FAILED"}, Rows: [][]string{{"1"}}})
	assert.ErrorIs(t, err, core.ErrColumnNotFound)

	_, err = enc.Encode("x", &RawTable{
		Headers: []string{"lifetime_duration_days", "FAILED"},
		Rows:    [][]string{{"-5", "1"}},
	})
	assert.ErrorIs(t, err, core.ErrInvalidDataset)

	_, err = enc.Encode("x", &RawTable{
		Headers: []string{"lifetime_duration_days", "FAILED"},
		Rows:    [][]string{{"5", "broken"}},
	})
	assert.ErrorIs(t, err, core.ErrInvalidDataset)
}

func TestDataReader_CSV(t *testing.T) {
	path := writeFile(t, "wells.csv", "a, b ,c\n1,2,3\n,,\n4,5\n")
	logger, _ := quiet()

	table, err := NewDataReader(path, "", logger).ReadData()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, table.Headers)
	assert.Equal(t, [][]string{{"1", "2", "3"}, {"4", "5", ""}}, table.Rows)
}

func TestDataReader_Errors(t *testing.T) {
	logger, _ := quiet()
	_, err := NewDataReader(filepath.Join(t.TempDir(), "missing.csv"), "", logger).ReadData()
	assert.Error(t, err)

	_, err = NewDataReader(writeFile(t, "header.csv", "a,b\n"), "", logger).ReadData()
	assert.Error(t, err)

	_, err = NewDataReader(writeFile(t, "dup.csv", "a,a\n1,2\n"), "", logger).ReadData()
	assert.Error(t, err)
}

func TestFileLoader_GeneratedExports(t *testing.T) {
	cfg := testkit.DefaultSurvivalConfig()
	cfg.Subjects = 40
	sample, err := testkit.NewSurvivalDataGenerator(cfg).Generate()
	require.NoError(t, err)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "cohort.csv")
	f, err := os.Create(csvPath)
	require.NoError(t, err)
	require.NoError(t, sample.WriteCSV(f))
	require.NoError(t, f.Close())

	xlsxPath := filepath.Join(dir, "cohort.xlsx")
	require.NoError(t, sample.WriteXLSX(xlsxPath))

	logger, _ := quiet()
	for _, path := range []string{csvPath, xlsxPath} {
		ds, err := NewFileLoader(path, "", testEncoding(), logger).Load(context.Background())
		require.NoError(t, err, path)
		assert.Equal(t, "cohort", ds.Name())
		assert.Equal(t, 40, ds.Len())
		// 10 covariates plus route dummies for two of three levels
		assert.Equal(t, 12, ds.NumColumns())
		assert.Equal(t, sample.Events, ds.Events())
	}
}

func TestFileLoader_WrapsIngestionErrors(t *testing.T) {
	logger, _ := quiet()
	_, err := NewFileLoader(writeFile(t, "bad.csv", "x,FAILED\n1,1\n"), "", testEncoding(), logger).Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeIngestionError, errors.GetCode(err))
	assert.ErrorIs(t, err, core.ErrColumnNotFound)
}
