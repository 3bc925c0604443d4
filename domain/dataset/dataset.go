package dataset

import (
	"encoding/binary"
	"fmt"
	"math"

	"gosurv/domain/core"
)

// ColumnKind distinguishes continuous covariates from 0/1 dummies
type ColumnKind string

const (
	KindNumeric   ColumnKind = "numeric"
	KindIndicator ColumnKind = "indicator"
)

// Column is a named covariate vector
type Column struct {
	Name   string
	Kind   ColumnKind
	Values []float64
}

// Clone returns a deep copy of the column
func (c Column) Clone() Column {
	values := make([]float64, len(c.Values))
	copy(values, c.Values)
	return Column{Name: c.Name, Kind: c.Kind, Values: values}
}

// Dataset is the cleaned subject table consumed by the modeling core.
// It is read-only after construction; every accessor hands out copies.
type Dataset struct {
	name      string
	columns   []Column
	index     map[string]int
	durations []float64
	events    []bool
	weights   []float64
}

// NewDataset validates and freezes a subject table. weights may be nil,
// in which case every subject weighs 1.
func NewDataset(name string, columns []Column, durations []float64, events []bool, weights []float64) (*Dataset, error) {
	n := len(durations)
	if n == 0 {
		return nil, core.NewDatasetError("no subjects")
	}
	if len(events) != n {
		return nil, core.NewDatasetError(fmt.Sprintf("events length %d != durations length %d", len(events), n))
	}
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != n {
		return nil, core.NewDatasetError(fmt.Sprintf("weights length %d != durations length %d", len(weights), n))
	}

	for i := 0; i < n; i++ {
		if math.IsNaN(durations[i]) || math.IsInf(durations[i], 0) || durations[i] < 0 {
			return nil, core.NewDatasetError(fmt.Sprintf("subject %d has invalid duration %v", i, durations[i]))
		}
		if !(weights[i] > 0) || math.IsInf(weights[i], 0) {
			return nil, core.NewDatasetError(fmt.Sprintf("subject %d has non-positive weight %v", i, weights[i]))
		}
	}

	ds := &Dataset{
		name:      name,
		columns:   make([]Column, len(columns)),
		index:     make(map[string]int, len(columns)),
		durations: append([]float64(nil), durations...),
		events:    append([]bool(nil), events...),
		weights:   append([]float64(nil), weights...),
	}

	for j, col := range columns {
		if col.Name == "" {
			return nil, core.NewDatasetError(fmt.Sprintf("column %d has no name", j))
		}
		if _, dup := ds.index[col.Name]; dup {
			return nil, core.NewDatasetError(fmt.Sprintf("duplicate column %q", col.Name))
		}
		if len(col.Values) != n {
			return nil, core.NewDatasetError(fmt.Sprintf("column %q has %d values, want %d", col.Name, len(col.Values), n))
		}
		if col.Kind == "" {
			col.Kind = KindNumeric
		}
		for i, v := range col.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, core.NewDatasetError(fmt.Sprintf("column %q row %d is not finite", col.Name, i))
			}
			if col.Kind == KindIndicator && v != 0 && v != 1 {
				return nil, core.NewDatasetError(fmt.Sprintf("indicator column %q row %d has value %v", col.Name, i, v))
			}
		}
		ds.index[col.Name] = j
		ds.columns[j] = col.Clone()
	}

	return ds, nil
}

// Name returns the dataset label (usually the source file name)
func (d *Dataset) Name() string { return d.name }

// Len returns the number of subjects
func (d *Dataset) Len() int { return len(d.durations) }

// NumColumns returns the number of covariate columns
func (d *Dataset) NumColumns() int { return len(d.columns) }

// Names returns covariate names in table order
func (d *Dataset) Names() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// Column returns a copy of the named column
func (d *Dataset) Column(name string) (Column, bool) {
	j, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	return d.columns[j].Clone(), true
}

// Durations returns a copy of the observed times
func (d *Dataset) Durations() []float64 { return append([]float64(nil), d.durations...) }

// Events returns a copy of the failure indicators
func (d *Dataset) Events() []bool { return append([]bool(nil), d.events...) }

// Weights returns a copy of the sample weights
func (d *Dataset) Weights() []float64 { return append([]float64(nil), d.weights...) }

// EventCount returns the number of observed failures
func (d *Dataset) EventCount() int {
	count := 0
	for _, e := range d.events {
		if e {
			count++
		}
	}
	return count
}

// Slice copies the given subjects into a fold-local frame
func (d *Dataset) Slice(indices []int) (*Frame, error) {
	n := d.Len()
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, core.NewInputError(fmt.Sprintf("subject index %d out of range [0,%d)", idx, n))
		}
	}

	f := &Frame{
		columns:   make([]Column, len(d.columns)),
		durations: make([]float64, len(indices)),
		events:    make([]bool, len(indices)),
		weights:   make([]float64, len(indices)),
	}
	for r, idx := range indices {
		f.durations[r] = d.durations[idx]
		f.events[r] = d.events[idx]
		f.weights[r] = d.weights[idx]
	}
	for j, col := range d.columns {
		values := make([]float64, len(indices))
		for r, idx := range indices {
			values[r] = col.Values[idx]
		}
		f.columns[j] = Column{Name: col.Name, Kind: col.Kind, Values: values}
	}
	return f, nil
}

// Fingerprint hashes the table contents: column names, kinds and values,
// then durations, events and weights. The dataset name is not included.
func (d *Dataset) Fingerprint() core.Hash {
	buf := make([]byte, 0, 8*(len(d.columns)+3)*len(d.durations))
	putFloat := func(v float64) {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
	}
	for _, c := range d.columns {
		buf = append(buf, c.Name...)
		buf = append(buf, 0)
		buf = append(buf, c.Kind...)
		buf = append(buf, 0)
		for _, v := range c.Values {
			putFloat(v)
		}
	}
	for i, t := range d.durations {
		putFloat(t)
		if d.events[i] {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		putFloat(d.weights[i])
	}
	return core.NewHash(buf)
}
