package dataset

import (
	"fmt"

	"gosurv/domain/core"
)

// Frame is a fold-owned, mutable copy of a dataset slice. Outcomes live
// outside the covariate columns, so feature transforms cannot reach them.
type Frame struct {
	columns   []Column
	durations []float64
	events    []bool
	weights   []float64
}

// Len returns the number of subjects in the frame
func (f *Frame) Len() int { return len(f.durations) }

// Names returns the covariate names in order
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// Columns returns the covariate columns. The slices are shared with the
// frame; callers that mutate them own the consequences.
func (f *Frame) Columns() []Column { return f.columns }

// Column returns the named column
func (f *Frame) Column(name string) (Column, bool) {
	for _, c := range f.columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Has reports whether the frame carries the named column
func (f *Frame) Has(name string) bool {
	_, ok := f.Column(name)
	return ok
}

// Drop removes the named columns; names not present are ignored
func (f *Frame) Drop(names ...string) {
	if len(names) == 0 {
		return
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := f.columns[:0]
	for _, c := range f.columns {
		if !drop[c.Name] {
			kept = append(kept, c)
		}
	}
	f.columns = kept
}

// Set replaces the values of an existing column
func (f *Frame) Set(name string, values []float64) error {
	if len(values) != f.Len() {
		return core.NewInputError(fmt.Sprintf("column %q: %d values for %d rows", name, len(values), f.Len()))
	}
	for i := range f.columns {
		if f.columns[i].Name == name {
			f.columns[i].Values = values
			return nil
		}
	}
	return core.NewColumnNotFoundError(name)
}

// Durations returns the observed times (shared slice, do not mutate)
func (f *Frame) Durations() []float64 { return f.durations }

// Events returns the failure indicators (shared slice, do not mutate)
func (f *Frame) Events() []bool { return f.events }

// Weights returns the sample weights (shared slice, do not mutate)
func (f *Frame) Weights() []float64 { return f.weights }

// EventCount returns the number of failures in the frame
func (f *Frame) EventCount() int {
	count := 0
	for _, e := range f.events {
		if e {
			count++
		}
	}
	return count
}
