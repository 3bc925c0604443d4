package design

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
)

// TermKind distinguishes linear/indicator terms from spline expansions
type TermKind string

const (
	TermLinear TermKind = "linear"
	TermSpline TermKind = "spline"
)

// Term is one additive component of the model formula
type Term struct {
	Kind   TermKind `json:"kind"`
	Column string   `json:"column"`
	Spline *BSpline `json:"spline,omitempty"`
}

// Width is the number of design columns the term expands to
func (t Term) Width() int {
	if t.Kind == TermSpline {
		return t.Spline.DF
	}
	return 1
}

// ColumnNames returns the design column names produced by the term
func (t Term) ColumnNames() []string {
	if t.Kind != TermSpline {
		return []string{t.Column}
	}
	names := make([]string, t.Spline.DF)
	for k := range names {
		names[k] = fmt.Sprintf("bs(%s, df=%d)[%d]", t.Column, t.Spline.DF, k)
	}
	return names
}

// Basis is a fitted, typed formula: an ordered term list whose spline knots
// were fixed on a training frame
type Basis struct {
	Terms []Term `json:"terms"`
}

// ColumnNames returns every design column in order
func (b *Basis) ColumnNames() []string {
	var names []string
	for _, t := range b.Terms {
		names = append(names, t.ColumnNames()...)
	}
	return names
}

// SplineColumns returns the source columns that received a spline term
func (b *Basis) SplineColumns() []string {
	var cols []string
	for _, t := range b.Terms {
		if t.Kind == TermSpline {
			cols = append(cols, t.Column)
		}
	}
	return cols
}

// Transform evaluates the formula on a frame. No intercept column is
// produced. Train and test frames yield identical column layouts.
func (b *Basis) Transform(frame *dataset.Frame) (*Matrix, error) {
	names := b.ColumnNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: formula has no columns", core.ErrDegenerateDesignMatrix)
	}
	rows := frame.Len()
	data := mat.NewDense(rows, len(names), nil)

	offset := 0
	for _, t := range b.Terms {
		col, ok := frame.Column(t.Column)
		if !ok {
			return nil, core.NewColumnNotFoundError(t.Column)
		}
		switch t.Kind {
		case TermSpline:
			buf := make([]float64, t.Spline.DF)
			for r, v := range col.Values {
				t.Spline.Eval(v, buf)
				for k, bv := range buf {
					data.Set(r, offset+k, bv)
				}
			}
		default:
			for r, v := range col.Values {
				data.Set(r, offset, v)
			}
		}
		offset += t.Width()
	}

	return &Matrix{Columns: names, Data: data}, nil
}
