package design

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"gosurv/domain/core"
)

// Matrix is a design matrix with named columns (rows are subjects)
type Matrix struct {
	Columns []string
	Data    *mat.Dense
}

// Dims returns rows and columns
func (m *Matrix) Dims() (int, int) {
	if m.Data == nil {
		return 0, len(m.Columns)
	}
	return m.Data.Dims()
}

// ColumnIndex returns the position of a column name
func (m *Matrix) ColumnIndex(name string) (int, bool) {
	for i, c := range m.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Select builds a new matrix holding only the named columns, in the given
// order
func (m *Matrix) Select(names []string) (*Matrix, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no columns selected", core.ErrDegenerateDesignMatrix)
	}
	rows, _ := m.Dims()
	idx := make([]int, len(names))
	for j, name := range names {
		i, ok := m.ColumnIndex(name)
		if !ok {
			return nil, core.NewColumnNotFoundError(name)
		}
		idx[j] = i
	}

	out := mat.NewDense(rows, len(names), nil)
	for r := 0; r < rows; r++ {
		for j, i := range idx {
			out.Set(r, j, m.Data.At(r, i))
		}
	}
	return &Matrix{Columns: append([]string(nil), names...), Data: out}, nil
}
