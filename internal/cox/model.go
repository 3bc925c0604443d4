package cox

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"gosurv/domain/core"
)

// Coefficient is one row of a fitted coefficient table. P is the two-sided
// normal p-value of Z and is informational only.
type Coefficient struct {
	Name   string  `json:"name"`
	Coef   float64 `json:"coef"`
	SE     float64 `json:"se"`
	Z      float64 `json:"z"`
	P      float64 `json:"p"`
	Active bool    `json:"active"`
}

// Model is a fitted proportional hazards model. Terms follow the column
// order of the design it was fit on.
type Model struct {
	Terms         []Coefficient `json:"terms"`
	Iterations    int           `json:"iterations"`
	LogLikelihood float64       `json:"log_likelihood"`
	Penalty       Penalty       `json:"penalty"`
}

// Names returns the coefficient names in design order
func (m *Model) Names() []string {
	names := make([]string, len(m.Terms))
	for i, t := range m.Terms {
		names[i] = t.Name
	}
	return names
}

// Coef returns the coefficient vector β
func (m *Model) Coef() []float64 {
	beta := make([]float64, len(m.Terms))
	for i, t := range m.Terms {
		beta[i] = t.Coef
	}
	return beta
}

// ActiveCount is the number of nonzero coefficients
func (m *Model) ActiveCount() int {
	n := 0
	for _, t := range m.Terms {
		if t.Active {
			n++
		}
	}
	return n
}

// LinearPredictor returns Xβ. X must have the model's columns in order.
func (m *Model) LinearPredictor(x *mat.Dense) ([]float64, error) {
	rows, cols := x.Dims()
	if cols != len(m.Terms) {
		return nil, core.NewInputError(fmt.Sprintf("design has %d columns, model has %d", cols, len(m.Terms)))
	}
	out := mat.NewVecDense(rows, nil)
	out.MulVec(x, mat.NewVecDense(cols, m.Coef()))
	return out.RawVector().Data, nil
}

// Predict returns partial hazards exp(Xβ)
func (m *Model) Predict(x *mat.Dense) ([]float64, error) {
	eta, err := m.LinearPredictor(x)
	if err != nil {
		return nil, err
	}
	for i, e := range eta {
		eta[i] = math.Exp(e)
	}
	return eta, nil
}

func twoSidedP(z float64) float64 {
	return 2 * distuv.UnitNormal.Survival(math.Abs(z))
}
