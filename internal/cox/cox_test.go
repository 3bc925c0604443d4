package cox

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"gosurv/domain/core"
)

// naiveLogLik is the Breslow partial likelihood written directly from its
// definition. It is exact when durations are distinct.
func naiveLogLik(x *mat.Dense, durations []float64, events []bool, beta []float64) float64 {
	n, _ := x.Dims()
	eta := make([]float64, n)
	for i := 0; i < n; i++ {
		eta[i] = mat.Dot(x.RowView(i), mat.NewVecDense(len(beta), beta))
	}
	ll := 0.0
	for i := 0; i < n; i++ {
		if !events[i] {
			continue
		}
		denom := 0.0
		for j := 0; j < n; j++ {
			if durations[j] >= durations[i] {
				denom += math.Exp(eta[j])
			}
		}
		ll += eta[i] - math.Log(denom)
	}
	return ll
}

func twoCovariateData(n int, seed int64) (*mat.Dense, []float64, []bool) {
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(n, 2, nil)
	durations := make([]float64, n)
	events := make([]bool, n)
	for i := 0; i < n; i++ {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		x.Set(i, 0, a)
		x.Set(i, 1, b)
		rate := math.Exp(0.8*a - 0.5*b)
		durations[i] = rng.ExpFloat64() / rate
		events[i] = rng.Float64() < 0.75
	}
	events[0] = true
	return x, durations, events
}

func TestFit_ClosedFormSingleCovariate(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{1, 0, 1, 0})
	durations := []float64{1, 2, 3, 4}
	events := []bool{true, true, true, true}

	for _, ties := range []Ties{TiesEfron, TiesBreslow} {
		t.Run(string(ties), func(t *testing.T) {
			m, err := NewFitter(0, 0, ties).Fit(x, []string{"x"}, durations, events, Penalty{})
			require.NoError(t, err)

			// score equation reduces to u² − u − 4 = 0 with u = exp(β)
			want := math.Log((1 + math.Sqrt(17)) / 2)
			assert.InDelta(t, want, m.Terms[0].Coef, 1e-6)
			assert.True(t, m.Terms[0].Active)
			assert.Greater(t, m.Terms[0].SE, 0.0)
			assert.InDelta(t, m.Terms[0].Coef/m.Terms[0].SE, m.Terms[0].Z, 1e-12)
		})
	}
}

func TestFit_StationaryPointTwoCovariates(t *testing.T) {
	x, durations, events := twoCovariateData(60, 7)

	m, err := NewFitter(100, 1e-10, TiesEfron).Fit(x, []string{"a", "b"}, durations, events, Penalty{})
	require.NoError(t, err)
	beta := m.Coef()

	const h = 1e-5
	for j := range beta {
		up := append([]float64(nil), beta...)
		down := append([]float64(nil), beta...)
		up[j] += h
		down[j] -= h
		g := (naiveLogLik(x, durations, events, up) - naiveLogLik(x, durations, events, down)) / (2 * h)
		assert.InDelta(t, 0, g, 1e-4, "gradient component %d", j)
	}

	assert.InDelta(t, naiveLogLik(x, durations, events, beta), m.LogLikelihood, 1e-8)
}

func TestPartialLikelihood_DerivativesMatchFiniteDifferences(t *testing.T) {
	x, durations, events := twoCovariateData(40, 3)
	// force ties so the Efron correction is exercised
	for i := 0; i < 40; i += 4 {
		durations[i+1] = durations[i]
		events[i+1] = true
		events[i] = true
	}

	for _, ties := range []Ties{TiesEfron, TiesBreslow} {
		t.Run(string(ties), func(t *testing.T) {
			pl := newPartialLikelihood(x, durations, events, ties)
			beta := []float64{0.3, -0.2}
			ev := pl.evaluate(beta, true, true)

			const h = 1e-5
			for j := 0; j < 2; j++ {
				up := append([]float64(nil), beta...)
				down := append([]float64(nil), beta...)
				up[j] += h
				down[j] -= h

				g := (pl.logLikelihood(up) - pl.logLikelihood(down)) / (2 * h)
				assert.InDelta(t, g, ev.grad[j], 1e-5)

				gu := pl.evaluate(up, true, false).grad
				gd := pl.evaluate(down, true, false).grad
				for k := 0; k < 2; k++ {
					assert.InDelta(t, (gu[k]-gd[k])/(2*h), ev.hess.At(j, k), 1e-5)
				}
			}
		})
	}
}

func TestPartialLikelihood_TiedFailures(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{1, 0, 0})
	durations := []float64{1, 1, 2}
	events := []bool{true, true, true}

	efron := newPartialLikelihood(x, durations, events, TiesEfron).logLikelihood([]float64{0})
	breslow := newPartialLikelihood(x, durations, events, TiesBreslow).logLikelihood([]float64{0})

	assert.InDelta(t, -math.Log(6), efron, 1e-12)
	assert.InDelta(t, -2*math.Log(3), breslow, 1e-12)
}

func TestFit_LassoBoundary(t *testing.T) {
	x, durations, events := twoCovariateData(80, 11)

	m, err := NewFitter(0, 0, TiesEfron).Fit(x, []string{"a", "b"}, durations, events, Penalty{Strength: 100, L1Ratio: 1})
	require.NoError(t, err)
	for _, c := range m.Terms {
		assert.Zero(t, c.Coef)
		assert.False(t, c.Active)
		assert.Zero(t, c.SE)
		assert.Zero(t, c.Z)
	}
	assert.Zero(t, m.ActiveCount())
}

func TestFit_LassoShrinksTowardZero(t *testing.T) {
	x, durations, events := twoCovariateData(120, 5)
	f := NewFitter(0, 0, TiesEfron)

	free, err := f.Fit(x, []string{"a", "b"}, durations, events, Penalty{})
	require.NoError(t, err)
	lasso, err := f.Fit(x, []string{"a", "b"}, durations, events, Penalty{Strength: 0.05, L1Ratio: 1})
	require.NoError(t, err)

	l1 := func(m *Model) float64 {
		s := 0.0
		for _, c := range m.Terms {
			s += math.Abs(c.Coef)
		}
		return s
	}
	assert.LessOrEqual(t, l1(lasso), l1(free)+1e-9)
	assert.Greater(t, math.Abs(lasso.Terms[0].Coef), 0.0)
}

func TestFit_RidgeHandlesDuplicatedColumns(t *testing.T) {
	base, durations, events := twoCovariateData(50, 9)
	x := mat.NewDense(50, 2, nil)
	for i := 0; i < 50; i++ {
		x.Set(i, 0, base.At(i, 0))
		x.Set(i, 1, base.At(i, 0))
	}

	m, err := NewFitter(0, 0, TiesEfron).Fit(x, []string{"a", "a_copy"}, durations, events, Penalty{Strength: 0.5, L1Ratio: 0})
	require.NoError(t, err)
	assert.InDelta(t, m.Terms[0].Coef, m.Terms[1].Coef, 1e-6)
	assert.False(t, math.IsNaN(m.Terms[0].SE))
}

func TestFit_DetectsSingularHessian(t *testing.T) {
	base, durations, events := twoCovariateData(30, 2)
	x := mat.NewDense(30, 2, nil)
	for i := 0; i < 30; i++ {
		x.Set(i, 0, base.At(i, 0))
	}

	_, err := NewFitter(0, 0, TiesEfron).Fit(x, []string{"a", "zero"}, durations, events, Penalty{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSingularHessian)
}

func TestFit_NonConvergence(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{1, 0, 1, 0})
	durations := []float64{1, 2, 3, 4}
	events := []bool{true, true, true, true}

	_, err := NewFitter(1, 1e-12, TiesEfron).Fit(x, []string{"x"}, durations, events, Penalty{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNonConvergence)
}

func TestFit_InputValidation(t *testing.T) {
	x := mat.NewDense(2, 1, []float64{1, 0})
	f := NewFitter(0, 0, TiesEfron)

	tests := []struct {
		name      string
		names     []string
		durations []float64
		events    []bool
		penalty   Penalty
	}{
		{"length mismatch", []string{"x"}, []float64{1}, []bool{true}, Penalty{}},
		{"name mismatch", []string{"x", "y"}, []float64{1, 2}, []bool{true, true}, Penalty{}},
		{"negative strength", []string{"x"}, []float64{1, 2}, []bool{true, true}, Penalty{Strength: -1}},
		{"ratio above one", []string{"x"}, []float64{1, 2}, []bool{true, true}, Penalty{Strength: 1, L1Ratio: 1.5}},
		{"no events", []string{"x"}, []float64{1, 2}, []bool{false, false}, Penalty{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fit(x, tt.names, tt.durations, tt.events, tt.penalty)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}
}

func TestModel_Predict(t *testing.T) {
	m := &Model{Terms: []Coefficient{{Name: "a", Coef: 0.5}, {Name: "b", Coef: -1}}}
	x := mat.NewDense(2, 2, []float64{2, 1, 0, 0})

	eta, err := m.LinearPredictor(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0}, eta, 1e-12)

	risk, err := m.Predict(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1}, risk, 1e-12)

	_, err = m.Predict(mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestParseTies(t *testing.T) {
	ties, err := ParseTies("")
	require.NoError(t, err)
	assert.Equal(t, TiesEfron, ties)

	ties, err = ParseTies("breslow")
	require.NoError(t, err)
	assert.Equal(t, TiesBreslow, ties)

	_, err = ParseTies("exact")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestModel_ZeroCoefficientWithoutL1HasStandardError(t *testing.T) {
	x, durations, events := twoCovariateData(60, 7)
	beta := []float64{0.4, 0}

	ridge := &problem{pl: newPartialLikelihood(x, durations, events, TiesEfron), penalty: Penalty{}, n: 60}
	m, err := ridge.model(beta, ridge.pl.evaluate(beta, true, true), []string{"a", "b"}, 1)
	require.NoError(t, err)
	assert.True(t, m.Terms[1].Active)
	assert.Greater(t, m.Terms[1].SE, 0.0)
	assert.Zero(t, m.Terms[1].Z)
	assert.InDelta(t, 1, m.Terms[1].P, 1e-12)

	lasso := &problem{pl: ridge.pl, penalty: Penalty{Strength: 0.1, L1Ratio: 1}, n: 60}
	m, err = lasso.model(beta, lasso.pl.evaluate(beta, true, true), []string{"a", "b"}, 1)
	require.NoError(t, err)
	assert.False(t, m.Terms[1].Active)
	assert.Zero(t, m.Terms[1].SE)
	assert.True(t, m.Terms[0].Active)
}
