package design

import (
	"fmt"
	"math"
	"sort"

	"gosurv/domain/core"
)

const splineDegree = 3

// BSpline is a cubic B-spline basis with knots fixed at fit time. It yields
// DF columns and omits the first basis function, so the columns carry no
// implicit intercept.
type BSpline struct {
	DF    int       `json:"df"`
	Lower float64   `json:"lower"`
	Upper float64   `json:"upper"`
	Inner []float64 `json:"inner"`

	knots []float64
}

// FitBSpline places df-3 interior knots at equally spaced quantiles of x
// and the boundary knots at its range
func FitBSpline(x []float64, df int) (*BSpline, error) {
	if df < splineDegree {
		return nil, core.NewInputError(fmt.Sprintf("spline df %d below degree %d", df, splineDegree))
	}
	if len(x) < 2 {
		return nil, core.NewInputError("spline needs at least two observations")
	}

	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	lower, upper := sorted[0], sorted[len(sorted)-1]
	if lower == upper {
		return nil, fmt.Errorf("%w: spline over constant values", core.ErrDegenerateDesignMatrix)
	}

	nInner := df - splineDegree
	inner := make([]float64, nInner)
	for i := 0; i < nInner; i++ {
		p := float64(i+1) / float64(nInner+1)
		inner[i] = linearQuantile(sorted, p)
	}

	s := &BSpline{DF: df, Lower: lower, Upper: upper, Inner: inner}
	s.buildKnots()
	return s, nil
}

// linearQuantile interpolates between order statistics at (n-1)p. Sorted
// input is required.
func linearQuantile(sorted []float64, p float64) float64 {
	h := float64(len(sorted)-1) * p
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func (s *BSpline) buildKnots() {
	order := splineDegree + 1
	knots := make([]float64, 0, 2*order+len(s.Inner))
	for i := 0; i < order; i++ {
		knots = append(knots, s.Lower)
	}
	knots = append(knots, s.Inner...)
	for i := 0; i < order; i++ {
		knots = append(knots, s.Upper)
	}
	s.knots = knots
}

// Knots returns the full clamped knot vector
func (s *BSpline) Knots() []float64 {
	if s.knots == nil {
		s.buildKnots()
	}
	return append([]float64(nil), s.knots...)
}

// Eval writes the DF basis values for x into out. Values outside the
// boundary knots are clamped to the nearest boundary.
func (s *BSpline) Eval(x float64, out []float64) {
	if s.knots == nil {
		s.buildKnots()
	}
	for i := range out {
		out[i] = 0
	}
	if math.IsNaN(x) {
		for i := range out {
			out[i] = math.NaN()
		}
		return
	}
	if x < s.Lower {
		x = s.Lower
	}
	if x > s.Upper {
		x = s.Upper
	}

	p := splineDegree
	n := len(s.knots) - p - 2 // index of the last basis function
	span := findSpan(n, p, x, s.knots)
	values := basisFuns(span, x, p, s.knots)

	// values[r] is basis function span-p+r; column k holds function k+1
	for r := 0; r <= p; r++ {
		fn := span - p + r
		if fn >= 1 && fn-1 < len(out) {
			out[fn-1] = values[r]
		}
	}
}

// findSpan locates the knot span index for x (The NURBS Book, A2.1)
func findSpan(n, p int, x float64, knots []float64) int {
	if x >= knots[n+1] {
		return n
	}
	if x <= knots[p] {
		low := p
		for low < n && knots[low+1] <= x {
			low++
		}
		return low
	}
	low, high := p, n+1
	mid := (low + high) / 2
	for x < knots[mid] || x >= knots[mid+1] {
		if x < knots[mid] {
			high = mid
		} else {
			low = mid
		}
		mid = (low + high) / 2
	}
	return mid
}

// basisFuns evaluates the p+1 non-vanishing basis functions on a span
// (The NURBS Book, A2.2)
func basisFuns(span int, x float64, p int, knots []float64) []float64 {
	values := make([]float64, p+1)
	left := make([]float64, p+1)
	right := make([]float64, p+1)
	values[0] = 1
	for j := 1; j <= p; j++ {
		left[j] = x - knots[span+1-j]
		right[j] = knots[span+j] - x
		saved := 0.0
		for r := 0; r < j; r++ {
			denom := right[r+1] + left[j-r]
			temp := 0.0
			if denom != 0 {
				temp = values[r] / denom
			}
			values[r] = saved + right[r+1]*temp
			saved = left[j-r] * temp
		}
		values[j] = saved
	}
	return values
}
