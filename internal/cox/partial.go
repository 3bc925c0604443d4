package cox

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"gosurv/domain/core"
)

// Ties selects how tied failure times enter the partial likelihood
type Ties string

const (
	// TiesEfron averages the risk set over the tied failures
	TiesEfron Ties = "efron"
	// TiesBreslow keeps the full risk set for every tied failure. It biases
	// coefficients toward zero when ties are heavy.
	TiesBreslow Ties = "breslow"
)

// ParseTies maps a configuration value to a tie convention
func ParseTies(s string) (Ties, error) {
	switch Ties(s) {
	case TiesEfron, "":
		return TiesEfron, nil
	case TiesBreslow:
		return TiesBreslow, nil
	}
	return "", core.NewInputError(fmt.Sprintf("unknown tie method %q", s))
}

// timeGroup is a run of subjects sharing one duration. Groups are stored
// from the latest duration to the earliest so risk sets grow as they are
// visited.
type timeGroup struct {
	members []int
	failed  []int
}

// partialLikelihood evaluates the Cox partial log-likelihood with its
// gradient and Hessian for a fixed design
type partialLikelihood struct {
	x      *mat.Dense
	n, p   int
	groups []timeGroup
	ties   Ties
}

func newPartialLikelihood(x *mat.Dense, durations []float64, events []bool, ties Ties) *partialLikelihood {
	n, p := x.Dims()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return durations[order[a]] > durations[order[b]]
	})

	var groups []timeGroup
	for start := 0; start < n; {
		end := start
		t := durations[order[start]]
		g := timeGroup{}
		for end < n && durations[order[end]] == t {
			i := order[end]
			g.members = append(g.members, i)
			if events[i] {
				g.failed = append(g.failed, i)
			}
			end++
		}
		groups = append(groups, g)
		start = end
	}

	return &partialLikelihood{x: x, n: n, p: p, groups: groups, ties: ties}
}

// evaluation is ℓ(β), ∇ℓ(β) and ∇²ℓ(β). The Hessian is nil when not
// requested.
type evaluation struct {
	loglik float64
	grad   []float64
	hess   *mat.SymDense
}

// linearPredictor returns Xβ
func (pl *partialLikelihood) linearPredictor(beta []float64) []float64 {
	eta := make([]float64, pl.n)
	for i := 0; i < pl.n; i++ {
		row := pl.x.RawRowView(i)
		s := 0.0
		for j, b := range beta {
			if b != 0 {
				s += row[j] * b
			}
		}
		eta[i] = s
	}
	return eta
}

// logLikelihood is the cheap path used by the line search
func (pl *partialLikelihood) logLikelihood(beta []float64) float64 {
	return pl.evaluate(beta, false, false).loglik
}

func (pl *partialLikelihood) evaluate(beta []float64, withGrad, withHess bool) evaluation {
	p := pl.p
	eta := pl.linearPredictor(beta)
	shift := math.Inf(-1)
	for _, e := range eta {
		if e > shift {
			shift = e
		}
	}

	risk := make([]float64, pl.n)
	for i, e := range eta {
		risk[i] = math.Exp(e - shift)
	}

	var (
		s0     float64
		s1, t1 []float64
		s2, t2 []float64
		xd     []float64
		out    evaluation
	)
	if withGrad || withHess {
		s1 = make([]float64, p)
		t1 = make([]float64, p)
		xd = make([]float64, p)
		out.grad = make([]float64, p)
	}
	if withHess {
		s2 = make([]float64, p*p)
		t2 = make([]float64, p*p)
		out.hess = mat.NewSymDense(p, nil)
	}
	mean := make([]float64, p)

	for _, g := range pl.groups {
		for _, i := range g.members {
			w := risk[i]
			s0 += w
			if s1 != nil {
				addScaled(s1, w, pl.x.RawRowView(i))
			}
			if s2 != nil {
				addOuter(s2, w, pl.x.RawRowView(i))
			}
		}

		d := len(g.failed)
		if d == 0 {
			continue
		}

		var t0 float64
		if s1 != nil {
			zero(t1)
			zero(xd)
		}
		if s2 != nil {
			zero(t2)
		}
		for _, i := range g.failed {
			w := risk[i]
			row := pl.x.RawRowView(i)
			t0 += w
			out.loglik += eta[i]
			if s1 != nil {
				addScaled(t1, w, row)
				addScaled(xd, 1, row)
			}
			if s2 != nil {
				addOuter(t2, w, row)
			}
		}
		if s1 != nil {
			addScaled(out.grad, 1, xd)
		}

		for l := 0; l < d; l++ {
			frac := 0.0
			if pl.ties == TiesEfron {
				frac = float64(l) / float64(d)
			}
			phi := s0 - frac*t0
			out.loglik -= math.Log(phi) + shift
			if s1 == nil {
				continue
			}
			for j := 0; j < p; j++ {
				mean[j] = (s1[j] - frac*t1[j]) / phi
				out.grad[j] -= mean[j]
			}
			if s2 == nil {
				continue
			}
			for j := 0; j < p; j++ {
				for k := j; k < p; k++ {
					v := (s2[j*p+k]-frac*t2[j*p+k])/phi - mean[j]*mean[k]
					out.hess.SetSym(j, k, out.hess.At(j, k)-v)
				}
			}
		}
	}
	return out
}

func addScaled(dst []float64, w float64, v []float64) {
	for j, x := range v {
		dst[j] += w * x
	}
}

// addOuter accumulates the upper triangle of w·v·vᵀ into a row-major p×p
// buffer
func addOuter(dst []float64, w float64, v []float64) {
	p := len(v)
	for j := 0; j < p; j++ {
		wv := w * v[j]
		if wv == 0 {
			continue
		}
		for k := j; k < p; k++ {
			dst[j*p+k] += wv * v[k]
		}
	}
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
