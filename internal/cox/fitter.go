package cox

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"gosurv/domain/core"
)

// Penalty is the elastic-net penalty λ(α‖β‖₁ + (1−α)/2‖β‖₂²)
type Penalty struct {
	Strength float64 `json:"strength"`
	L1Ratio  float64 `json:"l1_ratio"`
}

func (p Penalty) l1() float64 { return p.Strength * p.L1Ratio }
func (p Penalty) l2() float64 { return p.Strength * (1 - p.L1Ratio) }

// Scaled returns the same mix with the strength multiplied by f
func (p Penalty) Scaled(f float64) Penalty {
	return Penalty{Strength: p.Strength * f, L1Ratio: p.L1Ratio}
}

func (p Penalty) String() string {
	return fmt.Sprintf("λ=%g α=%g", p.Strength, p.L1Ratio)
}

const (
	defaultMaxIter      = 100
	defaultTol          = 1e-7
	defaultInnerMaxIter = 200
	armijo              = 1e-4
	maxHalvings         = 40
	minCurvature        = 1e-12
)

// Fitter fits penalized Cox models by proximal Newton iterations on
// F(β) = −ℓ(β)/n + penalty(β)
type Fitter struct {
	MaxIter      int
	Tol          float64
	InnerMaxIter int
	Ties         Ties
}

// NewFitter returns a fitter with the given caps. Zero values fall back to
// the package defaults.
func NewFitter(maxIter int, tol float64, ties Ties) *Fitter {
	f := &Fitter{MaxIter: maxIter, Tol: tol, InnerMaxIter: defaultInnerMaxIter, Ties: ties}
	if f.MaxIter <= 0 {
		f.MaxIter = defaultMaxIter
	}
	if f.Tol <= 0 {
		f.Tol = defaultTol
	}
	if f.Ties == "" {
		f.Ties = TiesEfron
	}
	return f
}

// problem is one fit in progress
type problem struct {
	pl      *partialLikelihood
	penalty Penalty
	n       float64
}

func (pr *problem) objective(beta []float64) float64 {
	return pr.objectiveFrom(pr.pl.logLikelihood(beta), beta)
}

func (pr *problem) objectiveFrom(loglik float64, beta []float64) float64 {
	var l1, l2 float64
	for _, b := range beta {
		l1 += math.Abs(b)
		l2 += b * b
	}
	return -loglik/pr.n + pr.penalty.l1()*l1 + pr.penalty.l2()/2*l2
}

// smooth returns the gradient and Hessian of −ℓ/n + λ(1−α)/2‖β‖²
func (pr *problem) smooth(ev evaluation, beta []float64) ([]float64, *mat.SymDense) {
	p := len(beta)
	grad := make([]float64, p)
	ridge := pr.penalty.l2()
	for j := range grad {
		grad[j] = -ev.grad[j]/pr.n + ridge*beta[j]
	}
	hess := mat.NewSymDense(p, nil)
	for j := 0; j < p; j++ {
		for k := j; k < p; k++ {
			v := -ev.hess.At(j, k) / pr.n
			if j == k {
				v += ridge
			}
			hess.SetSym(j, k, v)
		}
	}
	return grad, hess
}

// Fit minimizes the penalized objective for design x. Column names label
// the coefficients of the returned model.
func (f *Fitter) Fit(x *mat.Dense, names []string, durations []float64, events []bool, penalty Penalty) (*Model, error) {
	if err := validateInputs(x, names, durations, events, penalty); err != nil {
		return nil, err
	}

	n, p := x.Dims()
	pr := &problem{
		pl:      newPartialLikelihood(x, durations, events, f.Ties),
		penalty: penalty,
		n:       float64(n),
	}

	beta := make([]float64, p)
	ev := pr.pl.evaluate(beta, true, true)
	obj := pr.objectiveFrom(ev.loglik, beta)
	if !finite(obj) {
		return nil, fmt.Errorf("%w: non-finite objective at β=0", core.ErrNonConvergence)
	}

	converged := false
	iter := 0
	for iter < f.MaxIter {
		iter++
		grad, hess := pr.smooth(ev, beta)

		target, err := f.proximalStep(beta, grad, hess, penalty.l1())
		if err != nil {
			return nil, err
		}

		dir := make([]float64, p)
		maxDir := 0.0
		for j := range dir {
			dir[j] = target[j] - beta[j]
			maxDir = math.Max(maxDir, math.Abs(dir[j]))
		}
		if maxDir < f.Tol {
			converged = true
			break
		}

		// predicted decrease of the composite objective along dir
		decrease := 0.0
		for j := range dir {
			decrease += grad[j]*dir[j] + penalty.l1()*(math.Abs(target[j])-math.Abs(beta[j]))
		}

		step := 1.0
		next := make([]float64, p)
		nextObj := math.Inf(1)
		accepted := false
		for h := 0; h < maxHalvings; h++ {
			for j := range next {
				next[j] = beta[j] + step*dir[j]
			}
			nextObj = pr.objective(next)
			if finite(nextObj) && nextObj <= obj+armijo*step*decrease {
				accepted = true
				break
			}
			step /= 2
		}
		if !accepted {
			if math.Abs(decrease) <= f.Tol*(1+math.Abs(obj)) {
				converged = true
				break
			}
			return nil, fmt.Errorf("%w: line search failed at iteration %d (%s)", core.ErrNonConvergence, iter, penalty)
		}

		change := math.Abs(obj - nextObj)
		beta, obj = next, nextObj
		for _, b := range beta {
			if !finite(b) {
				return nil, fmt.Errorf("%w: non-finite coefficient at iteration %d", core.ErrNonConvergence, iter)
			}
		}
		ev = pr.pl.evaluate(beta, true, true)

		if change <= f.Tol*(1+math.Abs(obj)) || step*maxDir < f.Tol {
			converged = true
			break
		}
	}
	if !converged {
		return nil, fmt.Errorf("%w: no convergence within %d iterations (%s)", core.ErrNonConvergence, f.MaxIter, penalty)
	}

	return pr.model(beta, ev, names, iter)
}

// proximalStep minimizes the quadratic model of the smooth part plus the
// L1 term around beta. Without an L1 term this is a Newton step.
func (f *Fitter) proximalStep(beta, grad []float64, hess *mat.SymDense, l1 float64) ([]float64, error) {
	p := len(beta)
	if l1 == 0 {
		var chol mat.Cholesky
		if ok := chol.Factorize(hess); !ok {
			return nil, fmt.Errorf("%w: Hessian is not positive definite", core.ErrSingularHessian)
		}
		var delta mat.VecDense
		if err := chol.SolveVecTo(&delta, mat.NewVecDense(p, append([]float64(nil), grad...))); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrSingularHessian, err)
		}
		target := make([]float64, p)
		for j := range target {
			target[j] = beta[j] - delta.AtVec(j)
		}
		return target, nil
	}

	// cyclic coordinate descent on the L1-regularized quadratic model;
	// shift holds H(z−β)
	z := append([]float64(nil), beta...)
	shift := make([]float64, p)
	for sweep := 0; sweep < f.InnerMaxIter; sweep++ {
		maxDelta := 0.0
		for j := 0; j < p; j++ {
			hjj := hess.At(j, j)
			u := hjj*z[j] - grad[j] - shift[j]
			var zj float64
			if hjj <= minCurvature {
				if math.Abs(u) > l1 {
					return nil, fmt.Errorf("%w: zero curvature in coordinate %d", core.ErrSingularHessian, j)
				}
				zj = 0
			} else {
				zj = softThreshold(u, l1) / hjj
			}
			delta := zj - z[j]
			if delta == 0 {
				continue
			}
			z[j] = zj
			for k := 0; k < p; k++ {
				shift[k] += delta * hess.At(k, j)
			}
			maxDelta = math.Max(maxDelta, math.Abs(delta))
		}
		if maxDelta < f.Tol*0.1 {
			break
		}
	}
	return z, nil
}

func softThreshold(u, t float64) float64 {
	switch {
	case u > t:
		return u - t
	case u < -t:
		return u + t
	}
	return 0
}

// model assembles coefficients with standard errors from the curvature of
// the penalized objective over the active set. The L1 term contributes the
// curvature λα/|β| of its local quadratic approximation. Without an L1 term
// every coefficient is active, including one that lands exactly on zero.
func (pr *problem) model(beta []float64, ev evaluation, names []string, iter int) (*Model, error) {
	l1 := pr.penalty.l1()
	var active []int
	for j, b := range beta {
		if b != 0 || l1 == 0 {
			active = append(active, j)
		}
	}

	terms := make([]Coefficient, len(beta))
	for j, b := range beta {
		terms[j] = Coefficient{Name: names[j], Coef: b}
	}

	if len(active) > 0 {
		_, hess := pr.smooth(ev, beta)
		info := mat.NewSymDense(len(active), nil)
		for a, j := range active {
			for b := a; b < len(active); b++ {
				k := active[b]
				v := pr.n * hess.At(j, k)
				if a == b && l1 > 0 {
					v += pr.n * l1 / math.Abs(beta[j])
				}
				info.SetSym(a, b, v)
			}
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(info); !ok {
			return nil, fmt.Errorf("%w: information matrix over %d active coefficients", core.ErrSingularHessian, len(active))
		}
		// an ill-conditioned but factorizable information matrix still
		// yields usable variances; the per-coefficient check below catches
		// the rest
		var cov mat.SymDense
		if err := chol.InverseTo(&cov); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
				return nil, fmt.Errorf("%w: %v", core.ErrSingularHessian, err)
			}
		}
		for a, j := range active {
			v := cov.At(a, a)
			if !(v > 0) || !finite(v) {
				return nil, fmt.Errorf("%w: variance of %s is %g", core.ErrSingularHessian, names[j], v)
			}
			terms[j].SE = math.Sqrt(v)
			terms[j].Z = beta[j] / terms[j].SE
			terms[j].P = twoSidedP(terms[j].Z)
			terms[j].Active = true
		}
	}
	for j := range terms {
		if !terms[j].Active {
			terms[j].P = 1
		}
	}

	return &Model{
		Terms:         terms,
		Iterations:    iter,
		LogLikelihood: ev.loglik,
		Penalty:       pr.penalty,
	}, nil
}

func validateInputs(x *mat.Dense, names []string, durations []float64, events []bool, penalty Penalty) error {
	if x == nil {
		return core.NewInputError("design matrix is nil")
	}
	n, p := x.Dims()
	if n == 0 || p == 0 {
		return fmt.Errorf("%w: design matrix is %dx%d", core.ErrDegenerateDesignMatrix, n, p)
	}
	if len(names) != p {
		return core.NewInputError(fmt.Sprintf("%d names for %d columns", len(names), p))
	}
	if len(durations) != n || len(events) != n {
		return core.NewInputError(fmt.Sprintf("%d rows but %d durations and %d events", n, len(durations), len(events)))
	}
	if !(penalty.Strength >= 0) || math.IsInf(penalty.Strength, 0) {
		return core.NewInputError(fmt.Sprintf("penalty strength %g must be finite and non-negative", penalty.Strength))
	}
	if !(penalty.L1Ratio >= 0 && penalty.L1Ratio <= 1) {
		return core.NewInputError(fmt.Sprintf("l1 ratio %g outside [0, 1]", penalty.L1Ratio))
	}
	anyEvent := false
	for i, e := range events {
		if !finite(durations[i]) {
			return core.NewInputError(fmt.Sprintf("duration %d is not finite", i))
		}
		anyEvent = anyEvent || e
	}
	if !anyEvent {
		return core.NewInputError("no events in the fitting sample")
	}
	for i := 0; i < n; i++ {
		for _, v := range x.RawRowView(i) {
			if !finite(v) {
				return core.NewInputError(fmt.Sprintf("design row %d has a non-finite value", i))
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
