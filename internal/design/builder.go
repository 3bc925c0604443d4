// Package design turns a preprocessed frame into a numeric design matrix:
// cubic spline expansions for the highest-variance continuous covariates
// plus a linear term for every covariate.
package design

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
)

// Builder selects spline targets and fits the formula basis
type Builder struct {
	SplineTargets int
	SplineDF      int
	MinDistinct   int
}

// NewBuilder creates a builder; targets is the spline-target cap, df the
// spline degrees of freedom and minDistinct the distinct-value floor for a
// covariate to count as continuous
func NewBuilder(targets, df, minDistinct int) *Builder {
	return &Builder{SplineTargets: targets, SplineDF: df, MinDistinct: minDistinct}
}

type candidate struct {
	name     string
	position int
	variance float64
}

// Fit derives the formula from the training frame only
func (b *Builder) Fit(train *dataset.Frame) (*Basis, error) {
	columns := train.Columns()
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no covariates left after preprocessing", core.ErrDegenerateDesignMatrix)
	}

	candidates := make([]candidate, 0, len(columns))
	for i, col := range columns {
		if col.Kind != dataset.KindNumeric || distinctCount(col.Values) < b.MinDistinct {
			continue
		}
		v, err := stats.SampleVariance(col.Values)
		if err != nil {
			return nil, fmt.Errorf("variance of %s: %w", col.Name, err)
		}
		candidates = append(candidates, candidate{name: col.Name, position: i, variance: v})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].variance > candidates[j].variance
	})
	if len(candidates) > b.SplineTargets {
		candidates = candidates[:b.SplineTargets]
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no continuous covariate with at least %d distinct values", core.ErrDegenerateDesignMatrix, b.MinDistinct)
	}

	basis := &Basis{}
	for _, c := range candidates {
		col := columns[c.position]
		spline, err := FitBSpline(col.Values, b.SplineDF)
		if err != nil {
			return nil, fmt.Errorf("spline for %s: %w", c.name, err)
		}
		basis.Terms = append(basis.Terms, Term{Kind: TermSpline, Column: c.name, Spline: spline})
	}
	for _, col := range columns {
		basis.Terms = append(basis.Terms, Term{Kind: TermLinear, Column: col.Name})
	}

	return basis, nil
}

// Build fits the basis on train and evaluates it on both frames
func (b *Builder) Build(train, test *dataset.Frame) (*Basis, *Matrix, *Matrix, error) {
	basis, err := b.Fit(train)
	if err != nil {
		return nil, nil, nil, err
	}
	xTrain, err := basis.Transform(train)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("train matrix: %w", err)
	}
	xTest, err := basis.Transform(test)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("test matrix: %w", err)
	}
	return basis, xTrain, xTest, nil
}

func distinctCount(values []float64) int {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
