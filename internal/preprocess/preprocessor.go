// Package preprocess fits fold-local covariate transforms on a training
// frame and replays them, frozen, on the matching test frame.
package preprocess

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
)

// Preprocessor holds the policy knobs; it carries no fitted state
type Preprocessor struct {
	SkewThreshold float64
}

// NewPreprocessor creates a preprocessor with the given skew threshold
func NewPreprocessor(skewThreshold float64) *Preprocessor {
	return &Preprocessor{SkewThreshold: skewThreshold}
}

// ColumnScaler is the affine map plus optional log compression fitted for one
// numeric column
type ColumnScaler struct {
	Column string
	Mean   float64
	Scale  float64
	Skew   float64
	Log    bool
}

// Transform is the frozen result of Fit. It can only be applied.
type Transform struct {
	dropped []string
	scalers []ColumnScaler
}

// Dropped lists the zero-variance columns removed by this transform
func (t *Transform) Dropped() []string { return append([]string(nil), t.dropped...) }

// Scalers returns the fitted per-column parameters
func (t *Transform) Scalers() []ColumnScaler { return append([]ColumnScaler(nil), t.scalers...) }

// LogTransformed lists the columns that receive sign-preserving log compression
func (t *Transform) LogTransformed() []string {
	var out []string
	for _, s := range t.scalers {
		if s.Log {
			out = append(out, s.Column)
		}
	}
	return out
}

// Fit computes every statistic from the training frame only. The frame is
// not modified.
func (p *Preprocessor) Fit(train *dataset.Frame) (*Transform, error) {
	if train.Len() == 0 {
		return nil, core.NewInputError("cannot fit preprocessing on an empty training frame")
	}

	t := &Transform{}
	for _, col := range train.Columns() {
		if isConstant(col.Values) {
			t.dropped = append(t.dropped, col.Name)
			continue
		}
		if col.Kind != dataset.KindNumeric {
			continue
		}

		mean, err := stats.Mean(col.Values)
		if err != nil {
			return nil, fmt.Errorf("mean of %s: %w", col.Name, err)
		}
		scale, err := stats.StandardDeviationPopulation(col.Values)
		if err != nil {
			return nil, fmt.Errorf("standard deviation of %s: %w", col.Name, err)
		}
		if scale == 0 || math.IsNaN(scale) {
			scale = 1
		}

		standardized := make([]float64, len(col.Values))
		for i, v := range col.Values {
			standardized[i] = (v - mean) / scale
		}
		skew := 0.0
		if len(standardized) > 2 {
			skew = stat.Skew(standardized, nil)
		}

		t.scalers = append(t.scalers, ColumnScaler{
			Column: col.Name,
			Mean:   mean,
			Scale:  scale,
			Skew:   skew,
			Log:    math.Abs(skew) > p.SkewThreshold,
		})
	}

	return t, nil
}

// Apply drops the fitted zero-variance columns and rewrites numeric columns
// in place using the training parameters
func (t *Transform) Apply(frame *dataset.Frame) error {
	frame.Drop(t.dropped...)

	for _, s := range t.scalers {
		col, ok := frame.Column(s.Column)
		if !ok {
			return core.NewColumnNotFoundError(s.Column)
		}
		out := make([]float64, len(col.Values))
		for i, v := range col.Values {
			z := (v - s.Mean) / s.Scale
			if s.Log {
				z = signedLog1p(z)
			}
			out[i] = z
		}
		if err := frame.Set(s.Column, out); err != nil {
			return err
		}
	}
	return nil
}

// FitApply fits on train, then applies the same transform to train and test
func (p *Preprocessor) FitApply(train, test *dataset.Frame) (*Transform, error) {
	t, err := p.Fit(train)
	if err != nil {
		return nil, err
	}
	if err := t.Apply(train); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if err := t.Apply(test); err != nil {
		return nil, fmt.Errorf("test: %w", err)
	}
	return t, nil
}

func signedLog1p(x float64) float64 {
	if x < 0 {
		return -math.Log1p(-x)
	}
	return math.Log1p(x)
}

// isConstant reports zero training variance: every value identical. A
// single observation counts as constant.
func isConstant(values []float64) bool {
	if len(values) < 2 {
		return true
	}
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
