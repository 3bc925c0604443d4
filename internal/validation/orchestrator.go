// Package validation runs k-fold cross-validation of the two-stage
// penalized Cox pipeline. Every fold fits its own preprocessing, basis and
// models from its training slice; nothing fitted in one fold is visible to
// another.
package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/domain/run"
	"gosurv/internal"
	"gosurv/internal/config"
	"gosurv/internal/cox"
	"gosurv/internal/design"
	"gosurv/internal/evaluation"
	"gosurv/internal/folds"
	"gosurv/internal/metrics"
	"gosurv/internal/preprocess"
	"gosurv/internal/selection"
)

// Result is the outcome of one cross-validation pass
type Result struct {
	Folds       []run.FoldResult
	Summary     run.Summary
	Fingerprint core.Hash
}

// Orchestrator drives the per-fold stage sequence
// split → preprocess → design → fit_l1 → select → fit_l2 → predict → score
// and aggregates the fold scores
type Orchestrator struct {
	cfg     config.PipelineConfig
	logger  *internal.Logger
	metrics *metrics.CV

	splitter     *folds.Splitter
	preprocessor *preprocess.Preprocessor
	builder      *design.Builder
	fitter       *cox.Fitter
	selector     *selection.Selector

	l1 cox.Penalty
	l2 cox.Penalty
}

// NewOrchestrator validates cfg and wires the pipeline components. A nil
// logger falls back to LOG_LEVEL; nil metrics record nothing.
func NewOrchestrator(cfg config.PipelineConfig, logger *internal.Logger, m *metrics.CV) (*Orchestrator, error) {
	if err := config.ValidatePipeline(cfg); err != nil {
		return nil, err
	}
	ties, err := cox.ParseTies(cfg.Ties)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = internal.NewDefaultLogger()
	}

	return &Orchestrator{
		cfg:          cfg,
		logger:       logger,
		metrics:      m,
		splitter:     folds.NewSplitter(cfg.Folds, cfg.Seed),
		preprocessor: preprocess.NewPreprocessor(cfg.SkewThreshold),
		builder:      design.NewBuilder(cfg.SplineTargets, cfg.SplineDF, cfg.MinDistinct),
		fitter:       cox.NewFitter(cfg.MaxIter, cfg.Tolerance, ties),
		selector:     selection.NewSelector(cfg.SelectTopK),
		l1:           cox.Penalty{Strength: cfg.L1Strength, L1Ratio: cfg.L1Ratio},
		l2:           cox.Penalty{Strength: cfg.L2Strength, L1Ratio: cfg.L2Ratio},
	}, nil
}

// Config returns the configuration the orchestrator was built with
func (o *Orchestrator) Config() config.PipelineConfig { return o.cfg }

// Run cross-validates ds. Any fold failure aborts the run with a
// *core.StageError naming the fold and stage; no fold is ever skipped.
func (o *Orchestrator) Run(ctx context.Context, ds *dataset.Dataset) (res *Result, err error) {
	defer func() {
		mean := 0.0
		if res != nil {
			mean = res.Summary.Mean
		}
		o.metrics.RunFinished(err, mean)
	}()

	if ds == nil {
		return nil, core.NewInputError("dataset is nil")
	}

	assignments, err := o.splitter.Split(ds.Len())
	if err != nil {
		o.metrics.StageFailed(string(core.StageSplit))
		return nil, core.NewStageError(-1, core.StageSplit, err)
	}
	fingerprint := core.ComputeFoldHash(ds.Len(), o.cfg.Seed, folds.TestBlocks(assignments))
	o.logger.Info("Cross-validating %s: %d subjects, %d events, %d folds, seed %d (folds %s)",
		ds.Name(), ds.Len(), ds.EventCount(), len(assignments), o.cfg.Seed, fingerprint.Short())

	results := make([]run.FoldResult, len(assignments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for _, fold := range assignments {
		g.Go(func() error {
			r, err := o.runFold(gctx, ds, fold, len(assignments))
			if err != nil {
				return err
			}
			results[fold.Index] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if se, ok := core.AsStageError(err); ok {
			o.metrics.StageFailed(string(se.Stage))
			o.logger.Error("Cross-validation aborted: %v", se)
		}
		return nil, err
	}

	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.CIndex
	}
	summary, err := evaluation.Summarize(scores)
	if err != nil {
		o.metrics.StageFailed(string(core.StageAggregate))
		return nil, core.NewStageError(-1, core.StageAggregate, err)
	}
	o.logger.Info("Mean C-index over %d folds: %.4f ± %.4f", len(scores), summary.Mean, summary.StdDev)

	return &Result{Folds: results, Summary: summary, Fingerprint: fingerprint}, nil
}

// runFold executes one fold's stages on private copies of its slices
func (o *Orchestrator) runFold(ctx context.Context, ds *dataset.Dataset, fold folds.Fold, k int) (run.FoldResult, error) {
	start := time.Now()
	log := o.logger.With(fmt.Sprintf("fold %d/%d", fold.Index+1, k))
	out := run.FoldResult{Fold: fold.Index}

	fail := func(stage core.Stage, err error) (run.FoldResult, error) {
		return run.FoldResult{}, core.NewStageError(fold.Index, stage, err)
	}
	step := func(stage core.Stage) error {
		if err := ctx.Err(); err != nil {
			return core.NewStageError(fold.Index, stage, err)
		}
		log.Trace("stage %s", stage)
		return nil
	}

	log.Info("Fold %d/%d", fold.Index+1, k)

	if err := step(core.StageSplit); err != nil {
		return out, err
	}
	train, err := ds.Slice(fold.Train)
	if err != nil {
		return fail(core.StageSplit, err)
	}
	test, err := ds.Slice(fold.Test)
	if err != nil {
		return fail(core.StageSplit, err)
	}
	out.TrainSize, out.TestSize = train.Len(), test.Len()
	out.TrainEvents, out.TestEvents = train.EventCount(), test.EventCount()

	if err := step(core.StagePreprocess); err != nil {
		return out, err
	}
	transform, err := o.preprocessor.FitApply(train, test)
	if err != nil {
		return fail(core.StagePreprocess, err)
	}
	out.Dropped = transform.Dropped()
	out.LogTransformed = transform.LogTransformed()
	if len(out.Dropped) > 0 {
		log.Debug("dropped zero-variance columns %v", out.Dropped)
	}

	if err := step(core.StageDesign); err != nil {
		return out, err
	}
	basis, xTrain, xTest, err := o.builder.Build(train, test)
	if err != nil {
		return fail(core.StageDesign, err)
	}
	out.SplineTargets = basis.SplineColumns()
	_, out.DesignColumns = xTrain.Dims()
	log.Debug("design: %d columns, %d spline targets", out.DesignColumns, len(out.SplineTargets))

	if err := step(core.StageFitL1); err != nil {
		return out, err
	}
	l1Model, retries, err := o.fit(log, xTrain, train, o.l1)
	if err != nil {
		return fail(core.StageFitL1, err)
	}
	out.L1Iterations = l1Model.Iterations
	out.Retries += retries

	if err := step(core.StageSelect); err != nil {
		return out, err
	}
	out.Selected = o.selector.Select(l1Model)
	if len(out.Selected) == 0 {
		return fail(core.StageSelect, fmt.Errorf("%w: L1 fit (%s) kept no coefficients", core.ErrDegenerateDesignMatrix, o.l1))
	}
	log.Debug("selected %d of %d columns", len(out.Selected), l1Model.ActiveCount())
	selTrain, err := xTrain.Select(out.Selected)
	if err != nil {
		return fail(core.StageSelect, err)
	}
	selTest, err := xTest.Select(out.Selected)
	if err != nil {
		return fail(core.StageSelect, err)
	}

	if err := step(core.StageFitL2); err != nil {
		return out, err
	}
	l2Model, retries, err := o.fit(log, selTrain, train, o.l2)
	if err != nil {
		return fail(core.StageFitL2, err)
	}
	out.L2Iterations = l2Model.Iterations
	out.Retries += retries

	if err := step(core.StagePredict); err != nil {
		return out, err
	}
	risks, err := riskScores(l2Model, selTest.Data)
	if err != nil {
		return fail(core.StagePredict, err)
	}

	if err := step(core.StageScore); err != nil {
		return out, err
	}
	c, err := evaluation.ConcordanceIndex(test.Durations(), risks, test.Events())
	if err != nil {
		return fail(core.StageScore, err)
	}
	out.CIndex = c
	out.Elapsed = time.Since(start)

	log.Info("Fold %d C-index = %.4f", fold.Index+1, c)
	o.metrics.FoldCompleted(out.Elapsed, c)
	return out, nil
}

// riskScores ranks test subjects by Xβ. Concordance only needs the order,
// and exp(Xβ) overflows to +Inf for large linear predictors.
func riskScores(m *cox.Model, x *mat.Dense) ([]float64, error) {
	return m.LinearPredictor(x)
}

// fit runs one penalized fit. With RetryOnNonConvergence > 0 a
// non-converged fit is retried with the strength scaled by
// RetryPenaltyFactor, each retry logged at WARN.
func (o *Orchestrator) fit(log *internal.Logger, x *design.Matrix, train *dataset.Frame, penalty cox.Penalty) (*cox.Model, int, error) {
	retries := 0
	for {
		m, err := o.fitter.Fit(x.Data, x.Columns, train.Durations(), train.Events(), penalty)
		if err == nil {
			return m, retries, nil
		}
		if !errors.Is(err, core.ErrNonConvergence) || retries >= o.cfg.RetryOnNonConvergence {
			return nil, retries, err
		}
		retries++
		next := penalty.Scaled(o.cfg.RetryPenaltyFactor)
		log.Warn("fit with %s did not converge (%v); retry %d/%d with %s",
			penalty, err, retries, o.cfg.RetryOnNonConvergence, next)
		o.metrics.FitRetried()
		penalty = next
	}
}
