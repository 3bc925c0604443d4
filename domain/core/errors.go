package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Cross-validation setup errors
	ErrInvalidFoldCount = errors.New("invalid fold count")
	ErrInvalidDataset   = errors.New("invalid dataset")
	ErrInvalidInput     = errors.New("invalid input")
	ErrColumnNotFound   = errors.New("column not found")

	// Modeling errors
	ErrDegenerateDesignMatrix = errors.New("degenerate design matrix")
	ErrNonConvergence         = errors.New("optimization did not converge")
	ErrSingularHessian        = errors.New("singular hessian")

	// Evaluation errors
	ErrEmptyComparablePairs = errors.New("no comparable pairs for concordance")
)

// Stage names a step of the per-fold pipeline
type Stage string

const (
	StageSplit      Stage = "split"
	StagePreprocess Stage = "preprocess"
	StageDesign     Stage = "design"
	StageFitL1      Stage = "fit_l1"
	StageSelect     Stage = "select"
	StageFitL2      Stage = "fit_l2"
	StagePredict    Stage = "predict"
	StageScore      Stage = "score"
	StageAggregate  Stage = "aggregate"
)

// StageError attributes a failure to the fold and stage where it happened.
// Fold is zero-based; -1 means the failure is not tied to a single fold.
type StageError struct {
	Fold  int
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e.Fold < 0 {
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("fold %d stage %s: %v", e.Fold+1, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with fold and stage context
func NewStageError(fold int, stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Fold: fold, Stage: stage, Err: err}
}

// Error constructors with context
func NewFoldCountError(k, n int) error {
	return fmt.Errorf("%w: k=%d for n=%d subjects (need 2 <= k <= n)", ErrInvalidFoldCount, k, n)
}

func NewColumnNotFoundError(name string) error {
	return fmt.Errorf("%w: %s", ErrColumnNotFound, name)
}

func NewDatasetError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidDataset, reason)
}

func NewInputError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

// Error checking helpers
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func IsModelError(err error) bool {
	return errors.Is(err, ErrNonConvergence) ||
		errors.Is(err, ErrSingularHessian) ||
		errors.Is(err, ErrDegenerateDesignMatrix)
}

func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidDataset) ||
		errors.Is(err, ErrInvalidFoldCount) ||
		errors.Is(err, ErrColumnNotFound)
}
