package ports

import (
	"context"

	"gosurv/domain/core"
	"gosurv/domain/run"
)

// RunRepositoryPort persists completed cross-validation runs
type RunRepositoryPort interface {
	// SaveRun stores a run with all of its fold results
	SaveRun(ctx context.Context, r *run.Run) error

	// GetRun loads one run with its folds
	GetRun(ctx context.Context, id core.RunID) (*run.Run, error)

	// ListRuns returns the most recent runs first, without fold details
	ListRuns(ctx context.Context, limit int) ([]*run.Run, error)
}
