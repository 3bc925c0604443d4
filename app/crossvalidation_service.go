package app

import (
	"context"
	"encoding/json"
	"time"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/domain/run"
	"gosurv/internal"
	"gosurv/internal/config"
	"gosurv/internal/errors"
	"gosurv/internal/metrics"
	"gosurv/internal/validation"
	"gosurv/ports"
)

// CodeVersion is recorded in every run manifest
const CodeVersion = "0.1.0"

// CrossValidationService loads a dataset, cross-validates it and optionally
// records the run
type CrossValidationService struct {
	repo    ports.RunRepositoryPort
	logger  *internal.Logger
	metrics *metrics.CV
}

// CrossValidationRequest defines the inputs of one run. Dataset wins over
// Loader when both are set.
type CrossValidationRequest struct {
	Loader   ports.DatasetLoaderPort
	Dataset  *dataset.Dataset
	Pipeline config.PipelineConfig
	Persist  bool
}

// NewCrossValidationService creates the service. repo may be nil, in which
// case runs are never stored and lookups fail with CONFIG_INVALID.
func NewCrossValidationService(repo ports.RunRepositoryPort, logger *internal.Logger, m *metrics.CV) *CrossValidationService {
	if logger == nil {
		logger = internal.NewDefaultLogger()
	}
	return &CrossValidationService{repo: repo, logger: logger, metrics: m}
}

// HasRepository reports whether runs can be stored and looked up
func (s *CrossValidationService) HasRepository() bool { return s.repo != nil }

// RunCrossValidation executes the full pipeline and returns the completed run
func (s *CrossValidationService) RunCrossValidation(ctx context.Context, req CrossValidationRequest) (*run.Run, error) {
	startTime := time.Now()

	ds := req.Dataset
	if ds == nil {
		if req.Loader == nil {
			return nil, errors.InvalidInput("request has neither a dataset nor a loader")
		}
		var err error
		if ds, err = req.Loader.Load(ctx); err != nil {
			return nil, err
		}
	}

	orchestrator, err := validation.NewOrchestrator(req.Pipeline, s.logger, s.metrics)
	if err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(req.Pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "failed to snapshot pipeline configuration")
	}

	result, err := orchestrator.Run(ctx, ds)
	if err != nil {
		return nil, errors.Wrapf(err, "cross-validation of %s failed", ds.Name())
	}

	runID := core.NewRunID()
	manifest := run.NewManifest(runID, ds.Fingerprint(), result.Fingerprint, snapshot, req.Pipeline.Seed, CodeVersion, startTime.UTC())
	if err := manifest.Validate(); err != nil {
		return nil, errors.Wrap(err, "incomplete run manifest")
	}

	cv := &run.Run{
		ID:          runID,
		CreatedAt:   startTime.UTC(),
		DatasetName: ds.Name(),
		Subjects:    ds.Len(),
		Events:      ds.EventCount(),
		Seed:        req.Pipeline.Seed,
		Config:      snapshot,
		Fingerprint: manifest.Fingerprint,
		Manifest:    manifest,
		Folds:       result.Folds,
		Summary:     result.Summary,
		Elapsed:     time.Since(startTime),
	}

	if req.Persist {
		if s.repo == nil {
			return cv, errors.ConfigInvalid("run persistence requested but no database is configured")
		}
		if err := s.repo.SaveRun(ctx, cv); err != nil {
			return cv, err
		}
		s.logger.Info("Stored run %s", cv.ID)
	}
	return cv, nil
}

// GetRun looks up a stored run
func (s *CrossValidationService) GetRun(ctx context.Context, id core.RunID) (*run.Run, error) {
	if s.repo == nil {
		return nil, errors.ConfigInvalid("no database is configured")
	}
	return s.repo.GetRun(ctx, id)
}

// ListRuns returns the most recent stored runs
func (s *CrossValidationService) ListRuns(ctx context.Context, limit int) ([]*run.Run, error) {
	if s.repo == nil {
		return nil, errors.ConfigInvalid("no database is configured")
	}
	return s.repo.ListRuns(ctx, limit)
}
