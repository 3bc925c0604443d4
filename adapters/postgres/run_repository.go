package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"gosurv/domain/core"
	"gosurv/domain/run"
	"gosurv/internal/errors"
	"gosurv/models"
	"gosurv/ports"
)

// RunRepositoryImpl stores runs in cv_runs and cv_fold_results. Queries
// are written with '?' placeholders and rebound for the driver, so the
// same code serves postgres and sqlite3.
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepositoryPort {
	return &RunRepositoryImpl{db: db}
}

// SaveRun inserts the run and its folds in one transaction
func (r *RunRepositoryImpl) SaveRun(ctx context.Context, cv *run.Run) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	rec, err := toRunRecord(cv)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cv_runs (id, created_at, dataset_name, subjects, events, folds, seed, fingerprint,
			mean_c_index, std_c_index, elapsed_ms, config, manifest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), rec.ID, rec.CreatedAt, rec.DatasetName, rec.Subjects, rec.Events, rec.Folds, rec.Seed, rec.Fingerprint,
		rec.MeanCIndex, rec.StdCIndex, rec.ElapsedMS, rec.Config, rec.Manifest)
	if err != nil {
		return errors.DatabaseError(fmt.Sprintf("failed to insert run %s", cv.ID), err)
	}

	for _, f := range cv.Folds {
		fr := toFoldRecord(cv.ID, f)
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO cv_fold_results (run_id, fold, train_size, test_size, train_events, test_events,
				design_columns, l1_iterations, l2_iterations, retries, c_index, elapsed_ms,
				dropped, log_transformed, spline_targets, selected)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`), fr.RunID, fr.Fold, fr.TrainSize, fr.TestSize, fr.TrainEvents, fr.TestEvents,
			fr.DesignColumns, fr.L1Iterations, fr.L2Iterations, fr.Retries, fr.CIndex, fr.ElapsedMS,
			fr.Dropped, fr.LogTransformed, fr.SplineTargets, fr.Selected)
		if err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to insert fold %d of run %s", f.Fold+1, cv.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit run", err)
	}
	return nil
}

// GetRun loads one run with its folds
func (r *RunRepositoryImpl) GetRun(ctx context.Context, id core.RunID) (*run.Run, error) {
	var rec models.RunRecord
	err := r.db.GetContext(ctx, &rec, r.db.Rebind(`
		SELECT id, created_at, dataset_name, subjects, events, folds, seed, fingerprint,
			mean_c_index, std_c_index, elapsed_ms, config, manifest
		FROM cv_runs WHERE id = ?
	`), id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound(fmt.Sprintf("run %s", id))
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to load run", err)
	}

	var folds []models.FoldRecord
	err = r.db.SelectContext(ctx, &folds, r.db.Rebind(`
		SELECT run_id, fold, train_size, test_size, train_events, test_events, design_columns,
			l1_iterations, l2_iterations, retries, c_index, elapsed_ms,
			dropped, log_transformed, spline_targets, selected
		FROM cv_fold_results WHERE run_id = ? ORDER BY fold
	`), id.String())
	if err != nil {
		return nil, errors.DatabaseError("failed to load fold results", err)
	}

	cv, err := fromRunRecord(rec)
	if err != nil {
		return nil, err
	}
	for _, f := range folds {
		cv.Folds = append(cv.Folds, fromFoldRecord(f))
	}
	cv.Summary.Scores = cv.Scores()
	return cv, nil
}

// ListRuns returns the most recent runs first, without fold details
func (r *RunRepositoryImpl) ListRuns(ctx context.Context, limit int) ([]*run.Run, error) {
	query := `
		SELECT id, created_at, dataset_name, subjects, events, folds, seed, fingerprint,
			mean_c_index, std_c_index, elapsed_ms, config, manifest
		FROM cv_runs
		ORDER BY created_at DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var recs []models.RunRecord
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), args...); err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}

	runs := make([]*run.Run, 0, len(recs))
	for _, rec := range recs {
		cv, err := fromRunRecord(rec)
		if err != nil {
			return nil, err
		}
		runs = append(runs, cv)
	}
	return runs, nil
}

func toRunRecord(cv *run.Run) (models.RunRecord, error) {
	var manifest models.JSONText
	if cv.Manifest != nil {
		b, err := json.Marshal(cv.Manifest)
		if err != nil {
			return models.RunRecord{}, errors.Wrapf(err, "failed to encode manifest of run %s", cv.ID)
		}
		manifest = b
	}
	return models.RunRecord{
		ID:          cv.ID.String(),
		CreatedAt:   cv.CreatedAt.UTC(),
		DatasetName: cv.DatasetName,
		Subjects:    cv.Subjects,
		Events:      cv.Events,
		Folds:       len(cv.Folds),
		Seed:        cv.Seed,
		Fingerprint: cv.Fingerprint.String(),
		MeanCIndex:  cv.Summary.Mean,
		StdCIndex:   cv.Summary.StdDev,
		ElapsedMS:   cv.Elapsed.Milliseconds(),
		Config:      models.JSONText(cv.Config),
		Manifest:    manifest,
	}, nil
}

func fromRunRecord(rec models.RunRecord) (*run.Run, error) {
	cv := &run.Run{
		ID:          core.RunID(rec.ID),
		CreatedAt:   rec.CreatedAt,
		DatasetName: rec.DatasetName,
		Subjects:    rec.Subjects,
		Events:      rec.Events,
		Seed:        rec.Seed,
		Config:      []byte(rec.Config),
		Fingerprint: core.Hash(rec.Fingerprint),
		Summary:     run.Summary{Mean: rec.MeanCIndex, StdDev: rec.StdCIndex},
		Elapsed:     time.Duration(rec.ElapsedMS) * time.Millisecond,
	}
	if len(rec.Manifest) > 0 && string(rec.Manifest) != "null" {
		cv.Manifest = &run.Manifest{}
		if err := json.Unmarshal(rec.Manifest, cv.Manifest); err != nil {
			return nil, errors.DatabaseError(fmt.Sprintf("corrupt manifest for run %s", rec.ID), err)
		}
	}
	return cv, nil
}

func toFoldRecord(id core.RunID, f run.FoldResult) models.FoldRecord {
	return models.FoldRecord{
		RunID:          id.String(),
		Fold:           f.Fold,
		TrainSize:      f.TrainSize,
		TestSize:       f.TestSize,
		TrainEvents:    f.TrainEvents,
		TestEvents:     f.TestEvents,
		DesignColumns:  f.DesignColumns,
		L1Iterations:   f.L1Iterations,
		L2Iterations:   f.L2Iterations,
		Retries:        f.Retries,
		CIndex:         f.CIndex,
		ElapsedMS:      f.Elapsed.Milliseconds(),
		Dropped:        f.Dropped,
		LogTransformed: f.LogTransformed,
		SplineTargets:  f.SplineTargets,
		Selected:       f.Selected,
	}
}

func fromFoldRecord(f models.FoldRecord) run.FoldResult {
	return run.FoldResult{
		Fold:           f.Fold,
		TrainSize:      f.TrainSize,
		TestSize:       f.TestSize,
		TrainEvents:    f.TrainEvents,
		TestEvents:     f.TestEvents,
		Dropped:        f.Dropped,
		LogTransformed: f.LogTransformed,
		SplineTargets:  f.SplineTargets,
		DesignColumns:  f.DesignColumns,
		Selected:       f.Selected,
		L1Iterations:   f.L1Iterations,
		L2Iterations:   f.L2Iterations,
		Retries:        f.Retries,
		CIndex:         f.CIndex,
		Elapsed:        time.Duration(f.ElapsedMS) * time.Millisecond,
	}
}
