package migration

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"gosurv/internal/errors"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations for postgres and
// sqlite3
type MigrationRunner struct {
	version string
}

var _ Migrator = (*MigrationRunner)(nil)

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	d := dialectFor(db.DriverName())

	if err := r.createRunsTable(ctx, db, d); err != nil {
		return errors.Wrap(err, "failed to create cv_runs table")
	}

	if err := r.createFoldResultsTable(ctx, db, d); err != nil {
		return errors.Wrap(err, "failed to create cv_fold_results table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

// dialect holds the column types that differ between drivers
type dialect struct {
	json      string
	timestamp string
	float     string
}

func dialectFor(driver string) dialect {
	if strings.HasPrefix(driver, "sqlite") {
		return dialect{json: "TEXT", timestamp: "TIMESTAMP", float: "REAL"}
	}
	return dialect{json: "JSONB", timestamp: "TIMESTAMP WITH TIME ZONE", float: "DOUBLE PRECISION"}
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB, d dialect) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cv_runs (
			id VARCHAR(36) PRIMARY KEY,
			created_at `+d.timestamp+` NOT NULL,
			dataset_name TEXT NOT NULL,
			subjects INTEGER NOT NULL,
			events INTEGER NOT NULL,
			folds INTEGER NOT NULL,
			seed BIGINT NOT NULL,
			fingerprint VARCHAR(64) NOT NULL,
			mean_c_index `+d.float+` NOT NULL,
			std_c_index `+d.float+` NOT NULL,
			elapsed_ms BIGINT NOT NULL,
			config `+d.json+`,
			manifest `+d.json+`
		)
	`)
	return err
}

func (r *MigrationRunner) createFoldResultsTable(ctx context.Context, db *sqlx.DB, d dialect) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cv_fold_results (
			run_id VARCHAR(36) NOT NULL REFERENCES cv_runs(id) ON DELETE CASCADE,
			fold INTEGER NOT NULL,
			train_size INTEGER NOT NULL,
			test_size INTEGER NOT NULL,
			train_events INTEGER NOT NULL,
			test_events INTEGER NOT NULL,
			design_columns INTEGER NOT NULL,
			l1_iterations INTEGER NOT NULL,
			l2_iterations INTEGER NOT NULL,
			retries INTEGER NOT NULL DEFAULT 0,
			c_index `+d.float+` NOT NULL,
			elapsed_ms BIGINT NOT NULL,
			dropped `+d.json+`,
			log_transformed `+d.json+`,
			spline_targets `+d.json+`,
			selected `+d.json+`,
			PRIMARY KEY (run_id, fold)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_cv_runs_created_at ON cv_runs(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_cv_runs_fingerprint ON cv_runs(fingerprint)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
