package container

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"gosurv/adapters/postgres"
	"gosurv/app"
	"gosurv/internal"
	"gosurv/internal/config"
	"gosurv/internal/errors"
	"gosurv/internal/metrics"
	"gosurv/internal/migration"
	"gosurv/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB       *sqlx.DB
	Registry *prometheus.Registry
	Metrics  *metrics.CV

	// Repositories (data access layer); nil when no database is configured
	RunRepo ports.RunRepositoryPort

	Service *app.CrossValidationService
}

// New creates a new dependency injection container. The database is not
// touched until InitDatabase.
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.NewDefaultLogger()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.NewCV(reg),
	}
	c.Service = app.NewCrossValidationService(nil, logger, c.Metrics)
	return c, nil
}

// InitDatabase connects, migrates and wires the run repository. It is a
// no-op when DATABASE_URL is empty.
func (c *Container) InitDatabase(ctx context.Context) error {
	if c.Config.Database.URL == "" {
		c.Logger.Debug("no DATABASE_URL configured, runs will not be stored")
		return nil
	}

	db, err := Connect(ctx, c.Config.Database)
	if err != nil {
		return err
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return errors.Wrap(err, "database migration failed")
	}

	c.DB = db
	c.RunRepo = postgres.NewRunRepository(db)
	c.Service = app.NewCrossValidationService(c.RunRepo, c.Logger, c.Metrics)
	c.Logger.Info("Connected to %s database, schema %s", c.Config.Database.Driver, migration.NewRunner().Version())
	return nil
}

// Connect opens and pings a database. SQLite connections are serialized
// onto one handle so in-memory databases stay shared.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.URL == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.URL)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	if cfg.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
