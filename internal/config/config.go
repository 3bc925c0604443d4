package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"gosurv/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Pipeline PipelineConfig
	Data     DataConfig
	Database DatabaseConfig
	Server   ServerConfig
}

// PipelineConfig enumerates every tunable of the cross-validation pipeline.
// It is passed by value into the orchestrator; nothing reads it globally.
type PipelineConfig struct {
	Folds int   `json:"folds" validate:"gte=2"`
	Seed  int64 `json:"seed"`

	L1Strength float64 `json:"l1_strength" validate:"gte=0"`
	L1Ratio    float64 `json:"l1_ratio" validate:"gte=0,lte=1"`
	L2Strength float64 `json:"l2_strength" validate:"gte=0"`
	L2Ratio    float64 `json:"l2_ratio" validate:"gte=0,lte=1"`

	SplineTargets int     `json:"spline_targets" validate:"gte=1"`
	SplineDF      int     `json:"spline_df" validate:"gte=3"`
	MinDistinct   int     `json:"min_distinct" validate:"gte=2"`
	SelectTopK    int     `json:"select_top_k" validate:"gte=1"`
	SkewThreshold float64 `json:"skew_threshold" validate:"gte=0"`

	MaxIter   int     `json:"max_iter" validate:"gte=1"`
	Tolerance float64 `json:"tolerance" validate:"gt=0"`
	Ties      string  `json:"ties" validate:"oneof=efron breslow"`

	Workers               int     `json:"workers" validate:"gte=1"`
	RetryOnNonConvergence int     `json:"retry_on_nonconvergence" validate:"gte=0"`
	RetryPenaltyFactor    float64 `json:"retry_penalty_factor" validate:"gt=0"`
}

// DataConfig describes where the subject table comes from and how its raw
// columns map onto the survival schema
type DataConfig struct {
	File               string
	Sheet              string
	DurationColumn     string `validate:"required"`
	EventColumn        string `validate:"required"`
	WeightColumn       string
	DropColumns        []string
	CategoricalColumns []string
}

// DatabaseConfig holds database connection settings; an empty URL disables persistence
type DatabaseConfig struct {
	Driver string `validate:"oneof=postgres sqlite3"`
	URL    string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string `validate:"required"`
	GinMode string `validate:"oneof=debug release test"`
	// DataDir confines the dataset paths API clients may name
	DataDir string `validate:"required"`
}

// DefaultPipelineConfig mirrors the reference analysis: 5 folds, seed 42,
// lasso selection followed by a ridge refit, 20 spline targets of 4 df and
// a top-30 cutoff
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Folds:                 5,
		Seed:                  42,
		L1Strength:            0.05,
		L1Ratio:               1.0,
		L2Strength:            0.5,
		L2Ratio:               0.0,
		SplineTargets:         20,
		SplineDF:              4,
		MinDistinct:           10,
		SelectTopK:            30,
		SkewThreshold:         1.0,
		MaxIter:               100,
		Tolerance:             1e-7,
		Ties:                  "efron",
		Workers:               1,
		RetryOnNonConvergence: 0,
		RetryPenaltyFactor:    0.5,
	}
}

// DefaultDataConfig matches the wellbore failure export layout
func DefaultDataConfig() DataConfig {
	return DataConfig{
		DurationColumn:     "lifetime_duration_days",
		EventColumn:        "FAILED",
		WeightColumn:       "sample_weight",
		DropColumns:        []string{"FAILURETYPE", "UWI", "tbguid", "lifetime_start"},
		CategoricalColumns: []string{"bha_configuration", "ROUTE"},
	}
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Pipeline: loadPipelineConfig(),
		Data:     loadDataConfig(),
		Database: loadDatabaseConfig(),
		Server:   loadServerConfig(),
	}

	if err := Validate(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

var validate = validator.New()

// Validate checks struct tags and cross-field rules
func Validate(config *Config) error {
	if err := validate.Struct(config); err != nil {
		return errors.ConfigInvalid(describeValidation(err))
	}
	return ValidatePipeline(config.Pipeline)
}

// ValidatePipeline checks a pipeline configuration on its own, e.g. one
// assembled from API overrides
func ValidatePipeline(p PipelineConfig) error {
	if err := validate.Struct(p); err != nil {
		return errors.ConfigInvalid(describeValidation(err))
	}
	if p.L1Strength == 0 && p.L1Ratio > 0 {
		return errors.ConfigInvalid("L1 selection pass needs a positive strength to zero out coefficients")
	}
	if p.RetryOnNonConvergence > 0 && p.RetryPenaltyFactor == 1 {
		return errors.ConfigInvalid("retry penalty factor 1 would repeat an identical fit")
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func loadPipelineConfig() PipelineConfig {
	d := DefaultPipelineConfig()
	return PipelineConfig{
		Folds:                 getEnvIntOrDefault("CV_FOLDS", d.Folds),
		Seed:                  getEnvInt64OrDefault("CV_SEED", d.Seed),
		L1Strength:            getEnvFloatOrDefault("L1_STRENGTH", d.L1Strength),
		L1Ratio:               getEnvFloatOrDefault("L1_RATIO", d.L1Ratio),
		L2Strength:            getEnvFloatOrDefault("L2_STRENGTH", d.L2Strength),
		L2Ratio:               getEnvFloatOrDefault("L2_RATIO", d.L2Ratio),
		SplineTargets:         getEnvIntOrDefault("SPLINE_TARGETS", d.SplineTargets),
		SplineDF:              getEnvIntOrDefault("SPLINE_DF", d.SplineDF),
		MinDistinct:           getEnvIntOrDefault("SPLINE_MIN_DISTINCT", d.MinDistinct),
		SelectTopK:            getEnvIntOrDefault("SELECT_TOP_K", d.SelectTopK),
		SkewThreshold:         getEnvFloatOrDefault("SKEW_THRESHOLD", d.SkewThreshold),
		MaxIter:               getEnvIntOrDefault("COX_MAX_ITER", d.MaxIter),
		Tolerance:             getEnvFloatOrDefault("COX_TOLERANCE", d.Tolerance),
		Ties:                  strings.ToLower(getEnvOrDefault("COX_TIES", d.Ties)),
		Workers:               getEnvIntOrDefault("CV_WORKERS", d.Workers),
		RetryOnNonConvergence: getEnvIntOrDefault("RETRY_ON_NONCONVERGENCE", d.RetryOnNonConvergence),
		RetryPenaltyFactor:    getEnvFloatOrDefault("RETRY_PENALTY_FACTOR", d.RetryPenaltyFactor),
	}
}

func loadDataConfig() DataConfig {
	d := DefaultDataConfig()
	return DataConfig{
		File:               getEnvOrDefault("DATA_FILE", ""),
		Sheet:              getEnvOrDefault("DATA_SHEET", ""),
		DurationColumn:     getEnvOrDefault("DURATION_COLUMN", d.DurationColumn),
		EventColumn:        getEnvOrDefault("EVENT_COLUMN", d.EventColumn),
		WeightColumn:       getEnvOrDefault("WEIGHT_COLUMN", d.WeightColumn),
		DropColumns:        getEnvListOrDefault("DROP_COLUMNS", d.DropColumns),
		CategoricalColumns: getEnvListOrDefault("CATEGORICAL_COLUMNS", d.CategoricalColumns),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver: getEnvOrDefault("DB_DRIVER", "postgres"),
		URL:    getEnvOrDefault("DATABASE_URL", ""),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
		DataDir: getEnvOrDefault("DATA_DIR", "."),
	}
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
