package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gosurv/internal/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPipelineConfig(), cfg.Pipeline)
	assert.Equal(t, "lifetime_duration_days", cfg.Data.DurationColumn)
	assert.Equal(t, []string{"bha_configuration", "ROUTE"}, cfg.Data.CategoricalColumns)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CV_FOLDS", "10")
	t.Setenv("CV_SEED", "7")
	t.Setenv("L1_STRENGTH", "0.2")
	t.Setenv("COX_TIES", "BRESLOW")
	t.Setenv("DROP_COLUMNS", "UWI, tbguid ,")
	t.Setenv("CATEGORICAL_COLUMNS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Pipeline.Folds)
	assert.Equal(t, int64(7), cfg.Pipeline.Seed)
	assert.Equal(t, 0.2, cfg.Pipeline.L1Strength)
	assert.Equal(t, "breslow", cfg.Pipeline.Ties)
	assert.Equal(t, []string{"UWI", "tbguid"}, cfg.Data.DropColumns)
	assert.Empty(t, cfg.Data.CategoricalColumns)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"one fold", "CV_FOLDS", "1"},
		{"ratio above one", "L1_RATIO", "1.5"},
		{"unknown ties", "COX_TIES", "exact"},
		{"zero workers", "CV_WORKERS", "0"},
		{"spline df", "SPLINE_DF", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
		})
	}
}

func TestValidatePipeline_CrossField(t *testing.T) {
	p := DefaultPipelineConfig()
	p.L1Strength = 0
	assert.Error(t, ValidatePipeline(p))

	p = DefaultPipelineConfig()
	p.RetryOnNonConvergence = 2
	p.RetryPenaltyFactor = 1
	assert.Error(t, ValidatePipeline(p))

	assert.NoError(t, ValidatePipeline(DefaultPipelineConfig()))
}
