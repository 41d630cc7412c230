package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.Pool.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Ingest.MaxRetries)
	assert.Equal(t, 300, cfg.Ingest.BatchBudgetSecs)
	assert.Equal(t, "internal", cfg.Ingest.DefaultClassification)
	assert.Contains(t, cfg.Ingest.KnownUnits, "percent")
	assert.Equal(t, 6, cfg.Scorer.MinWindow)
	assert.Equal(t, 2, cfg.Scorer.ConsecutivePeriods)
	assert.InDelta(t, 20.0, cfg.Scorer.Default.CritPct, 0.001)
	assert.Equal(t, 3, cfg.Recommend.AggregationWindowPeriods)
	assert.NotEmpty(t, cfg.Schedule.Ingest)
}

func TestScorerConfig_Thresholds(t *testing.T) {
	cfg := ScorerConfig{
		Default: IndicatorThresholds{WarnPct: 10, CritPct: 20},
		Indicators: map[string]IndicatorThresholds{
			"gdp_growth": {WarnPct: 5, CritPct: 12},
			"exotic":     {Unscored: true},
		},
	}

	assert.InDelta(t, 5.0, cfg.Thresholds("gdp_growth").WarnPct, 0.001)
	assert.True(t, cfg.Thresholds("exotic").Unscored)

	// Unknown indicator types fall back to the default config.
	def := cfg.Thresholds("never_seen_before")
	assert.InDelta(t, 10.0, def.WarnPct, 0.001)
	assert.False(t, def.Unscored)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}
