// Package config loads the application configuration from file and
// environment. Every component receives its own explicit *Config section at
// construction; nothing reads ambient state after startup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Recommend RecommendConfig `yaml:"recommend" mapstructure:"recommend"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Sources   []SourceConfig  `yaml:"sources" mapstructure:"sources"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"` // postgres | sqlite
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// IngestConfig configures the ingestion coordinator.
type IngestConfig struct {
	// MaxRetries bounds storage retries for transient failures per item.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
	// BatchBudgetSecs is the wall-clock budget for one batch; 0 = unlimited.
	BatchBudgetSecs int `yaml:"batch_budget_secs" mapstructure:"batch_budget_secs"`
	// DefaultClassification is applied when an item does not carry a tier.
	DefaultClassification string `yaml:"default_classification" mapstructure:"default_classification"`
	// KnownUnits lists units accepted during validation; unspecified units
	// are always accepted.
	KnownUnits []string `yaml:"known_units" mapstructure:"known_units"`
}

// IndicatorThresholds holds the anomaly thresholds for one indicator type.
type IndicatorThresholds struct {
	// WarnPct / CritPct bound the official-vs-estimated discrepancy (percent).
	WarnPct float64 `yaml:"warn_pct" mapstructure:"warn_pct"`
	CritPct float64 `yaml:"crit_pct" mapstructure:"crit_pct"`
	// AbsWarn / AbsCrit bound the value itself when set.
	AbsWarn *float64 `yaml:"abs_warn" mapstructure:"abs_warn"`
	AbsCrit *float64 `yaml:"abs_crit" mapstructure:"abs_crit"`
	// ZWarn / ZCrit bound the robust z-score of the latest value.
	ZWarn float64 `yaml:"z_warn" mapstructure:"z_warn"`
	ZCrit float64 `yaml:"z_crit" mapstructure:"z_crit"`
	// Unscored marks indicator types accepted for storage but not scored.
	Unscored bool `yaml:"unscored" mapstructure:"unscored"`
}

// ScorerConfig configures anomaly scoring.
type ScorerConfig struct {
	// MinWindow is the minimum history length below which scorers emit
	// insufficient_data instead of a score.
	MinWindow int `yaml:"min_window" mapstructure:"min_window"`
	// Window is the trailing window used for trend and baseline statistics.
	Window int `yaml:"window" mapstructure:"window"`
	// ConsecutivePeriods is how many trailing periods must breach CritPct
	// before the discrepancy is critical.
	ConsecutivePeriods int `yaml:"consecutive_periods" mapstructure:"consecutive_periods"`
	// Default applies to indicator types without an explicit entry.
	Default    IndicatorThresholds            `yaml:"default" mapstructure:"default"`
	Indicators map[string]IndicatorThresholds `yaml:"indicators" mapstructure:"indicators"`
}

// Thresholds resolves the config for an indicator type. Unknown indicators
// get the default config rather than a rejection.
func (c ScorerConfig) Thresholds(indicator string) IndicatorThresholds {
	if t, ok := c.Indicators[indicator]; ok {
		return t
	}
	return c.Default
}

// RecommendConfig configures recommendation generation.
type RecommendConfig struct {
	// AggregationWindowPeriods groups findings for the same jurisdiction and
	// policy area within this many trailing periods into one recommendation.
	AggregationWindowPeriods int `yaml:"aggregation_window_periods" mapstructure:"aggregation_window_periods"`
	// RulesPath points at the YAML rule set mapping indicators to policy
	// areas and severity ladders.
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// ScheduleConfig holds cron expressions for the periodic jobs.
type ScheduleConfig struct {
	Ingest   string `yaml:"ingest" mapstructure:"ingest"`
	Evaluate string `yaml:"evaluate" mapstructure:"evaluate"`
}

// SourceConfig describes one upstream source adapter.
type SourceConfig struct {
	Name         string  `yaml:"name" mapstructure:"name"`
	Type         string  `yaml:"type" mapstructure:"type"` // file | http
	Path         string  `yaml:"path" mapstructure:"path"`
	URL          string  `yaml:"url" mapstructure:"url"`
	Format       string  `yaml:"format" mapstructure:"format"` // csv | json | xlsx
	Jurisdiction string  `yaml:"jurisdiction" mapstructure:"jurisdiction"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/econwatch")

	v.SetEnvPrefix("ECONWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Recognized options and their defaults.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("ingest.batch_budget_secs", 300)
	v.SetDefault("ingest.default_classification", "internal")
	v.SetDefault("ingest.known_units", []string{
		"percent", "index", "usd", "usd_million", "local_currency", "tons", "units",
	})
	v.SetDefault("scorer.min_window", 6)
	v.SetDefault("scorer.window", 12)
	v.SetDefault("scorer.consecutive_periods", 2)
	v.SetDefault("scorer.default.warn_pct", 10)
	v.SetDefault("scorer.default.crit_pct", 20)
	v.SetDefault("scorer.default.z_warn", 2.5)
	v.SetDefault("scorer.default.z_crit", 3.5)
	v.SetDefault("recommend.aggregation_window_periods", 3)
	v.SetDefault("recommend.rules_path", "rules.yaml")
	v.SetDefault("schedule.ingest", "0 6 * * *")
	v.SetDefault("schedule.evaluate", "30 6 * * *")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
