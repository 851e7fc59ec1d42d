package config

import (
	"time"
)

// Config is the root configuration of retrofix.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Store  StoreConfig  `yaml:"store"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig holds the correction pipeline policy.
//
// Booleans default to false: cleanenv applies env-default to any zero value,
// so a YAML false could never override a true default.
type EngineConfig struct {
	MinReasonLength            int                      `yaml:"min_reason_length"                 env:"RETROFIX_MIN_REASON_LENGTH"                 env-default:"10"`
	AllowFutureDating          bool                     `yaml:"allow_future_dating"               env:"RETROFIX_ALLOW_FUTURE_DATING"               env-default:"false"`
	FutureHorizon              time.Duration            `yaml:"future_horizon"                    env:"RETROFIX_FUTURE_HORIZON"                    env-default:"0s"`
	WarningThreshold           int                      `yaml:"warning_threshold"                 env:"RETROFIX_WARNING_THRESHOLD"                 env-default:"10"`
	AllowUnconfirmedHighImpact bool                     `yaml:"allow_unconfirmed_high_impact"     env:"RETROFIX_ALLOW_UNCONFIRMED_HIGH_IMPACT"     env-default:"false"`
	DefaultEffectWeight        time.Duration            `yaml:"default_effect_weight"             env:"RETROFIX_DEFAULT_EFFECT_WEIGHT"             env-default:"100ms"`
	EffectWeights              map[string]time.Duration `yaml:"effect_weights"`
	BatchConcurrency           int                      `yaml:"batch_concurrency"                 env:"RETROFIX_BATCH_CONCURRENCY"                 env-default:"1"`
}

// StoreConfig selects and configures the event store.
type StoreConfig struct {
	Driver   string         `yaml:"driver"   env:"RETROFIX_STORE_DRIVER" env-default:"sqlite"`
	Path     string         `yaml:"path"     env:"RETROFIX_STORE_PATH"   env-default:"retrofix.db"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"                env:"RETROFIX_POSTGRES_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"RETROFIX_POSTGRES_MAX_CONNS"          env-default:"10"`
	MinConns        int32         `yaml:"min_conns"          env:"RETROFIX_POSTGRES_MIN_CONNS"          env-default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"RETROFIX_POSTGRES_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"RETROFIX_POSTGRES_MAX_CONN_IDLE_TIME" env-default:"30m"`
	SkipMigrations  bool          `yaml:"skip_migrations"    env:"RETROFIX_POSTGRES_SKIP_MIGRATIONS"    env-default:"false"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"RETROFIX_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"RETROFIX_LOG_FORMAT" env-default:"text"`
}

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)
