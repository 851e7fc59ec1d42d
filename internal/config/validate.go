package config

import (
	"fmt"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// Load calls it automatically.
func (c *Config) Validate() error {
	if err := c.Engine.validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Store.validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Log.validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.MinReasonLength < 0 {
		return fmt.Errorf("min_reason_length must be >= 0 (got %d)", e.MinReasonLength)
	}
	if e.FutureHorizon < 0 {
		return fmt.Errorf("future_horizon must be >= 0 (got %s)", e.FutureHorizon)
	}
	if e.FutureHorizon > 0 && !e.AllowFutureDating {
		return fmt.Errorf("future_horizon requires allow_future_dating")
	}
	if e.WarningThreshold < 0 {
		return fmt.Errorf("warning_threshold must be >= 0 (got %d)", e.WarningThreshold)
	}
	if e.DefaultEffectWeight < 0 {
		return fmt.Errorf("default_effect_weight must be >= 0 (got %s)", e.DefaultEffectWeight)
	}
	for name, w := range e.EffectWeights {
		if w < 0 {
			return fmt.Errorf("effect_weights.%s must be >= 0 (got %s)", name, w)
		}
	}
	if e.BatchConcurrency < 1 {
		return fmt.Errorf("batch_concurrency must be >= 1 (got %d)", e.BatchConcurrency)
	}
	return nil
}

func (s *StoreConfig) validate() error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case DriverSQLite:
		if s.Path == "" {
			return fmt.Errorf("path is required for the sqlite driver")
		}
	case DriverPostgres:
		if s.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for the postgres driver")
		}
		if s.Postgres.MaxConns < 1 {
			return fmt.Errorf("postgres.max_conns must be >= 1 (got %d)", s.Postgres.MaxConns)
		}
		if s.Postgres.MinConns < 0 || s.Postgres.MinConns > s.Postgres.MaxConns {
			return fmt.Errorf("postgres.min_conns must be in [0, max_conns] (got %d)", s.Postgres.MinConns)
		}
	default:
		return fmt.Errorf("driver must be %q or %q (got %q)", DriverSQLite, DriverPostgres, s.Driver)
	}
	return nil
}

func (l *LogConfig) validate() error {
	switch strings.ToLower(l.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("format must be json or text (got %q)", l.Format)
	}
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be debug, info, warn or error (got %q)", l.Level)
	}
	return nil
}
