package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/retrofix/internal/config"
	"github.com/roach88/retrofix/internal/engine"
	"github.com/roach88/retrofix/internal/input"
	"github.com/roach88/retrofix/internal/schema"
	"github.com/roach88/retrofix/internal/store"
	"github.com/roach88/retrofix/internal/store/postgres"
)

// env is what a ledger command runs against.
type env struct {
	config  *config.Config
	logger  *slog.Logger
	schemas *schema.Registry
	store   store.EventStore
	engine  *engine.Coordinator
}

// openEnv loads configuration and schema, opens the configured store and
// builds a coordinator over them. Failures are command errors.
func openEnv(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	logCfg := cfg.Log
	if opts.Verbose {
		logCfg.Level = "debug"
	}
	logger := config.NewLoggerTo(cmd.ErrOrStderr(), logCfg)

	reg, errs := schema.LoadDir(opts.SchemaDir, schema.LoadModeCollectAll)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load schema from %s", opts.SchemaDir), errors.Join(errs...))
	}
	logger.Debug("schema loaded", "dir", opts.SchemaDir, "entity_types", reg.Len())

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithPolicy(engine.PolicyFromConfig(cfg.Engine)),
		engine.WithResolver(schema.NewStaticResolver(reg)),
	}
	if opts.EntitiesPath != "" {
		snapshots, err := input.LoadEntities(opts.EntitiesPath, reg)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load entities", err)
		}
		logger.Debug("entities loaded", "path", opts.EntitiesPath, "count", snapshots.Len())
		engineOpts = append(engineOpts, engine.WithSnapshots(snapshots), engine.WithValidTimeFloors(snapshots))
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, engine.WithClock(opts.Clock))
	}
	if opts.IDs != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDs))
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	logger.Debug("store ready", "driver", cfg.Store.Driver)

	return &env{
		config:  cfg,
		logger:  logger,
		schemas: reg,
		store:   st,
		engine:  engine.New(st, reg, engineOpts...),
	}, nil
}

// openStore opens the event store selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.EventStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverSQLite, "":
		st, err := store.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing store", "error", err)
	}
}

// commandContext returns the command's context, or a background context
// when the command runs outside Execute (tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
