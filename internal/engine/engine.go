package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/retrofix/internal/config"
	"github.com/roach88/retrofix/internal/field"
	"github.com/roach88/retrofix/internal/impact"
	"github.com/roach88/retrofix/internal/store"
	"github.com/roach88/retrofix/internal/validate"
)

// EntitySnapshotProvider supplies the state of entities the store has never
// committed for. Once an entity has events, the store is authoritative for
// its version and for every corrected field.
type EntitySnapshotProvider interface {
	GetVersion(ctx context.Context, entityID string) (uint64, error)
	GetCurrentValues(ctx context.Context, entityID string) (map[string]field.Value, error)
}

// EntityTypeProvider is implemented by snapshot providers that know the type
// of each entity. An empty type means unknown.
type EntityTypeProvider interface {
	EntityType(ctx context.Context, entityID string) (string, error)
}

// ValidTimeFloorProvider supplies the earliest effective date a correction
// of an entity may carry. A zero time means no floor.
type ValidTimeFloorProvider interface {
	ValidTimeFloor(ctx context.Context, entityID string) (time.Time, error)
}

// SchemaRegistry describes entity types. *schema.Registry implements it.
type SchemaRegistry interface {
	Fields(entityType string) (map[string]field.Definition, bool)
	Rules(entityType string) []validate.Rule
}

// Policy holds the tunable gates of the pipeline.
type Policy struct {
	MinReasonLength int

	// AllowFutureDating lifts the "now" ceiling on effective dates. With a
	// FutureHorizon the ceiling becomes now+horizon, otherwise unbounded.
	AllowFutureDating bool
	FutureHorizon     time.Duration

	// RequireHighImpactConfirmation rejects requests whose impact exceeds
	// the warning threshold unless ConfirmedHighImpact is set.
	RequireHighImpactConfirmation bool

	Impact impact.Config

	// BatchConcurrency bounds SubmitBatch parallelism. Values below 1 run
	// sequentially.
	BatchConcurrency int
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MinReasonLength:               validate.DefaultMinReasonLength,
		RequireHighImpactConfirmation: true,
		Impact: impact.Config{
			WarningThreshold: impact.DefaultWarningThreshold,
			DefaultWeight:    impact.DefaultEffectWeight,
		},
		BatchConcurrency: 1,
	}
}

// PolicyFromConfig translates the engine section of the configuration.
func PolicyFromConfig(cfg config.EngineConfig) Policy {
	return Policy{
		MinReasonLength:               cfg.MinReasonLength,
		AllowFutureDating:             cfg.AllowFutureDating,
		FutureHorizon:                 cfg.FutureHorizon,
		RequireHighImpactConfirmation: !cfg.AllowUnconfirmedHighImpact,
		Impact: impact.Config{
			WarningThreshold: cfg.WarningThreshold,
			DefaultWeight:    cfg.DefaultEffectWeight,
			Weights:          cfg.EffectWeights,
		},
		BatchConcurrency: cfg.BatchConcurrency,
	}
}

// Coordinator runs correction requests through validation, conflict
// detection, impact analysis and commit.
//
// Thread-safety: a Coordinator holds no per-request state and is safe for
// concurrent use. Concurrent requests for the same entity are serialized
// by the store's version check, not by the Coordinator.
type Coordinator struct {
	store     store.EventStore
	schemas   SchemaRegistry
	snapshots EntitySnapshotProvider
	floors    ValidTimeFloorProvider
	resolver  impact.DependencyResolver
	ids       IDGenerator
	clock     Clock
	logger    *slog.Logger
	policy    Policy
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSnapshots sets the snapshot provider. Without one, entities unknown
// to the store start at version 0 with no values.
func WithSnapshots(p EntitySnapshotProvider) Option {
	return func(c *Coordinator) {
		c.snapshots = p
	}
}

// WithValidTimeFloors sets the valid-time floor provider.
func WithValidTimeFloors(p ValidTimeFloorProvider) Option {
	return func(c *Coordinator) {
		c.floors = p
	}
}

// WithResolver sets the dependency resolver used for impact analysis.
// Without one every analysis carries an "impact unknown" warning.
func WithResolver(r impact.DependencyResolver) Option {
	return func(c *Coordinator) {
		c.resolver = r
	}
}

// WithIDGenerator overrides the UUIDv7 event ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Coordinator) {
		c.ids = g
	}
}

// WithClock overrides the system clock.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithPolicy replaces the default policy.
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) {
		c.policy = p
	}
}

// New creates a Coordinator committing to s and validating against schemas.
func New(s store.EventStore, schemas SchemaRegistry, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   s,
		schemas: schemas,
		ids:     UUIDv7Generator{},
		clock:   SystemClock{},
		logger:  slog.Default(),
		policy:  DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the coordinator's policy.
func (c *Coordinator) Policy() Policy {
	return c.policy
}
