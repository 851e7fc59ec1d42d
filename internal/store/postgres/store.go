package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/roach88/retrofix/internal/config"
	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/store"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Store is the PostgreSQL implementation of store.EventStore.
type Store struct {
	db    DB
	close func()
	now   func() time.Time
}

var _ store.EventStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithNow sets the clock used when a commit carries no transaction time.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New wraps an existing pool or test double.
func New(db DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open migrates the database (unless cfg.SkipMigrations) and connects a pool.
func Open(ctx context.Context, cfg config.PostgresConfig, opts ...Option) (*Store, error) {
	if !cfg.SkipMigrations {
		if err := Migrate(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := New(pool, opts...)
	s.close = pool.Close
	return s, nil
}

// Close releases the pool if the store owns one.
func (s *Store) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// Append commits a single event. See store.EventStore.
func (s *Store) Append(ctx context.Context, event correction.Event) error {
	_, err := s.AppendBatch(ctx, store.CommitFromEvent(event))
	return err
}

// AppendBatch commits c in one transaction. The entity row is locked with
// SELECT ... FOR UPDATE between the version check and the bump.
func (s *Store) AppendBatch(ctx context.Context, c store.Commit) (store.CommitResult, error) {
	if err := store.CheckCommit(c); err != nil {
		return store.CommitResult{}, err
	}
	if c.TransactionTime.IsZero() {
		c.TransactionTime = s.now()
	}

	var result store.CommitResult
	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		var err error
		result, err = appendInTx(ctx, tx, c)
		return err
	})
	if err != nil {
		if store.IsVersionConflict(err) || store.IsEntityTypeMismatch(err) || errors.Is(err, store.ErrAppendFailed) {
			return store.CommitResult{}, err
		}
		return store.CommitResult{}, store.AppendError(c.EntityID, err)
	}
	return result, nil
}

func appendInTx(ctx context.Context, tx pgx.Tx, c store.Commit) (store.CommitResult, error) {
	query, args, err := psql.Insert("entities").
		Columns("entity_id", "entity_type", "version").
		Values(c.EntityID, c.EntityType, int64(c.BaselineVersion)).
		Suffix("ON CONFLICT (entity_id) DO NOTHING").
		ToSql()
	if err != nil {
		return store.CommitResult{}, fmt.Errorf("build register query: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return store.CommitResult{}, mapError(err, "register entity")
	}

	query, args, err = psql.Select("entity_type", "version", "last_transaction_time").
		From("entities").
		Where(squirrel.Eq{"entity_id": c.EntityID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return store.CommitResult{}, fmt.Errorf("build lock query: %w", err)
	}
	var (
		entityType string
		version    int64
		lastTx     *time.Time
	)
	if err := tx.QueryRow(ctx, query, args...).Scan(&entityType, &version, &lastTx); err != nil {
		return store.CommitResult{}, mapError(err, "lock entity")
	}
	if entityType != c.EntityType {
		return store.CommitResult{}, &store.EntityTypeMismatchError{
			EntityID:   c.EntityID,
			Registered: entityType,
			Requested:  c.EntityType,
		}
	}
	if uint64(version) != c.ExpectedVersion {
		return store.CommitResult{}, &store.VersionConflictError{
			EntityID: c.EntityID,
			Expected: c.ExpectedVersion,
			Actual:   uint64(version),
		}
	}

	var last time.Time
	if lastTx != nil {
		last = *lastTx
	}
	txTime := store.NextTransactionTime(c.TransactionTime, last)
	events, err := store.PrepareEvents(c, c.ExpectedVersion, txTime)
	if err != nil {
		return store.CommitResult{}, err
	}

	for i := range events {
		seq, err := insertEvent(ctx, tx, events[i])
		if err != nil {
			return store.CommitResult{}, err
		}
		events[i].Seq = seq
	}

	next := c.ExpectedVersion + 1
	query, args, err = psql.Update("entities").
		Set("version", int64(next)).
		Set("last_transaction_time", txTime).
		Where(squirrel.Eq{"entity_id": c.EntityID}).
		ToSql()
	if err != nil {
		return store.CommitResult{}, fmt.Errorf("build bump query: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return store.CommitResult{}, mapError(err, "bump version")
	}

	return store.CommitResult{
		Version:         next,
		TransactionTime: txTime,
		Events:          events,
	}, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, e correction.Event) (int64, error) {
	oldValue, err := store.MarshalValueText(e.OldValue)
	if err != nil {
		return 0, fmt.Errorf("old value of %s: %w", e.Field, err)
	}
	newValue, err := store.MarshalValueText(e.NewValue)
	if err != nil {
		return 0, fmt.Errorf("new value of %s: %w", e.Field, err)
	}
	metadata, err := store.MarshalMetadata(e.Metadata)
	if err != nil {
		return 0, err
	}

	var validTime *time.Time
	if !e.ValidTime.IsZero() {
		validTime = &e.ValidTime
	}

	query, args, err := psql.Insert("correction_events").
		Columns(
			"event_id", "entity_id", "entity_type", "field_name", "old_value", "new_value",
			"transaction_time", "valid_time", "actor_id", "reason", "source_version", "metadata", "digest",
		).
		Values(
			e.EventID, e.EntityID, e.EntityType, e.Field, oldValue, newValue,
			e.TransactionTime, validTime, e.ActorID, e.Reason, int64(e.SourceVersion), metadata, e.Digest,
		).
		Suffix("RETURNING seq").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert query: %w", err)
	}

	var seq int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&seq); err != nil {
		return 0, mapError(err, "insert event "+e.EventID)
	}
	return seq, nil
}

// runInTx executes fn within a transaction. On error from fn the transaction
// is rolled back and the error returned.
func (s *Store) runInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
