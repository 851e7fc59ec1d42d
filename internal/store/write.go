package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/retrofix/internal/correction"
)

// Append commits a single event. See EventStore.Append.
func (s *Store) Append(ctx context.Context, event correction.Event) error {
	_, err := s.AppendBatch(ctx, CommitFromEvent(event))
	return err
}

// AppendBatch commits every event of c in one transaction:
// register entity at baseline if unknown, compare version, insert events,
// bump version by one.
//
// Returns *VersionConflictError (wrapping ErrVersionConflict) when the stored
// version differs from c.ExpectedVersion, and *EntityTypeMismatchError when
// the entity is registered under another type; no event is written in either
// case. Other failures wrap ErrAppendFailed.
func (s *Store) AppendBatch(ctx context.Context, c Commit) (CommitResult, error) {
	if err := CheckCommit(c); err != nil {
		return CommitResult{}, err
	}
	if c.TransactionTime.IsZero() {
		c.TransactionTime = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CommitResult{}, AppendError(c.EntityID, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() // No-op if committed

	// Register at baseline; a no-op for known entities.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entities (entity_id, entity_type, version, last_transaction_time)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(entity_id) DO NOTHING
	`, c.EntityID, c.EntityType, int64(c.BaselineVersion)); err != nil {
		return CommitResult{}, AppendError(c.EntityID, fmt.Errorf("register entity: %w", err))
	}

	var (
		entityType      string
		version, lastTx int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT entity_type, version, last_transaction_time FROM entities WHERE entity_id = ?
	`, c.EntityID).Scan(&entityType, &version, &lastTx)
	if err != nil {
		return CommitResult{}, AppendError(c.EntityID, fmt.Errorf("read version: %w", err))
	}
	if entityType != c.EntityType {
		return CommitResult{}, &EntityTypeMismatchError{
			EntityID:   c.EntityID,
			Registered: entityType,
			Requested:  c.EntityType,
		}
	}
	if uint64(version) != c.ExpectedVersion {
		return CommitResult{}, &VersionConflictError{
			EntityID: c.EntityID,
			Expected: c.ExpectedVersion,
			Actual:   uint64(version),
		}
	}

	txTime := NextTransactionTime(c.TransactionTime, fromMicros(lastTx))
	events, err := PrepareEvents(c, c.ExpectedVersion, txTime)
	if err != nil {
		return CommitResult{}, AppendError(c.EntityID, err)
	}

	for i := range events {
		seq, err := insertEvent(ctx, tx, events[i])
		if err != nil {
			return CommitResult{}, AppendError(c.EntityID, err)
		}
		events[i].Seq = seq
	}

	next := c.ExpectedVersion + 1
	res, err := tx.ExecContext(ctx, `
		UPDATE entities SET version = ?, last_transaction_time = ?
		WHERE entity_id = ? AND version = ?
	`, int64(next), toMicros(txTime), c.EntityID, version)
	if err != nil {
		return CommitResult{}, AppendError(c.EntityID, fmt.Errorf("bump version: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return CommitResult{}, &VersionConflictError{EntityID: c.EntityID, Expected: c.ExpectedVersion, Actual: uint64(version)}
	}

	if err := tx.Commit(); err != nil {
		return CommitResult{}, AppendError(c.EntityID, fmt.Errorf("commit: %w", err))
	}

	return CommitResult{
		Version:         next,
		TransactionTime: txTime,
		Events:          events,
	}, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, e correction.Event) (int64, error) {
	enc, err := encodeEvent(e)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO correction_events
		(event_id, entity_id, entity_type, field_name, old_value, new_value,
		 transaction_time, valid_time, actor_id, reason, source_version, metadata, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.EventID,
		e.EntityID,
		e.EntityType,
		e.Field,
		enc.oldValue,
		enc.newValue,
		toMicros(e.TransactionTime),
		toMicros(e.ValidTime),
		e.ActorID,
		e.Reason,
		int64(e.SourceVersion),
		enc.metadata,
		e.Digest,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert event %s: duplicate event id: %w", e.EventID, err)
		}
		return 0, fmt.Errorf("insert event %s: %w", e.EventID, err)
	}
	return res.LastInsertId()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
