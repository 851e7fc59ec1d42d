package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
	"github.com/roach88/retrofix/internal/store"
)

var eventColumns = []string{
	"seq", "event_id", "entity_id", "entity_type", "field_name", "old_value", "new_value",
	"transaction_time", "valid_time", "actor_id", "reason", "source_version", "metadata", "digest",
}

type cursor struct {
	txTime time.Time
	seq    int64
}

// History yields one field's events ordered by transaction_time, seq.
// Pages are fully read before any event is yielded.
func (s *Store) History(ctx context.Context, entityID, fieldName string) iter.Seq2[correction.Event, error] {
	return func(yield func(correction.Event, error) bool) {
		var after *cursor
		for {
			page, err := s.historyPage(ctx, entityID, fieldName, after)
			if err != nil {
				yield(correction.Event{}, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < store.HistoryPageSize {
				return
			}
			last := page[len(page)-1]
			after = &cursor{txTime: last.TransactionTime, seq: last.Seq}
		}
	}
}

func (s *Store) historyPage(ctx context.Context, entityID, fieldName string, after *cursor) ([]correction.Event, error) {
	q := psql.Select(eventColumns...).
		From("correction_events").
		Where(squirrel.Eq{"entity_id": entityID, "field_name": fieldName}).
		OrderBy("transaction_time ASC", "seq ASC").
		Limit(uint64(store.HistoryPageSize))
	if after != nil {
		q = q.Where(squirrel.Expr("(transaction_time, seq) > (?, ?)", after.txTime, after.seq))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query history")
	}
	return collectEvents(rows)
}

// EntityHistory returns every event of an entity in ledger order.
func (s *Store) EntityHistory(ctx context.Context, entityID string) ([]correction.Event, error) {
	query, args, err := psql.Select(eventColumns...).
		From("correction_events").
		Where(squirrel.Eq{"entity_id": entityID}).
		OrderBy("transaction_time ASC", "seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build entity history query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query entity history")
	}
	return collectEvents(rows)
}

// CurrentValue returns the NewValue of the latest event by transaction time.
func (s *Store) CurrentValue(ctx context.Context, entityID, fieldName string) (field.Value, bool, error) {
	query, args, err := psql.Select("new_value").
		From("correction_events").
		Where(squirrel.Eq{"entity_id": entityID, "field_name": fieldName}).
		OrderBy("transaction_time DESC", "seq DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build current value query: %w", err)
	}

	var raw []byte
	err = s.db.QueryRow(ctx, query, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapError(err, "query current value")
	}
	v, err := field.UnmarshalValue(raw)
	if err != nil {
		return nil, false, fmt.Errorf("current value of %s.%s: %w", entityID, fieldName, err)
	}
	return v, true, nil
}

// CurrentVersion returns the entity's version, or ok=false if unknown.
func (s *Store) CurrentVersion(ctx context.Context, entityID string) (uint64, bool, error) {
	query, args, err := psql.Select("version").
		From("entities").
		Where(squirrel.Eq{"entity_id": entityID}).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build version query: %w", err)
	}

	var version int64
	err = s.db.QueryRow(ctx, query, args...).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, mapError(err, "query version")
	}
	return uint64(version), true, nil
}

func collectEvents(rows pgx.Rows) ([]correction.Event, error) {
	defer rows.Close()

	events := []correction.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "iterate events")
	}
	return events, nil
}

func scanEvent(rows pgx.Rows) (correction.Event, error) {
	var (
		e                  correction.Event
		oldValue, newValue []byte
		metadata           []byte
		validTime          *time.Time
		sourceVersion      int64
	)
	if err := rows.Scan(
		&e.Seq,
		&e.EventID,
		&e.EntityID,
		&e.EntityType,
		&e.Field,
		&oldValue,
		&newValue,
		&e.TransactionTime,
		&validTime,
		&e.ActorID,
		&e.Reason,
		&sourceVersion,
		&metadata,
		&e.Digest,
	); err != nil {
		return e, fmt.Errorf("scan event: %w", err)
	}

	e.TransactionTime = e.TransactionTime.UTC()
	if validTime != nil {
		e.ValidTime = validTime.UTC()
	}
	e.SourceVersion = uint64(sourceVersion)

	var err error
	if e.OldValue, err = field.UnmarshalValue(oldValue); err != nil {
		return e, fmt.Errorf("event %s old value: %w", e.EventID, err)
	}
	if e.NewValue, err = field.UnmarshalValue(newValue); err != nil {
		return e, fmt.Errorf("event %s new value: %w", e.EventID, err)
	}
	if e.Metadata, err = store.UnmarshalMetadata(string(metadata)); err != nil {
		return e, fmt.Errorf("event %s: %w", e.EventID, err)
	}
	return e, nil
}
