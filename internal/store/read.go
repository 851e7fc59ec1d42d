package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
)

// HistoryPageSize is the number of events History reads per query. Rows are
// closed before any event is yielded, so callers may use the store from
// inside the loop body.
const HistoryPageSize = 256

const eventColumns = `seq, event_id, entity_id, entity_type, field_name, old_value, new_value,
	transaction_time, valid_time, actor_id, reason, source_version, metadata, digest`

// History yields the events of one field ordered by transaction_time ASC,
// seq ASC. Every call to the returned sequence re-reads the store.
func (s *Store) History(ctx context.Context, entityID, fieldName string) iter.Seq2[correction.Event, error] {
	return func(yield func(correction.Event, error) bool) {
		var afterTx, afterSeq int64 = -1, 0
		for {
			page, err := s.historyPage(ctx, entityID, fieldName, afterTx, afterSeq)
			if err != nil {
				yield(correction.Event{}, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < HistoryPageSize {
				return
			}
			last := page[len(page)-1]
			afterTx, afterSeq = toMicros(last.TransactionTime), last.Seq
		}
	}
}

func (s *Store) historyPage(ctx context.Context, entityID, fieldName string, afterTx, afterSeq int64) ([]correction.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM correction_events
		WHERE entity_id = ? AND field_name = ?
		  AND (transaction_time > ? OR (transaction_time = ? AND seq > ?))
		ORDER BY transaction_time ASC, seq ASC
		LIMIT ?
	`, entityID, fieldName, afterTx, afterTx, afterSeq, HistoryPageSize)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EntityHistory returns every event of an entity ordered by transaction_time
// ASC, seq ASC. Returns an empty slice (not nil) if none exist.
func (s *Store) EntityHistory(ctx context.Context, entityID string) ([]correction.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM correction_events
		WHERE entity_id = ?
		ORDER BY transaction_time ASC, seq ASC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("query entity history: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CurrentValue returns the NewValue of the event with the greatest
// transaction time, ties broken by seq. Valid time plays no part.
func (s *Store) CurrentValue(ctx context.Context, entityID, fieldName string) (field.Value, bool, error) {
	var newValue string
	err := s.db.QueryRowContext(ctx, `
		SELECT new_value
		FROM correction_events
		WHERE entity_id = ? AND field_name = ?
		ORDER BY transaction_time DESC, seq DESC
		LIMIT 1
	`, entityID, fieldName).Scan(&newValue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query current value: %w", err)
	}
	v, err := field.UnmarshalValue([]byte(newValue))
	if err != nil {
		return nil, false, fmt.Errorf("current value of %s.%s: %w", entityID, fieldName, err)
	}
	return v, true, nil
}

// CurrentVersion returns the entity's version, or ok=false if the store has
// never committed for it.
func (s *Store) CurrentVersion(ctx context.Context, entityID string) (uint64, bool, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT version FROM entities WHERE entity_id = ?
	`, entityID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query version: %w", err)
	}
	return uint64(version), true, nil
}

// CountEvents returns the total number of events in the ledger.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM correction_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func scanEvents(rows *sql.Rows) ([]correction.Event, error) {
	events := []correction.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (correction.Event, error) {
	var (
		e                 correction.Event
		enc               encodedEvent
		txTime, validTime int64
		sourceVersion     int64
	)
	if err := rows.Scan(
		&e.Seq,
		&e.EventID,
		&e.EntityID,
		&e.EntityType,
		&e.Field,
		&enc.oldValue,
		&enc.newValue,
		&txTime,
		&validTime,
		&e.ActorID,
		&e.Reason,
		&sourceVersion,
		&enc.metadata,
		&e.Digest,
	); err != nil {
		return e, fmt.Errorf("scan event: %w", err)
	}
	e.TransactionTime = fromMicros(txTime)
	e.ValidTime = fromMicros(validTime)
	e.SourceVersion = uint64(sourceVersion)
	if err := decodeEvent(&e, enc); err != nil {
		return e, err
	}
	return e, nil
}
