package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
)

// HistoryReader is the part of an EventStore replay needs.
type HistoryReader interface {
	EntityHistory(ctx context.Context, entityID string) ([]correction.Event, error)
}

// AsOf selects a point on both timelines. A zero ValidAt or KnownAt leaves
// that axis unbounded.
type AsOf struct {
	ValidAt time.Time // corrections effective after this instant are ignored
	KnownAt time.Time // corrections recorded after this instant are ignored
}

// EntityState is an entity rebuilt from its events.
type EntityState struct {
	EntityID string
	// Values holds every field the replayed events touched. A cleared field
	// is present with a nil value.
	Values map[string]field.Value
	// Version is the entity's version as of KnownAt, or 0 when no event had
	// been recorded yet. Valid time does not affect it.
	Version uint64
	LastSeq int64
	Applied int // events that passed both filters
}

// Replay rebuilds the field values of entityID as the ledger believed them
// at at.KnownAt, for the valid instant at.ValidAt. Events apply in
// transaction order, so a later recording wins over an earlier one even
// when its valid time is older.
func Replay(ctx context.Context, r HistoryReader, entityID string, at AsOf) (EntityState, error) {
	state := EntityState{EntityID: entityID, Values: map[string]field.Value{}}

	events, err := r.EntityHistory(ctx, entityID)
	if err != nil {
		return state, fmt.Errorf("replay %s: %w", entityID, err)
	}

	for _, e := range events {
		if !at.KnownAt.IsZero() && e.TransactionTime.After(at.KnownAt) {
			// ordered by transaction time; nothing later can qualify
			break
		}
		state.Version = e.SourceVersion + 1
		if e.Seq > state.LastSeq {
			state.LastSeq = e.Seq
		}
		if !at.ValidAt.IsZero() && e.ValidTime.After(at.ValidAt) {
			continue
		}
		state.Values[e.Field] = e.NewValue
		state.Applied++
	}
	return state, nil
}
