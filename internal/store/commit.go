package store

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
)

// EventStore is the bitemporal correction ledger.
type EventStore interface {
	// Append commits a single event. The event's SourceVersion is the
	// expected version; an entity unknown to the store is registered at it.
	Append(ctx context.Context, event correction.Event) error

	// AppendBatch commits every event of c atomically with one version bump.
	AppendBatch(ctx context.Context, c Commit) (CommitResult, error)

	// History yields the events of one field in transaction time order. Each
	// iteration runs a fresh query.
	History(ctx context.Context, entityID, fieldName string) iter.Seq2[correction.Event, error]

	// EntityHistory returns the events of every field of an entity.
	EntityHistory(ctx context.Context, entityID string) ([]correction.Event, error)

	// CurrentValue returns the NewValue of the latest event by transaction
	// time. ok is false when the field has never been corrected.
	CurrentValue(ctx context.Context, entityID, fieldName string) (value field.Value, ok bool, err error)

	// CurrentVersion returns the entity's version. ok is false when the
	// store has never committed for the entity.
	CurrentVersion(ctx context.Context, entityID string) (version uint64, ok bool, err error)

	Close() error
}

// Commit is one request's worth of events for a single entity.
type Commit struct {
	EntityID   string
	EntityType string
	// BaselineVersion registers an entity the store has not seen yet.
	BaselineVersion uint64
	ExpectedVersion uint64
	// TransactionTime is the proposed commit instant. The store raises it
	// when the entity already has a later one.
	TransactionTime time.Time
	// Events carry EventID, Field, values, ValidTime, ActorID, Reason and
	// Metadata. The store fills in the rest.
	Events []correction.Event
}

// CommitResult describes a successful commit.
type CommitResult struct {
	Version         uint64
	TransactionTime time.Time
	Events          []correction.Event
}

// TimeResolution is the precision at which transaction and valid times are
// persisted.
const TimeResolution = time.Microsecond

// NextTransactionTime returns proposed truncated to TimeResolution, raised
// past last if it would not be strictly later.
func NextTransactionTime(proposed, last time.Time) time.Time {
	t := proposed.UTC().Truncate(TimeResolution)
	if !last.IsZero() && !t.After(last) {
		t = last.UTC().Add(TimeResolution)
	}
	return t
}

// PrepareEvents stamps the events of c with the entity, source version and
// transaction time and computes their digests. The commit is not modified.
func PrepareEvents(c Commit, sourceVersion uint64, txTime time.Time) ([]correction.Event, error) {
	events := make([]correction.Event, len(c.Events))
	for i, e := range c.Events {
		e.EntityID = c.EntityID
		e.EntityType = c.EntityType
		e.SourceVersion = sourceVersion
		e.TransactionTime = txTime
		e.ValidTime = e.ValidTime.UTC().Truncate(TimeResolution)
		digest, err := e.ComputeDigest()
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.EventID, err)
		}
		e.Digest = digest
		events[i] = e
	}
	return events, nil
}

// CommitFromEvent wraps a single event as a commit.
func CommitFromEvent(e correction.Event) Commit {
	return Commit{
		EntityID:        e.EntityID,
		EntityType:      e.EntityType,
		BaselineVersion: e.SourceVersion,
		ExpectedVersion: e.SourceVersion,
		TransactionTime: e.TransactionTime,
		Events:          []correction.Event{e},
	}
}

// CheckCommit rejects malformed commits before any I/O.
func CheckCommit(c Commit) error {
	if c.EntityID == "" {
		return fmt.Errorf("commit: entity id is required")
	}
	if len(c.Events) == 0 {
		return ErrEmptyCommit
	}
	for _, e := range c.Events {
		if e.EventID == "" {
			return fmt.Errorf("commit: event for field %q has no id", e.Field)
		}
		if e.Field == "" {
			return fmt.Errorf("commit: event %s has no field", e.EventID)
		}
	}
	return nil
}
