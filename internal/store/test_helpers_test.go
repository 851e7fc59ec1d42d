package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
)

var baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// createTestStore creates a new on-disk store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEvent creates an event with minimal required fields.
func createTestEvent(id, fieldName string, oldValue, newValue field.Value) correction.Event {
	return correction.Event{
		EventID:   id,
		Field:     fieldName,
		OldValue:  oldValue,
		NewValue:  newValue,
		ValidTime: baseTime.AddDate(0, -1, 0),
		ActorID:   "tester",
		Reason:    "test correction reason",
	}
}

// commitOne commits a single-event request and fails the test on error.
func commitOne(t *testing.T, s *Store, entityID string, expected uint64, at time.Time, e correction.Event) CommitResult {
	t.Helper()
	res, err := s.AppendBatch(context.Background(), Commit{
		EntityID:        entityID,
		EntityType:      "invoice",
		BaselineVersion: expected,
		ExpectedVersion: expected,
		TransactionTime: at,
		Events:          []correction.Event{e},
	})
	if err != nil {
		t.Fatalf("AppendBatch() failed: %v", err)
	}
	return res
}

func collect(t *testing.T, s *Store, entityID, fieldName string) []correction.Event {
	t.Helper()
	var out []correction.Event
	for e, err := range s.History(context.Background(), entityID, fieldName) {
		if err != nil {
			t.Fatalf("History() failed: %v", err)
		}
		out = append(out, e)
	}
	return out
}
