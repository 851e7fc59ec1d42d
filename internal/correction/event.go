package correction

import (
	"fmt"
	"time"

	"github.com/roach88/retrofix/internal/field"
)

// DigestDomain separates event digests from any other hash in the system.
const DigestDomain = "retrofix/event/v1"

// Event is one immutable ledger entry. Seq and TransactionTime are assigned by
// the store on append.
type Event struct {
	EventID         string
	Seq             int64
	EntityID        string
	EntityType      string
	Field           string
	OldValue        field.Value
	NewValue        field.Value
	TransactionTime time.Time
	ValidTime       time.Time
	ActorID         string
	Reason          string
	SourceVersion   uint64
	Metadata        Metadata
	Digest          string
}

// ComputeDigest hashes the canonical form of the event's content. Seq is
// excluded since it is local to one store.
func (e Event) ComputeDigest() (string, error) {
	oldValue, err := field.MarshalValue(e.OldValue)
	if err != nil {
		return "", fmt.Errorf("old value: %w", err)
	}
	newValue, err := field.MarshalValue(e.NewValue)
	if err != nil {
		return "", fmt.Errorf("new value: %w", err)
	}
	meta := map[string]any{
		"source":       e.Metadata.Source,
		"document_ref": e.Metadata.DocumentRef,
	}
	if len(e.Metadata.Tags) > 0 {
		meta["tags"] = e.Metadata.Tags
	}
	if len(e.Metadata.Extra) > 0 {
		meta["extra"] = e.Metadata.Extra
	}

	content, err := field.MarshalCanonical(map[string]any{
		"event_id":         e.EventID,
		"entity_id":        e.EntityID,
		"entity_type":      e.EntityType,
		"field":            e.Field,
		"old_value":        field.JSON(oldValue),
		"new_value":        field.JSON(newValue),
		"transaction_time": e.TransactionTime.UTC().Format(time.RFC3339Nano),
		"valid_time":       e.ValidTime.UTC().Format(time.RFC3339Nano),
		"actor_id":         e.ActorID,
		"reason":           e.Reason,
		"source_version":   e.SourceVersion,
		"metadata":         meta,
	})
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize event %s: %w", e.EventID, err)
	}
	return field.HashWithDomain(DigestDomain, content), nil
}

// VerifyDigest reports whether the stored digest matches the event content.
func (e Event) VerifyDigest() (bool, error) {
	d, err := e.ComputeDigest()
	if err != nil {
		return false, err
	}
	return d == e.Digest, nil
}
