package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
)

// MarshalValueText converts a field value to its tagged JSON TEXT form.
func MarshalValueText(v field.Value) (string, error) {
	data, err := field.MarshalValue(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MarshalMetadata converts metadata to canonical JSON TEXT. Empty members are
// omitted so that an empty Metadata stores as {}.
func MarshalMetadata(m correction.Metadata) (string, error) {
	obj := map[string]any{}
	if m.Source != "" {
		obj["source"] = m.Source
	}
	if m.DocumentRef != "" {
		obj["document_ref"] = m.DocumentRef
	}
	if len(m.Tags) > 0 {
		obj["tags"] = m.Tags
	}
	if len(m.Extra) > 0 {
		obj["extra"] = m.Extra
	}
	data, err := field.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

// UnmarshalMetadata parses the output of MarshalMetadata.
func UnmarshalMetadata(data string) (correction.Metadata, error) {
	var m correction.Metadata
	if data == "" || data == "{}" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return m, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return m, nil
}

// encodedEvent holds the TEXT columns of an event row.
type encodedEvent struct {
	oldValue string
	newValue string
	metadata string
}

func encodeEvent(e correction.Event) (encodedEvent, error) {
	var enc encodedEvent
	var err error
	if enc.oldValue, err = MarshalValueText(e.OldValue); err != nil {
		return enc, fmt.Errorf("old value of %s: %w", e.Field, err)
	}
	if enc.newValue, err = MarshalValueText(e.NewValue); err != nil {
		return enc, fmt.Errorf("new value of %s: %w", e.Field, err)
	}
	if enc.metadata, err = MarshalMetadata(e.Metadata); err != nil {
		return enc, err
	}
	return enc, nil
}

func decodeEvent(e *correction.Event, enc encodedEvent) error {
	var err error
	if e.OldValue, err = field.UnmarshalValue([]byte(enc.oldValue)); err != nil {
		return fmt.Errorf("event %s old value: %w", e.EventID, err)
	}
	if e.NewValue, err = field.UnmarshalValue([]byte(enc.newValue)); err != nil {
		return fmt.Errorf("event %s new value: %w", e.EventID, err)
	}
	if e.Metadata, err = UnmarshalMetadata(enc.metadata); err != nil {
		return fmt.Errorf("event %s: %w", e.EventID, err)
	}
	return nil
}

func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}
