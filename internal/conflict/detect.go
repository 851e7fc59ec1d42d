package conflict

import (
	"context"
	"fmt"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
)

// Source supplies the current state of an entity.
type Source interface {
	Version(ctx context.Context, entityID string) (uint64, error)
	// Value returns the field's current value; ok is false when the field
	// has no value.
	Value(ctx context.Context, entityID, fieldName string) (v field.Value, ok bool, err error)
}

// State is an in-memory Source for a single entity.
type State struct {
	CurrentVersion uint64
	Values         map[string]field.Value
	// EntityType is the type the entity is registered under; empty when
	// neither the store nor the snapshot knows it.
	EntityType string
}

// Version implements Source.
func (s State) Version(context.Context, string) (uint64, error) {
	return s.CurrentVersion, nil
}

// Value implements Source.
func (s State) Value(_ context.Context, _ string, fieldName string) (field.Value, bool, error) {
	v, ok := s.Values[fieldName]
	return v, ok && v != nil, nil
}

// Detect returns the conflicts between req and the state reported by src,
// version mismatch first, then per-change findings in request order.
func Detect(ctx context.Context, req correction.Request, src Source) ([]correction.ConflictRecord, error) {
	current, err := src.Version(ctx, req.EntityID)
	if err != nil {
		return nil, fmt.Errorf("read version of %s: %w", req.EntityID, err)
	}

	records := []correction.ConflictRecord{}
	record := func(t correction.ConflictType, sev correction.Severity, fieldName, msg string) {
		records = append(records, correction.ConflictRecord{
			Type:            t,
			Severity:        sev,
			Field:           fieldName,
			Message:         msg,
			ExpectedVersion: req.ExpectedVersion,
			CurrentVersion:  current,
		})
	}

	if current != req.ExpectedVersion {
		record(correction.ConflictVersionMismatch, correction.SeverityError, "",
			fmt.Sprintf("request expects version %d but entity %s is at version %d", req.ExpectedVersion, req.EntityID, current))
	}

	for _, c := range req.Changes {
		value, ok, err := src.Value(ctx, req.EntityID, c.Field)
		if err != nil {
			return nil, fmt.Errorf("read %s.%s: %w", req.EntityID, c.Field, err)
		}
		if !ok {
			value = nil
		}

		if field.Equal(c.NewValue, value) {
			record(correction.ConflictNoOpChange, correction.SeverityWarning, c.Field,
				fmt.Sprintf("new value %s equals the current value", describe(c.NewValue)))
		}
		if c.OldValue != nil && !field.Equal(c.OldValue, value) {
			record(correction.ConflictConcurrentEdit, correction.SeverityWarning, c.Field,
				fmt.Sprintf("expected old value %s but current value is %s", describe(c.OldValue), describe(value)))
		}
	}
	return records, nil
}

// HasVersionMismatch reports whether records contain a version mismatch.
func HasVersionMismatch(records []correction.ConflictRecord) bool {
	for _, r := range records {
		if r.Type == correction.ConflictVersionMismatch {
			return true
		}
	}
	return false
}

// NoOpFields returns the fields flagged as no-op changes.
func NoOpFields(records []correction.ConflictRecord) map[string]bool {
	out := make(map[string]bool)
	for _, r := range records {
		if r.Type == correction.ConflictNoOpChange {
			out[r.Field] = true
		}
	}
	return out
}

// Warnings returns the warning-severity records.
func Warnings(records []correction.ConflictRecord) []correction.ConflictRecord {
	var out []correction.ConflictRecord
	for _, r := range records {
		if r.Severity == correction.SeverityWarning {
			out = append(out, r)
		}
	}
	return out
}

func describe(v field.Value) string {
	if v == nil {
		return "<unset>"
	}
	return fmt.Sprintf("%q", v.String())
}
