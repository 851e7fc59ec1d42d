package input

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
)

// Schema resolves field definitions. *schema.Registry implements it.
type Schema interface {
	Fields(entityType string) (map[string]field.Definition, bool)
}

// Change is the YAML form of a field change. A missing or null New clears
// the field.
type Change struct {
	Field string `yaml:"field"`
	Old   any    `yaml:"old,omitempty"`
	New   any    `yaml:"new"`
}

// Request is the YAML form of a correction request.
type Request struct {
	EntityID            string              `yaml:"entity_id"`
	EntityType          string              `yaml:"entity_type"`
	ExpectedVersion     uint64              `yaml:"expected_version"`
	EffectiveDate       string              `yaml:"effective_date"`
	Reason              string              `yaml:"reason"`
	ActorID             string              `yaml:"actor_id,omitempty"`
	Changes             []Change            `yaml:"changes"`
	Metadata            correction.Metadata `yaml:"metadata,omitempty"`
	AcknowledgeWarnings bool                `yaml:"acknowledge_warnings,omitempty"`
	ConfirmHighImpact   bool                `yaml:"confirm_high_impact,omitempty"`
	OverrideVersion     bool                `yaml:"override_version,omitempty"`
}

// Build converts r into a correction request, coercing values through the
// entity type's field definitions.
func (r Request) Build(s Schema) (correction.Request, error) {
	effective, err := ParseTime(r.EffectiveDate)
	if err != nil {
		return correction.Request{}, fmt.Errorf("request for %s: effective_date: %w", r.EntityID, err)
	}

	defs, _ := s.Fields(r.EntityType)
	changes := make([]correction.FieldChange, 0, len(r.Changes))
	for _, c := range r.Changes {
		newValue, err := coerce(defs, c.Field, c.New)
		if err != nil {
			return correction.Request{}, fmt.Errorf("request for %s: %w", r.EntityID, err)
		}
		oldValue, err := coerce(defs, c.Field, c.Old)
		if err != nil {
			return correction.Request{}, fmt.Errorf("request for %s: old value: %w", r.EntityID, err)
		}
		changes = append(changes, correction.FieldChange{Field: c.Field, OldValue: oldValue, NewValue: newValue})
	}

	return correction.Request{
		EntityID:                r.EntityID,
		EntityType:              r.EntityType,
		Changes:                 changes,
		EffectiveDate:           effective,
		Reason:                  r.Reason,
		ExpectedVersion:         r.ExpectedVersion,
		ActorID:                 r.ActorID,
		Metadata:                r.Metadata,
		OverrideVersionConflict: r.OverrideVersion,
		ConfirmedHighImpact:     r.ConfirmHighImpact,
		AcknowledgeWarnings:     r.AcknowledgeWarnings,
	}, nil
}

// BuildAll converts every request, stopping at the first failure.
func BuildAll(rs []Request, s Schema) ([]correction.Request, error) {
	out := make([]correction.Request, 0, len(rs))
	for i, r := range rs {
		req, err := r.Build(s)
		if err != nil {
			return nil, fmt.Errorf("requests[%d]: %w", i, err)
		}
		out = append(out, req)
	}
	return out, nil
}

// ParseTime accepts a calendar date (midnight UTC) or an RFC 3339 instant.
// An empty string yields the zero time.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := field.ParseDate(s); err == nil {
		return d.Time(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither YYYY-MM-DD nor RFC 3339", s)
	}
	return t.UTC(), nil
}

func coerce(defs map[string]field.Definition, name string, raw any) (field.Value, error) {
	if raw == nil {
		return nil, nil
	}
	def, ok := defs[name]
	if !ok {
		return Infer(raw)
	}
	v, err := field.Coerce(def, raw)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", name, err)
	}
	return v, nil
}

// Infer picks a kind for a value whose field has no definition.
func Infer(raw any) (field.Value, error) {
	switch r := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return field.Text(r), nil
	case bool:
		return field.Bool(r), nil
	case int:
		return field.Number(r), nil
	case int64:
		return field.Number(r), nil
	case uint64:
		return field.Number(r), nil
	case float64:
		return field.Number(r), nil
	case time.Time:
		return field.DateOf(r), nil
	default:
		return field.Coerce(field.Definition{Kind: field.KindJSON}, raw)
	}
}
