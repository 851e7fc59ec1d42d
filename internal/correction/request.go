package correction

import (
	"time"

	"github.com/roach88/retrofix/internal/field"
)

// Metadata is attached to every event written for a request.
type Metadata struct {
	Source      string            `json:"source,omitempty" yaml:"source,omitempty"`
	DocumentRef string            `json:"document_ref,omitempty" yaml:"document_ref,omitempty"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Extra       map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Clone returns a deep copy so that the pipeline can annotate metadata
// without touching the caller's request.
func (m Metadata) Clone() Metadata {
	out := Metadata{Source: m.Source, DocumentRef: m.DocumentRef}
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.Extra != nil {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// FieldChange proposes a new value for one field. OldValue is the caller's
// view of the current value and may be nil.
type FieldChange struct {
	Field    string
	OldValue field.Value
	NewValue field.Value
}

// Request is one unit of correction work against a single entity.
type Request struct {
	EntityID        string
	EntityType      string
	Changes         []FieldChange
	EffectiveDate   time.Time
	Reason          string
	ExpectedVersion uint64
	ActorID         string
	Metadata        Metadata

	// OverrideVersionConflict commits against the entity's current version
	// when ExpectedVersion is stale. The override is recorded in the events.
	OverrideVersionConflict bool
	// ConfirmedHighImpact allows commits whose impact exceeds the warning
	// threshold.
	ConfirmedHighImpact bool
	// AcknowledgeWarnings allows commits that carry warning-severity
	// violations or conflicts.
	AcknowledgeWarnings bool
}

// ChangedFields returns the field names of the request in order.
func (r Request) ChangedFields() []string {
	names := make([]string, 0, len(r.Changes))
	for _, c := range r.Changes {
		names = append(names, c.Field)
	}
	return names
}
