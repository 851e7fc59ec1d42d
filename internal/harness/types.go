package harness

import (
	"time"

	"github.com/roach88/retrofix/internal/correction"
)

// Step outcomes recorded in the trace.
const (
	OutcomeCommitted  = "committed"
	OutcomeRejected   = "rejected"
	OutcomePreviewed  = "previewed"
	OutcomeCompleted  = "completed"
	OutcomePrechecked = "prechecked"
)

// TraceEvent records what one flow step did.
type TraceEvent struct {
	Step     int    `json:"step"`
	Op       string `json:"op"`
	EntityID string `json:"entity_id,omitempty"`
	Outcome  string `json:"outcome"`

	// Code and Stage are set for rejections.
	Code  correction.Code `json:"code,omitempty"`
	Stage string          `json:"stage,omitempty"`

	// Version is the entity version after a commit, or the version the
	// pipeline observed when it rejected.
	Version uint64 `json:"version"`

	Events []correction.Event `json:"events,omitempty"`

	Impact *correction.ImpactAnalysis `json:"impact,omitempty"`

	// Succeeded and Failed are set for batch and precheck steps.
	Succeeded []string       `json:"succeeded,omitempty"`
	Failed    []FailedEntity `json:"failed,omitempty"`
}

// FailedEntity is one rejected request of a batch step.
type FailedEntity struct {
	EntityID string          `json:"entity_id"`
	Code     correction.Code `json:"code"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace has one entry per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// canonicalTime is the trace rendering of event times.
func canonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
