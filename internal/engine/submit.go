package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
)

// SubmitCorrection runs req through every stage and commits it. Context
// cancellation is honoured between stages; once Commit starts it completes.
// Rejections are returned as *RejectError.
func (c *Coordinator) SubmitCorrection(ctx context.Context, req correction.Request) (Receipt, error) {
	p := c.Begin(req)
	for _, stage := range []func(context.Context) error{p.Validate, p.CheckConflicts, p.AnalyzeImpact} {
		if err := ctx.Err(); err != nil {
			return Receipt{}, err
		}
		if err := stage(ctx); err != nil {
			return Receipt{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	return p.Commit(ctx)
}

// PreviewImpact validates req and analyzes its impact without committing.
// Conflict and policy gates are skipped, so a request that would be
// rejected for those reasons still gets a preview. Calling it repeatedly
// against unchanged state returns the same analysis.
func (c *Coordinator) PreviewImpact(ctx context.Context, req correction.Request) (correction.ImpactAnalysis, error) {
	p := c.Begin(req)
	if err := p.Validate(ctx); err != nil {
		return correction.ImpactAnalysis{}, err
	}
	analysis, err := p.analyze(ctx, req.Changes)
	if err != nil {
		return correction.ImpactAnalysis{}, p.reject(&RejectError{
			Stage:          StageImpact,
			Code:           correction.CodeImpactUnavailable,
			Violations:     p.violations,
			CurrentVersion: p.entity.CurrentVersion,
			Err:            err,
		})
	}
	return analysis, nil
}

// GetFieldHistory returns every correction of one field in transaction time
// order. An uncorrected field has an empty history.
func (c *Coordinator) GetFieldHistory(ctx context.Context, entityID, fieldName string) ([]correction.Event, error) {
	events := []correction.Event{}
	for e, err := range c.store.History(ctx, entityID, fieldName) {
		if err != nil {
			return nil, fmt.Errorf("history of %s.%s: %w", entityID, fieldName, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// RevertRequest asks for a field to be restored to the value it had before
// a given event.
type RevertRequest struct {
	EntityID   string
	EntityType string
	Field      string
	EventID    string
	Reason     string
	ActorID    string

	// EffectiveDate defaults to the valid time of the reverted event.
	EffectiveDate time.Time

	Metadata            correction.Metadata
	AcknowledgeWarnings bool
	ConfirmedHighImpact bool
}

// BuildRevert turns r into an ordinary correction whose new value is the
// target event's old value, expected at the entity's current version.
func (c *Coordinator) BuildRevert(ctx context.Context, r RevertRequest) (correction.Request, error) {
	events, err := c.GetFieldHistory(ctx, r.EntityID, r.Field)
	if err != nil {
		return correction.Request{}, err
	}
	var target *correction.Event
	for i := range events {
		if events[i].EventID == r.EventID {
			target = &events[i]
			break
		}
	}
	if target == nil {
		return correction.Request{}, fmt.Errorf("%w: %s in history of %s.%s", ErrEventNotFound, r.EventID, r.EntityID, r.Field)
	}

	version, _, err := c.store.CurrentVersion(ctx, r.EntityID)
	if err != nil {
		return correction.Request{}, fmt.Errorf("read version of %s: %w", r.EntityID, err)
	}

	effective := r.EffectiveDate
	if effective.IsZero() {
		effective = target.ValidTime
	}
	entityType := r.EntityType
	if entityType == "" {
		entityType = target.EntityType
	}

	meta := r.Metadata.Clone()
	if meta.Extra == nil {
		meta.Extra = make(map[string]string)
	}
	meta.Extra[MetadataReverts] = r.EventID

	return correction.Request{
		EntityID:            r.EntityID,
		EntityType:          entityType,
		Changes:             []correction.FieldChange{{Field: r.Field, NewValue: target.OldValue}},
		EffectiveDate:       effective,
		Reason:              r.Reason,
		ExpectedVersion:     version,
		ActorID:             r.ActorID,
		Metadata:            meta,
		AcknowledgeWarnings: r.AcknowledgeWarnings,
		ConfirmedHighImpact: r.ConfirmedHighImpact,
	}, nil
}

// Revert builds the correction for r and submits it.
func (c *Coordinator) Revert(ctx context.Context, r RevertRequest) (Receipt, error) {
	req, err := c.BuildRevert(ctx, r)
	if err != nil {
		return Receipt{}, err
	}
	return c.SubmitCorrection(ctx, req)
}

// CurrentValue returns the committed value of a field, or ok=false if the
// field has never been corrected.
func (c *Coordinator) CurrentValue(ctx context.Context, entityID, fieldName string) (field.Value, bool, error) {
	return c.store.CurrentValue(ctx, entityID, fieldName)
}
