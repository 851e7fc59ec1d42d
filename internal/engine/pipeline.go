package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/retrofix/internal/conflict"
	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/impact"
	"github.com/roach88/retrofix/internal/store"
	"github.com/roach88/retrofix/internal/validate"
)

// State is a pipeline lifecycle state.
type State string

const (
	StateReceived        State = "received"
	StateValidated       State = "validated"
	StateConflictChecked State = "conflict_checked"
	StateImpactAnalyzed  State = "impact_analyzed"
	StateCommitted       State = "committed"
	StateRejected        State = "rejected"
)

// Metadata keys the engine writes into event metadata.
const (
	MetadataVersionOverride = "version_override"
	MetadataReverts         = "reverts"
)

// Receipt describes a committed request.
type Receipt struct {
	EntityID        string                      `json:"entity_id"`
	PreviousVersion uint64                      `json:"previous_version"`
	Version         uint64                      `json:"version"`
	TransactionTime time.Time                   `json:"transaction_time"`
	Events          []correction.Event          `json:"events"`
	Impact          correction.ImpactAnalysis   `json:"impact"`
	Warnings        []correction.Violation      `json:"warnings,omitempty"`
	Conflicts       []correction.ConflictRecord `json:"conflicts,omitempty"`
	VersionOverride string                      `json:"version_override,omitempty"`
}

// Pipeline carries one request through the correction stages. Each stage
// is a separate call so a caller can stop between them; nothing is written
// before Commit.
//
// A Pipeline is not safe for concurrent use.
type Pipeline struct {
	c     *Coordinator
	req   correction.Request
	state State

	entity     conflict.State
	violations []correction.Violation
	conflicts  []correction.ConflictRecord
	changes    []correction.FieldChange
	analysis   correction.ImpactAnalysis
	override   string
}

// Begin starts a pipeline for req in state Received.
func (c *Coordinator) Begin(req correction.Request) *Pipeline {
	return &Pipeline{c: c, req: req, state: StateReceived}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return p.state
}

// Request returns the request as the pipeline currently sees it. After a
// version override its ExpectedVersion is the re-read version.
func (p *Pipeline) Request() correction.Request {
	return p.req
}

// Violations returns the validation findings so far.
func (p *Pipeline) Violations() []correction.Violation {
	return p.violations
}

// Conflicts returns the conflict findings so far.
func (p *Pipeline) Conflicts() []correction.ConflictRecord {
	return p.conflicts
}

// Impact returns the impact analysis once AnalyzeImpact has run.
func (p *Pipeline) Impact() correction.ImpactAnalysis {
	return p.analysis
}

// Validate loads the entity and runs the validator. Any error-severity
// violation rejects the request.
func (p *Pipeline) Validate(ctx context.Context) error {
	if err := p.expect(StateReceived); err != nil {
		return err
	}
	if err := p.validate(ctx); err != nil {
		return err
	}
	p.transition(StateValidated)
	return nil
}

func (p *Pipeline) validate(ctx context.Context) error {
	fields, ok := p.c.schemas.Fields(p.req.EntityType)
	if !ok {
		return p.reject(&RejectError{
			Stage: StageValidate,
			Code:  correction.CodeUnknownEntityType,
			Violations: []correction.Violation{{
				Code:     correction.CodeUnknownEntityType,
				Severity: correction.SeverityError,
				Message:  fmt.Sprintf("entity type %q is not defined", p.req.EntityType),
			}},
		})
	}

	entity, err := p.c.loadEntity(ctx, p.req.EntityID)
	if err != nil {
		return p.reject(&RejectError{Stage: StageValidate, Code: correction.CodeSnapshotUnavailable, Err: err})
	}
	bounds, err := p.c.bounds(ctx, p.req.EntityID)
	if err != nil {
		return p.reject(&RejectError{Stage: StageValidate, Code: correction.CodeSnapshotUnavailable, Err: err})
	}
	p.entity = entity

	if entity.EntityType != "" && entity.EntityType != p.req.EntityType {
		return p.reject(&RejectError{
			Stage: StageValidate,
			Code:  correction.CodeEntityTypeMismatch,
			Violations: []correction.Violation{{
				Code:     correction.CodeEntityTypeMismatch,
				Severity: correction.SeverityError,
				Message:  fmt.Sprintf("entity %s is registered as %q, not %q", p.req.EntityID, entity.EntityType, p.req.EntityType),
			}},
			CurrentVersion: entity.CurrentVersion,
		})
	}

	p.violations = validate.Validate(p.req, validate.Input{
		Fields:          fields,
		CurrentValues:   entity.Values,
		Rules:           p.c.schemas.Rules(p.req.EntityType),
		MinReasonLength: p.c.policy.MinReasonLength,
		Bounds:          bounds,
	})
	if correction.HasErrors(p.violations) {
		return p.reject(&RejectError{
			Stage:          StageValidate,
			Code:           firstErrorCode(p.violations),
			Violations:     p.violations,
			CurrentVersion: entity.CurrentVersion,
		})
	}
	return nil
}

// CheckConflicts compares the request with the loaded entity. A version
// mismatch rejects unless the request sets OverrideVersionConflict, in which
// case the entity is re-read, the request re-validated at the current
// version and the override recorded in event metadata. Unacknowledged
// warnings reject, as does a request whose every change is a no-op.
func (p *Pipeline) CheckConflicts(ctx context.Context) error {
	if err := p.expect(StateValidated); err != nil {
		return err
	}

	records, err := conflict.Detect(ctx, p.req, p.entity)
	if err != nil {
		return p.reject(&RejectError{Stage: StageConflict, Code: correction.CodeSnapshotUnavailable, Err: err})
	}

	if conflict.HasVersionMismatch(records) {
		if !p.req.OverrideVersionConflict {
			return p.reject(&RejectError{
				Stage:          StageConflict,
				Code:           correction.CodeVersionMismatch,
				Violations:     p.violations,
				Conflicts:      records,
				CurrentVersion: p.entity.CurrentVersion,
			})
		}

		expected := p.req.ExpectedVersion
		if err := p.validate(ctx); err != nil {
			return err
		}
		p.req.ExpectedVersion = p.entity.CurrentVersion
		p.override = fmt.Sprintf("%d->%d", expected, p.entity.CurrentVersion)
		p.c.logger.Warn("version conflict overridden",
			"entity_id", p.req.EntityID,
			"expected_version", expected,
			"version", p.entity.CurrentVersion,
			"actor_id", p.req.ActorID)

		if records, err = conflict.Detect(ctx, p.req, p.entity); err != nil {
			return p.reject(&RejectError{Stage: StageConflict, Code: correction.CodeSnapshotUnavailable, Err: err})
		}
	}
	p.conflicts = records

	noop := conflict.NoOpFields(records)
	p.changes = p.changes[:0]
	for _, ch := range p.req.Changes {
		if !noop[ch.Field] {
			p.changes = append(p.changes, ch)
		}
	}
	if len(p.changes) == 0 {
		return p.reject(&RejectError{
			Stage:          StageConflict,
			Code:           correction.CodeNoOpChange,
			Violations:     p.violations,
			Conflicts:      records,
			CurrentVersion: p.entity.CurrentVersion,
		})
	}

	hasWarnings := len(correction.Warnings(p.violations)) > 0 || len(conflict.Warnings(records)) > 0
	if hasWarnings && !p.req.AcknowledgeWarnings {
		return p.reject(&RejectError{
			Stage:          StageConflict,
			Code:           correction.CodeWarningsUnacknowledged,
			Violations:     p.violations,
			Conflicts:      records,
			CurrentVersion: p.entity.CurrentVersion,
		})
	}

	p.transition(StateConflictChecked)
	return nil
}

// AnalyzeImpact asks the resolver for downstream effects of the effective
// changes. Impact above the warning threshold rejects unless the request is
// confirmed or the policy does not require confirmation.
func (p *Pipeline) AnalyzeImpact(ctx context.Context) error {
	if err := p.expect(StateConflictChecked); err != nil {
		return err
	}

	analysis, err := p.analyze(ctx, p.changes)
	if err != nil {
		return p.reject(&RejectError{
			Stage:          StageImpact,
			Code:           correction.CodeImpactUnavailable,
			Violations:     p.violations,
			Conflicts:      p.conflicts,
			CurrentVersion: p.entity.CurrentVersion,
			Err:            err,
		})
	}
	p.analysis = analysis

	if p.c.policy.RequireHighImpactConfirmation && p.c.policy.Impact.Exceeds(analysis) && !p.req.ConfirmedHighImpact {
		return p.reject(&RejectError{
			Stage:          StageImpact,
			Code:           correction.CodeHighImpactUnconfirmed,
			Violations:     p.violations,
			Conflicts:      p.conflicts,
			CurrentVersion: p.entity.CurrentVersion,
			Impact:         &analysis,
		})
	}

	p.transition(StateImpactAnalyzed)
	return nil
}

func (p *Pipeline) analyze(ctx context.Context, changes []correction.FieldChange) (correction.ImpactAnalysis, error) {
	req := p.req
	req.Changes = changes
	return impact.Analyze(ctx, req, p.c.resolver, p.c.policy.Impact)
}

// Commit appends one event per effective change in a single store commit.
// Once started it runs to completion even if ctx is cancelled. Losing the
// version race to another writer rejects with VERSION_CONFLICT; the caller
// must restart the whole pipeline.
func (p *Pipeline) Commit(ctx context.Context) (Receipt, error) {
	if err := p.expect(StateImpactAnalyzed); err != nil {
		return Receipt{}, err
	}
	ctx = context.WithoutCancel(ctx)

	meta := p.req.Metadata.Clone()
	if p.override != "" {
		if meta.Extra == nil {
			meta.Extra = make(map[string]string)
		}
		meta.Extra[MetadataVersionOverride] = p.override
	}

	events := make([]correction.Event, 0, len(p.changes))
	for _, ch := range p.changes {
		events = append(events, correction.Event{
			EventID:   p.c.ids.Generate(),
			Field:     ch.Field,
			OldValue:  p.entity.Values[ch.Field],
			NewValue:  ch.NewValue,
			ValidTime: p.req.EffectiveDate,
			ActorID:   p.req.ActorID,
			Reason:    p.req.Reason,
			Metadata:  meta,
		})
	}

	res, err := p.c.store.AppendBatch(ctx, store.Commit{
		EntityID:        p.req.EntityID,
		EntityType:      p.req.EntityType,
		BaselineVersion: p.entity.CurrentVersion,
		ExpectedVersion: p.req.ExpectedVersion,
		TransactionTime: p.c.clock.Now(),
		Events:          events,
	})
	if err != nil {
		rej := &RejectError{
			Stage:          StageCommit,
			Code:           correction.CodeAppendFailed,
			Violations:     p.violations,
			Conflicts:      p.conflicts,
			CurrentVersion: p.entity.CurrentVersion,
			Impact:         &p.analysis,
			Err:            err,
		}
		var vc *store.VersionConflictError
		switch {
		case errors.As(err, &vc):
			rej.Code = correction.CodeVersionConflict
			rej.CurrentVersion = vc.Actual
		case store.IsEntityTypeMismatch(err):
			rej.Code = correction.CodeEntityTypeMismatch
		}
		return Receipt{}, p.reject(rej)
	}

	p.transition(StateCommitted)
	p.c.logger.Info("correction committed",
		"entity_id", p.req.EntityID,
		"version", res.Version,
		"events", len(res.Events),
		"transaction_time", res.TransactionTime)

	return Receipt{
		EntityID:        p.req.EntityID,
		PreviousVersion: p.req.ExpectedVersion,
		Version:         res.Version,
		TransactionTime: res.TransactionTime,
		Events:          res.Events,
		Impact:          p.analysis,
		Warnings:        correction.Warnings(p.violations),
		Conflicts:       p.conflicts,
		VersionOverride: p.override,
	}, nil
}

func (p *Pipeline) expect(want State) error {
	if p.state != want {
		return fmt.Errorf("%w: pipeline is %s, stage needs %s", ErrStageOrder, p.state, want)
	}
	return nil
}

func (p *Pipeline) transition(to State) {
	p.c.logger.Debug("correction stage complete",
		"entity_id", p.req.EntityID,
		"from", p.state,
		"to", to)
	p.state = to
}

func (p *Pipeline) reject(err *RejectError) error {
	err.EntityID = p.req.EntityID
	p.state = StateRejected
	p.c.logger.Warn("correction rejected",
		"entity_id", err.EntityID,
		"stage", err.Stage,
		"code", err.Code,
		"version", err.CurrentVersion,
		"violations", len(err.Violations))
	return err
}

func firstErrorCode(vs []correction.Violation) correction.Code {
	for _, v := range vs {
		if v.Severity == correction.SeverityError {
			return v.Code
		}
	}
	return ""
}
