package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/engine"
	"github.com/roach88/retrofix/internal/input"
	"github.com/roach88/retrofix/internal/schema"
	"github.com/roach88/retrofix/internal/store"
	"github.com/roach88/retrofix/internal/testutil"
)

// CodeEventNotFound is recorded for revert steps naming an event that is not
// in the field's history.
const CodeEventNotFound correction.Code = "EVENT_NOT_FOUND"

// stepInterval separates the clock readings of consecutive flow steps.
const stepInterval = time.Minute

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and event IDs.
type Harness struct {
	store   *store.Store
	engine  *engine.Coordinator
	schemas *schema.Registry
	clock   *testutil.StepClock
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Load the schema and decode entity snapshots
// 2. Create fresh in-memory database and coordinator
// 3. Execute flow steps, checking expect clauses
// 4. Evaluate assertions against the final ledger
func Run(scenario *Scenario) (*Result, error) {
	reg, errs := schema.LoadDir(scenario.Schema, schema.LoadModeCollectAll)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load schema %s: %w", scenario.Schema, errors.Join(errs...))
	}

	snapshots, err := input.DecodeEntities(scenario.Entities, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode entities: %w", err)
	}

	start := DefaultNow
	if scenario.Now != "" {
		if start, err = time.Parse(time.RFC3339, scenario.Now); err != nil {
			return nil, fmt.Errorf("invalid now: %w", err)
		}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	// Suppress logs in tests
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewStepClock(start, 0)

	opts := []engine.Option{
		engine.WithSnapshots(snapshots),
		engine.WithValidTimeFloors(snapshots),
		engine.WithClock(clock),
		engine.WithIDGenerator(testutil.NewSequentialIDs("ev")),
		engine.WithLogger(logger),
		engine.WithPolicy(engine.PolicyFromConfig(scenario.Engine)),
	}
	if scenario.Resolver != ResolverNone {
		opts = append(opts, engine.WithResolver(schema.NewStaticResolver(reg)))
	}

	h := &Harness{
		store:   st,
		engine:  engine.New(st, reg, opts...),
		schemas: reg,
		clock:   clock,
		logger:  logger,
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Flow {
		clock.Set(start.Add(time.Duration(i) * stepInterval))

		event, err := h.executeStep(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("flow step %d failed: %w", i, err)
		}
		result.Trace = append(result.Trace, event)

		if step.Expect != nil {
			for _, msg := range checkExpect(i, step.Expect, event) {
				result.AddError(msg)
			}
		}
	}

	actx := &AssertionContext{Ctx: ctx, Store: st}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// executeStep runs one flow step. Rejections are outcomes, not errors; an
// error means the step could not be run at all.
func (h *Harness) executeStep(ctx context.Context, index int, step Step) (TraceEvent, error) {
	event := TraceEvent{Step: index, Op: step.Op()}

	switch event.Op {
	case OpSubmit:
		req, err := step.Submit.Build(h.schemas)
		if err != nil {
			return event, err
		}
		event.EntityID = req.EntityID
		receipt, err := h.engine.SubmitCorrection(ctx, req)
		return h.recordCommit(event, receipt, err)

	case OpRevert:
		r := step.Revert
		effective, err := input.ParseTime(r.EffectiveDate)
		if err != nil {
			return event, fmt.Errorf("revert effective_date: %w", err)
		}
		event.EntityID = r.EntityID
		receipt, err := h.engine.Revert(ctx, engine.RevertRequest{
			EntityID:            r.EntityID,
			EntityType:          r.EntityType,
			Field:               r.Field,
			EventID:             r.EventID,
			Reason:              r.Reason,
			ActorID:             r.ActorID,
			EffectiveDate:       effective,
			AcknowledgeWarnings: r.AcknowledgeWarnings,
			ConfirmedHighImpact: r.ConfirmHighImpact,
		})
		if errors.Is(err, engine.ErrEventNotFound) {
			event.Outcome = OutcomeRejected
			event.Code = CodeEventNotFound
			return event, nil
		}
		return h.recordCommit(event, receipt, err)

	case OpPreview:
		req, err := step.Preview.Build(h.schemas)
		if err != nil {
			return event, err
		}
		event.EntityID = req.EntityID
		analysis, err := h.engine.PreviewImpact(ctx, req)
		if err != nil {
			return recordReject(event, err)
		}
		event.Outcome = OutcomePreviewed
		event.Impact = &analysis
		return event, nil

	case OpBatch, OpPrecheck:
		requests := step.Batch
		if event.Op == OpPrecheck {
			requests = step.Precheck
		}
		reqs, err := input.BuildAll(requests, h.schemas)
		if err != nil {
			return event, err
		}
		var res engine.BatchResult
		if event.Op == OpBatch {
			res = h.engine.SubmitBatch(ctx, reqs)
			event.Outcome = OutcomeCompleted
		} else {
			res = h.engine.PrecheckBatch(ctx, reqs)
			event.Outcome = OutcomePrechecked
		}
		event.Succeeded = res.Succeeded
		event.Failed = []FailedEntity{}
		for _, f := range res.Failed {
			event.Failed = append(event.Failed, FailedEntity{EntityID: f.EntityID, Code: f.Code})
		}
		for _, r := range res.Receipts {
			event.Events = append(event.Events, r.Events...)
		}
		return event, nil
	}

	return event, fmt.Errorf("step has no operation")
}

func (h *Harness) recordCommit(event TraceEvent, receipt engine.Receipt, err error) (TraceEvent, error) {
	if err != nil {
		return recordReject(event, err)
	}
	event.Outcome = OutcomeCommitted
	event.Version = receipt.Version
	event.Events = receipt.Events
	h.logger.Debug("step committed", "entity_id", event.EntityID, "version", receipt.Version)
	return event, nil
}

func recordReject(event TraceEvent, err error) (TraceEvent, error) {
	var re *engine.RejectError
	if !errors.As(err, &re) {
		return event, err
	}
	event.Outcome = OutcomeRejected
	event.Code = re.Code
	event.Stage = string(re.Stage)
	event.Version = re.CurrentVersion
	return event, nil
}

// checkExpect compares a step's trace entry against its expect clause.
func checkExpect(index int, want *Expect, got TraceEvent) []string {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("flow[%d]: ", index)+fmt.Sprintf(format, args...))
	}

	if got.Outcome != want.Outcome {
		fail("expected outcome %s, got %s (code %q)", want.Outcome, got.Outcome, got.Code)
	}
	if want.Code != "" && string(got.Code) != want.Code {
		fail("expected code %s, got %q", want.Code, got.Code)
	}
	if want.Version != nil && got.Version != *want.Version {
		fail("expected version %d, got %d", *want.Version, got.Version)
	}
	if want.Affected != nil {
		affected := 0
		if got.Impact != nil {
			affected = got.Impact.AffectedEntityCount
		}
		if affected != *want.Affected {
			fail("expected %d affected entities, got %d", *want.Affected, affected)
		}
	}
	if want.Succeeded != nil && !slices.Equal(want.Succeeded, got.Succeeded) {
		fail("expected succeeded %v, got %v", want.Succeeded, got.Succeeded)
	}
	if want.Failed != nil {
		failed := make([]string, 0, len(got.Failed))
		for _, f := range got.Failed {
			failed = append(failed, f.EntityID)
		}
		if !slices.Equal(want.Failed, failed) {
			fail("expected failed %v, got %v", want.Failed, failed)
		}
	}
	return errs
}
