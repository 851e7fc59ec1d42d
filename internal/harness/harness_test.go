package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
	"github.com/roach88/retrofix/internal/input"
)

func TestRun_CommitsThroughEngine(t *testing.T) {
	s := testScenario(t, Step{Submit: validRequest(), Expect: &Expect{Outcome: OutcomeCommitted, Version: ptr(uint64(3))}})
	s.Assertions = []Assertion{
		{Type: AssertCurrentValue, Entity: "inv-1", Field: "amount", Value: 120},
		{Type: AssertVersion, Entity: "inv-1", Version: 3},
		{Type: AssertEventCount, Entity: "inv-1", Field: "amount", Count: 1},
		{Type: AssertHistory, Entity: "inv-1", Field: "amount", Values: []any{120}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 1)
	step := result.Trace[0]
	assert.Equal(t, OpSubmit, step.Op)
	assert.Equal(t, OutcomeCommitted, step.Outcome)
	require.Len(t, step.Events, 1)
	assert.Equal(t, "ev-0001", step.Events[0].EventID)
	assert.Equal(t, field.Number(100), step.Events[0].OldValue)
	assert.True(t, DefaultNow.Equal(step.Events[0].TransactionTime))
}

func TestRun_RejectionIsAnOutcome(t *testing.T) {
	req := validRequest()
	req.Reason = "typo"
	s := testScenario(t, Step{Submit: req, Expect: &Expect{Outcome: OutcomeRejected, Code: string(correction.CodeReasonTooShort)}})

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "validate", result.Trace[0].Stage)
	assert.Equal(t, uint64(2), result.Trace[0].Version)
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	req := validRequest()
	req.ExpectedVersion = 1
	s := testScenario(t, Step{Submit: req, Expect: &Expect{Outcome: OutcomeCommitted}})

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "flow[0]: expected outcome committed, got rejected")
	assert.Contains(t, result.Errors[0], "VERSION_MISMATCH")
}

func TestRun_AssertionFailureFails(t *testing.T) {
	s := testScenario(t, Step{Submit: validRequest()})
	s.Assertions = []Assertion{{Type: AssertCurrentValue, Entity: "inv-1", Field: "amount", Value: 999}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: current_value")
	assert.Contains(t, result.Errors[0], "Actual: 120")
}

func TestRun_StepsAdvanceTheClock(t *testing.T) {
	second := validRequest()
	second.ExpectedVersion = 3
	second.Changes = []input.Change{{Field: "amount", New: 130}}
	s := testScenario(t, Step{Submit: validRequest()}, Step{Submit: second})
	s.Now = "2024-06-01T12:00:00Z"

	result, err := Run(s)
	require.NoError(t, err)
	require.Len(t, result.Trace, 2)
	require.Len(t, result.Trace[1].Events, 1)
	assert.Equal(t, "2024-06-01T12:01:00Z", canonicalTime(result.Trace[1].Events[0].TransactionTime))
	assert.Equal(t, field.Number(120), result.Trace[1].Events[0].OldValue)
}

func TestRun_PreviewWritesNothing(t *testing.T) {
	s := testScenario(t,
		Step{Preview: validRequest(), Expect: &Expect{Outcome: OutcomePreviewed, Affected: ptr(3)}},
		Step{Preview: validRequest(), Expect: &Expect{Outcome: OutcomePreviewed, Affected: ptr(3)}},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, result.Trace[0].Impact, result.Trace[1].Impact)
	assert.Equal(t, []string{"ledger_recompute"}, result.Trace[0].Impact.EffectTypes)
}

func TestRun_WithoutResolver(t *testing.T) {
	s := testScenario(t, Step{Preview: validRequest(), Expect: &Expect{Outcome: OutcomePreviewed, Affected: ptr(0)}})
	s.Resolver = ResolverNone

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Trace[0].Impact.Warnings, 1)
}

func TestRun_BatchAndPrecheck(t *testing.T) {
	stale := *validRequest()
	stale.EntityID = "inv-2"
	stale.ExpectedVersion = 9
	reqs := []input.Request{*validRequest(), stale}

	s := testScenario(t,
		Step{Precheck: reqs, Expect: &Expect{Outcome: OutcomePrechecked, Succeeded: []string{"inv-1"}, Failed: []string{"inv-2"}}},
		Step{Batch: reqs, Expect: &Expect{Outcome: OutcomeCompleted, Succeeded: []string{"inv-1"}, Failed: []string{"inv-2"}}},
	)
	s.Assertions = []Assertion{{Type: AssertVersion, Entity: "inv-1", Version: 3}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace[0].Events)
	require.Len(t, result.Trace[1].Events, 1)
	assert.Equal(t, []FailedEntity{{EntityID: "inv-2", Code: correction.CodeVersionMismatch}}, result.Trace[1].Failed)
}

func TestRun_Revert(t *testing.T) {
	s := testScenario(t,
		Step{Submit: validRequest()},
		Step{Revert: &RevertStep{EntityID: "inv-1", Field: "amount", EventID: "ev-0001", Reason: "Original amount was right"},
			Expect: &Expect{Outcome: OutcomeCommitted, Version: ptr(uint64(4))}},
		Step{Revert: &RevertStep{EntityID: "inv-1", Field: "amount", EventID: "ev-0404", Reason: "Original amount was right"},
			Expect: &Expect{Outcome: OutcomeRejected, Code: string(CodeEventNotFound)}},
	)
	s.Assertions = []Assertion{{Type: AssertHistory, Entity: "inv-1", Field: "amount", Values: []any{120, 100}}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "ev-0001", result.Trace[1].Events[0].Metadata.Extra["reverts"])
}

func TestRun_EngineConfig(t *testing.T) {
	req := validRequest()
	req.Reason = "OCR fix"
	s := testScenario(t, Step{Submit: req, Expect: &Expect{Outcome: OutcomeCommitted}})
	s.Engine.MinReasonLength = 5
	s.Assertions = []Assertion{
		{Type: AssertEventCount, Entity: "inv-1", Count: 1},
		{Type: AssertVersion, Entity: "inv-1", Version: 3},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("schema", func(t *testing.T) {
		s := testScenario(t, Step{Submit: validRequest()})
		s.Schema = t.TempDir()
		_, err := Run(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load schema")
	})

	t.Run("entity type", func(t *testing.T) {
		s := testScenario(t, Step{Submit: validRequest()})
		s.Entities["sup-1"] = input.Entity{Type: "supplier"}
		_, err := Run(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode entities")
	})

	t.Run("uncoercible value", func(t *testing.T) {
		req := validRequest()
		req.Changes = []input.Change{{Field: "amount", New: "lots"}}
		_, err := Run(testScenario(t, Step{Submit: req}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "flow step 0 failed")
	})
}
