package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
)

func TestMarshalTrace_Canonical(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	result := NewResult()
	result.Trace = []TraceEvent{
		{
			Step: 0, Op: OpSubmit, EntityID: "inv-1", Outcome: OutcomeCommitted, Version: 4,
			Events: []correction.Event{{
				EventID: "ev-0001", EntityID: "inv-1", Field: "amount",
				OldValue: field.Number(100), NewValue: field.Number(120),
				ValidTime: at.Truncate(24 * time.Hour), TransactionTime: at,
				Digest: "ignored",
			}},
		},
		{Step: 1, Op: OpPreview, EntityID: "inv-1", Outcome: OutcomePreviewed, Impact: &correction.ImpactAnalysis{
			AffectedEntityCount:     3,
			EffectTypes:             []string{"ledger_recompute"},
			EstimatedProcessingTime: 300 * time.Millisecond,
		}},
		{Step: 2, Op: OpBatch, Outcome: OutcomeCompleted, Succeeded: []string{}, Failed: []FailedEntity{{EntityID: "inv-2", Code: correction.CodeVersionMismatch}}},
	}

	data, err := MarshalTrace("example", result)
	require.NoError(t, err)

	want := `{"scenario_name":"example","trace":[` +
		`{"entity_id":"inv-1","events":[{"entity_id":"inv-1","event_id":"ev-0001","field":"amount","new":120,"old":100,"transaction_time":"2024-05-01T09:00:00Z","valid_time":"2024-05-01T00:00:00Z"}],"op":"submit","outcome":"committed","step":0,"version":4},` +
		`{"entity_id":"inv-1","impact":{"affected":3,"effect_types":["ledger_recompute"],"estimated_ms":300,"warnings":0},"op":"preview","outcome":"previewed","step":1},` +
		`{"failed":[{"code":"VERSION_MISMATCH","entity_id":"inv-2"}],"op":"batch","outcome":"completed","step":2,"succeeded":[]}]}`
	assert.Equal(t, want, string(data))
}

func TestRunWithGolden_SingleCommit(t *testing.T) {
	s := testScenario(t, Step{Submit: validRequest(), Expect: &Expect{Outcome: OutcomeCommitted}})
	s.Name = "harness_single_commit"
	s.Assertions = []Assertion{{Type: AssertVersion, Entity: "inv-1", Version: 3}}

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_Deterministic(t *testing.T) {
	s := testScenario(t, Step{Submit: validRequest()})

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalTrace(s.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
