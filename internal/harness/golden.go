package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/retrofix/internal/field"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization. Event digests are left out: they are covered by the
// store's own tests and would make every golden file churn on a format
// change.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"step":    event.Step,
			"op":      event.Op,
			"outcome": event.Outcome,
		}
		if event.EntityID != "" {
			eventMap["entity_id"] = event.EntityID
		}
		if event.Code != "" {
			eventMap["code"] = string(event.Code)
		}
		if event.Stage != "" {
			eventMap["stage"] = event.Stage
		}
		if event.Outcome == OutcomeCommitted || event.Outcome == OutcomeRejected {
			eventMap["version"] = event.Version
		}
		if len(event.Events) > 0 {
			events := make([]any, len(event.Events))
			for j, e := range event.Events {
				em := map[string]any{
					"event_id":         e.EventID,
					"entity_id":        e.EntityID,
					"field":            e.Field,
					"old":              e.OldValue,
					"new":              e.NewValue,
					"valid_time":       canonicalTime(e.ValidTime),
					"transaction_time": canonicalTime(e.TransactionTime),
				}
				if len(e.Metadata.Extra) > 0 {
					em["extra"] = e.Metadata.Extra
				}
				events[j] = em
			}
			eventMap["events"] = events
		}
		if event.Impact != nil {
			eventMap["impact"] = map[string]any{
				"affected":     event.Impact.AffectedEntityCount,
				"effect_types": event.Impact.EffectTypes,
				"estimated_ms": event.Impact.EstimatedProcessingTime.Milliseconds(),
				"warnings":     len(event.Impact.Warnings),
			}
		}
		if event.Op == OpBatch || event.Op == OpPrecheck {
			failed := make([]any, len(event.Failed))
			for j, f := range event.Failed {
				failed[j] = map[string]any{"entity_id": f.EntityID, "code": string(f.Code)}
			}
			eventMap["succeeded"] = event.Succeeded
			eventMap["failed"] = failed
		}
		traceList[i] = eventMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// MarshalTrace renders a scenario's trace as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	return field.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
