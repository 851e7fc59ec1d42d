package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/retrofix/internal/field"
	"github.com/roach88/retrofix/internal/input"
	"github.com/roach88/retrofix/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %s", event.Step, event.Op, event.EntityID, event.Outcome)
		if event.Code != "" {
			fmt.Fprintf(&buf, " %s", event.Code)
		}
		buf.WriteString("\n")
	}

	return buf.String()
}

// assertCurrentValue checks the value a field resolves to by transaction time.
func assertCurrentValue(ctx context.Context, st store.EventStore, trace []TraceEvent, a Assertion) error {
	v, ok, err := st.CurrentValue(ctx, a.Entity, a.Field)
	if err != nil {
		return fmt.Errorf("current_value %s.%s: %w", a.Entity, a.Field, err)
	}
	if !ok {
		v = nil
	}
	if valueMatches(v, a.Value) {
		return nil
	}
	return &AssertionError{
		Type:     AssertCurrentValue,
		Expected: fmt.Sprintf("%s.%s = %s", a.Entity, a.Field, describeExpected(a.Value)),
		Actual:   describeValue(v, ok),
		Trace:    trace,
	}
}

// assertValueAsOf replays the ledger to a point on both timelines. Fields
// the ledger never recorded read as null.
func assertValueAsOf(ctx context.Context, st store.EventStore, trace []TraceEvent, a Assertion) error {
	var at store.AsOf
	var err error
	if a.ValidAt != "" {
		if at.ValidAt, err = input.ParseTime(a.ValidAt); err != nil {
			return fmt.Errorf("value_as_of valid_at: %w", err)
		}
	}
	if a.KnownAt != "" {
		if at.KnownAt, err = input.ParseTime(a.KnownAt); err != nil {
			return fmt.Errorf("value_as_of known_at: %w", err)
		}
	}

	state, err := store.Replay(ctx, st, a.Entity, at)
	if err != nil {
		return fmt.Errorf("value_as_of %s.%s: %w", a.Entity, a.Field, err)
	}
	v, ok := state.Values[a.Field]
	if valueMatches(v, a.Value) {
		return nil
	}
	return &AssertionError{
		Type:     AssertValueAsOf,
		Expected: fmt.Sprintf("%s.%s = %s (valid_at %q, known_at %q)", a.Entity, a.Field, describeExpected(a.Value), a.ValidAt, a.KnownAt),
		Actual:   describeValue(v, ok),
		Trace:    trace,
	}
}

// assertVersion checks the committed version of an entity. An entity the
// store has never seen is at version 0.
func assertVersion(ctx context.Context, st store.EventStore, trace []TraceEvent, a Assertion) error {
	version, _, err := st.CurrentVersion(ctx, a.Entity)
	if err != nil {
		return fmt.Errorf("version %s: %w", a.Entity, err)
	}
	if version != a.Version {
		return &AssertionError{
			Type:     AssertVersion,
			Expected: fmt.Sprintf("%s at version %d", a.Entity, a.Version),
			Actual:   fmt.Sprintf("version %d", version),
			Trace:    trace,
		}
	}
	return nil
}

// assertEventCount counts the events of an entity, or of one of its fields.
func assertEventCount(ctx context.Context, st store.EventStore, trace []TraceEvent, a Assertion) error {
	events, err := st.EntityHistory(ctx, a.Entity)
	if err != nil {
		return fmt.Errorf("event_count %s: %w", a.Entity, err)
	}
	count := 0
	for _, e := range events {
		if a.Field == "" || e.Field == a.Field {
			count++
		}
	}
	if count != a.Count {
		target := a.Entity
		if a.Field != "" {
			target += "." + a.Field
		}
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d events for %s", a.Count, target),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertHistory checks the new values of a field's events in transaction
// time order.
func assertHistory(ctx context.Context, st store.EventStore, trace []TraceEvent, a Assertion) error {
	var got []field.Value
	for e, err := range st.History(ctx, a.Entity, a.Field) {
		if err != nil {
			return fmt.Errorf("history %s.%s: %w", a.Entity, a.Field, err)
		}
		got = append(got, e.NewValue)
	}

	match := len(got) == len(a.Values)
	for i := 0; match && i < len(got); i++ {
		match = valueMatches(got[i], a.Values[i])
	}
	if match {
		return nil
	}

	want := make([]string, len(a.Values))
	for i, v := range a.Values {
		want[i] = describeExpected(v)
	}
	actual := make([]string, len(got))
	for i, v := range got {
		actual[i] = describeValue(v, true)
	}
	return &AssertionError{
		Type:     AssertHistory,
		Expected: fmt.Sprintf("%s.%s history [%s]", a.Entity, a.Field, strings.Join(want, ", ")),
		Actual:   fmt.Sprintf("[%s]", strings.Join(actual, ", ")),
		Trace:    trace,
	}
}

// valueMatches compares a stored value with a YAML scalar by text form, so
// 120, 120.0 and "120" all match Number(120).
func valueMatches(actual field.Value, expected any) bool {
	if expected == nil {
		return actual == nil
	}
	if actual == nil {
		return false
	}
	if n, ok := actual.(field.Number); ok {
		if want, err := field.Coerce(field.Definition{Kind: field.KindNumber}, expected); err == nil {
			return field.Equal(n, want)
		}
	}
	return actual.String() == fmt.Sprint(expected)
}

func describeExpected(v any) string {
	if v == nil {
		return "<none>"
	}
	return fmt.Sprint(v)
}

func describeValue(v field.Value, ok bool) string {
	if !ok || v == nil {
		return "<none>"
	}
	return v.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store store.EventStore
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the ledger.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	if actx == nil || actx.Store == nil {
		return []string{"assertions require a store"}
	}
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCurrentValue:
			err = assertCurrentValue(ctx, actx.Store, result.Trace, assertion)
		case AssertVersion:
			err = assertVersion(ctx, actx.Store, result.Trace, assertion)
		case AssertEventCount:
			err = assertEventCount(ctx, actx.Store, result.Trace, assertion)
		case AssertHistory:
			err = assertHistory(ctx, actx.Store, result.Trace, assertion)
		case AssertValueAsOf:
			err = assertValueAsOf(ctx, actx.Store, result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
