package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
	"github.com/roach88/retrofix/internal/schema"
	"github.com/roach88/retrofix/internal/store"
	"github.com/roach88/retrofix/internal/testutil"
)

const testSchema = `
entity: invoice: {
	fields: {
		amount:    {type: "number", required: true, min: 0}
		currency:  {type: "enum", options: ["EUR", "USD", "GBP"]}
		issued_on: {type: "date"}
		due_on:    {type: "date"}
		reference: {type: "text", read_only: true}
		notes:     {type: "text"}
		external:  {type: "json"}
	}
	rules: [
		{name: "issued_before_due", kind: "date_order", before: "issued_on", after: "due_on"},
		{name: "currency_with_amount", kind: "required_with", field: "amount", requires: "currency", severity: "warning"},
	]
}

entity: supplier: {
	fields: {
		notes: {type: "text"}
	}
}
`

var (
	baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	today    = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	store     *store.Store
	snapshots *testutil.Snapshots
	resolver  *testutil.Resolver
	clock     *testutil.StepClock
	coord     *Coordinator
}

// newFixture builds a coordinator over a fresh SQLite store. inv-1 is at
// version 3; inv-2 to inv-5 are at version 1.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	reg, errs := schema.CompileString(testSchema)
	require.Empty(t, errs)

	s, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	snapshots := testutil.NewSnapshots()
	snapshots.Put("inv-1", testutil.Entity{Version: 3, Values: invoiceValues()})
	for _, id := range []string{"inv-2", "inv-3", "inv-4", "inv-5"} {
		snapshots.Put(id, testutil.Entity{Version: 1, Values: invoiceValues()})
	}

	f := &fixture{
		store:     s,
		snapshots: snapshots,
		resolver:  testutil.NewResolver(),
		clock:     testutil.NewStepClock(baseTime, time.Second),
	}
	base := []Option{
		WithSnapshots(snapshots),
		WithValidTimeFloors(snapshots),
		WithResolver(f.resolver),
		WithClock(f.clock),
		WithIDGenerator(testutil.NewSequentialIDs("ev")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	f.coord = New(s, reg, append(base, opts...)...)
	return f
}

func invoiceValues() map[string]field.Value {
	return map[string]field.Value{
		"amount":    field.Number(100),
		"currency":  field.Enum("EUR"),
		"issued_on": field.MustDate("2024-03-01"),
		"due_on":    field.MustDate("2024-04-01"),
		"reference": field.Text("INV-1001"),
	}
}

// testEntityWithout is an invoice at version 1 missing one field.
func testEntityWithout(name string) testutil.Entity {
	values := invoiceValues()
	delete(values, name)
	return testutil.Entity{Version: 1, Values: values}
}

func testEntityFloor(floor time.Time) testutil.Entity {
	return testutil.Entity{Version: 3, Values: invoiceValues(), Floor: floor}
}

func correctionChange(name, text string) correction.FieldChange {
	return correction.FieldChange{Field: name, NewValue: field.Text(text)}
}

func amountRequest(entityID string, version uint64, amount float64) correction.Request {
	return correction.Request{
		EntityID:        entityID,
		EntityType:      "invoice",
		Changes:         []correction.FieldChange{{Field: "amount", NewValue: field.Number(amount)}},
		EffectiveDate:   today,
		Reason:          "amount mistyped during import",
		ExpectedVersion: version,
		ActorID:         "clerk-7",
	}
}

func (f *fixture) version(t *testing.T, entityID string) uint64 {
	t.Helper()
	v, _, err := f.store.CurrentVersion(context.Background(), entityID)
	require.NoError(t, err)
	return v
}

func (f *fixture) events(t *testing.T, entityID string) []correction.Event {
	t.Helper()
	events, err := f.store.EntityHistory(context.Background(), entityID)
	require.NoError(t, err)
	return events
}

func rejectOf(t *testing.T, err error) *RejectError {
	t.Helper()
	var re *RejectError
	require.ErrorAs(t, err, &re)
	return re
}
