package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/retrofix/internal/input"
)

func validRequest() *input.Request {
	return &input.Request{
		EntityID:        "inv-1",
		EntityType:      "invoice",
		ExpectedVersion: 2,
		EffectiveDate:   "2024-04-30",
		Reason:          "Amount misread by OCR",
		Changes:         []input.Change{{Field: "amount", New: 120}},
	}
}

// testScenario returns a scenario over testSchema with one invoice at
// version 2.
func testScenario(t *testing.T, flow ...Step) *Scenario {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoice.cue"), []byte(testSchema), 0644))
	return &Scenario{
		Name:        t.Name(),
		Description: "test",
		Schema:      dir,
		Entities: map[string]input.Entity{
			"inv-1": {Type: "invoice", Version: 2, Values: map[string]any{"amount": 100, "currency": "EUR"}},
		},
		Flow:       flow,
		Assertions: []Assertion{{Type: AssertEventCount, Entity: "inv-1", Count: 0}},
	}
}

func ptr[T any](v T) *T {
	return &v
}
