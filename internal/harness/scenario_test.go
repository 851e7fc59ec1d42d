package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `package schema

entity: invoice: {
	fields: {
		amount:   {type: "number", required: true, min: 0}
		currency: {type: "enum", options: ["EUR", "USD"]}
	}
	dependents: [{type: "ledger_recompute", on: ["amount"], count: 3}]
}
`

// writeScenarioDir creates a directory holding a schema/ subdirectory and
// the scenario file, returning the scenario path.
func writeScenarioDir(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	schemaDir := filepath.Join(dir, "schema")
	require.NoError(t, os.MkdirAll(schemaDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "invoice.cue"), []byte(testSchema), 0644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validScenario = `
name: test_scenario
description: "Test scenario for validation"
schema: schema
entities:
  inv-1: { type: invoice, version: 2, values: { amount: 100 } }
flow:
  - submit:
      entity_id: inv-1
      entity_type: invoice
      expected_version: 2
      effective_date: "2024-04-30"
      reason: "Amount misread by OCR"
      changes:
        - { field: amount, new: 120 }
    expect: { outcome: committed, version: 3 }
assertions:
  - { type: current_value, entity: inv-1, field: amount, value: 120 }
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenarioDir(t, validScenario)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "schema"), scenario.Schema)
	require.Len(t, scenario.Flow, 1)
	assert.Equal(t, OpSubmit, scenario.Flow[0].Op())
	assert.Equal(t, "inv-1", scenario.Flow[0].Submit.EntityID)
	assert.Equal(t, uint64(2), scenario.Entities["inv-1"].Version)
	require.NotNil(t, scenario.Flow[0].Expect.Version)
	assert.Equal(t, uint64(3), *scenario.Flow[0].Expect.Version)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenarioDir(t, validScenario+"assertion: []\n")

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	path := writeScenarioDir(t, validScenario)

	_, err := LoadScenarioWithBasePath(path, t.TempDir())
	require.Error(t, err, "schema must resolve against the base path, not the file")
	assert.Contains(t, err.Error(), "schema directory not found")

	scenario, err := LoadScenarioWithBasePath(path, filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "schema"), scenario.Schema)
}

func TestValidateScenario(t *testing.T) {
	schemaDir := filepath.Dir(writeScenarioDir(t, validScenario))
	schemaDir = filepath.Join(schemaDir, "schema")

	submit := Step{Submit: validRequest()}
	assertion := Assertion{Type: AssertVersion, Entity: "inv-1", Version: 1}

	tests := []struct {
		name     string
		scenario Scenario
		wantErr  string
	}{
		{
			name:     "missing name",
			scenario: Scenario{Description: "d", Schema: schemaDir, Flow: []Step{submit}, Assertions: []Assertion{assertion}},
			wantErr:  "name is required",
		},
		{
			name:     "missing description",
			scenario: Scenario{Name: "n", Schema: schemaDir, Flow: []Step{submit}, Assertions: []Assertion{assertion}},
			wantErr:  "description is required",
		},
		{
			name:     "missing schema",
			scenario: Scenario{Name: "n", Description: "d", Flow: []Step{submit}, Assertions: []Assertion{assertion}},
			wantErr:  "schema directory is required",
		},
		{
			name:     "bad now",
			scenario: Scenario{Name: "n", Description: "d", Schema: schemaDir, Now: "yesterday", Flow: []Step{submit}, Assertions: []Assertion{assertion}},
			wantErr:  "now:",
		},
		{
			name:     "unknown resolver",
			scenario: Scenario{Name: "n", Description: "d", Schema: schemaDir, Resolver: "graph", Flow: []Step{submit}, Assertions: []Assertion{assertion}},
			wantErr:  `unknown resolver "graph"`,
		},
		{
			name:     "empty flow",
			scenario: Scenario{Name: "n", Description: "d", Schema: schemaDir, Assertions: []Assertion{assertion}},
			wantErr:  "flow list is required",
		},
		{
			name:     "empty assertions",
			scenario: Scenario{Name: "n", Description: "d", Schema: schemaDir, Flow: []Step{submit}},
			wantErr:  "assertions list is required",
		},
		{
			name:     "step without operation",
			scenario: Scenario{Name: "n", Description: "d", Schema: schemaDir, Flow: []Step{{}}, Assertions: []Assertion{assertion}},
			wantErr:  "flow[0]: exactly one of",
		},
		{
			name:     "step with two operations",
			scenario: Scenario{Name: "n", Description: "d", Schema: schemaDir, Flow: []Step{{Submit: validRequest(), Preview: validRequest()}}, Assertions: []Assertion{assertion}},
			wantErr:  "flow[0]: exactly one of",
		},
		{
			name:     "revert without event",
			scenario: Scenario{Name: "n", Description: "d", Schema: schemaDir, Flow: []Step{{Revert: &RevertStep{EntityID: "inv-1", Field: "amount"}}}, Assertions: []Assertion{assertion}},
			wantErr:  "flow[0].revert",
		},
		{
			name:     "expect without outcome",
			scenario: Scenario{Name: "n", Description: "d", Schema: schemaDir, Flow: []Step{{Submit: validRequest(), Expect: &Expect{}}}, Assertions: []Assertion{assertion}},
			wantErr:  "flow[0].expect: outcome is required",
		},
		{
			name:     "unknown assertion",
			scenario: Scenario{Name: "n", Description: "d", Schema: schemaDir, Flow: []Step{submit}, Assertions: []Assertion{{Type: "final_state", Entity: "inv-1"}}},
			wantErr:  `unknown assertion type "final_state"`,
		},
		{
			name:     "history without field",
			scenario: Scenario{Name: "n", Description: "d", Schema: schemaDir, Flow: []Step{submit}, Assertions: []Assertion{{Type: AssertHistory, Entity: "inv-1"}}},
			wantErr:  "field is required for history",
		},
		{
			name:     "value_as_of without bounds",
			scenario: Scenario{Name: "n", Description: "d", Schema: schemaDir, Flow: []Step{submit}, Assertions: []Assertion{{Type: AssertValueAsOf, Entity: "inv-1", Field: "amount"}}},
			wantErr:  "valid_at or known_at is required",
		},
		{
			name:     "value_as_of bad time",
			scenario: Scenario{Name: "n", Description: "d", Schema: schemaDir, Flow: []Step{submit}, Assertions: []Assertion{{Type: AssertValueAsOf, Entity: "inv-1", Field: "amount", KnownAt: "noon"}}},
			wantErr:  "assertions[0]:",
		},
		{
			name:     "valid",
			scenario: Scenario{Name: "n", Description: "d", Schema: schemaDir, Flow: []Step{submit}, Assertions: []Assertion{assertion}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateScenario(&tt.scenario)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStep_Op(t *testing.T) {
	assert.Equal(t, OpSubmit, Step{Submit: validRequest()}.Op())
	assert.Equal(t, OpPreview, Step{Preview: validRequest()}.Op())
	assert.Equal(t, OpRevert, Step{Revert: &RevertStep{}}.Op())
	assert.Equal(t, "", Step{}.Op())
}
