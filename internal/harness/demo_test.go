package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// projectRoot returns the project root directory.
// Tests run from the package directory, but scenario schema paths are
// relative to the project root.
func projectRoot() string {
	root, _ := filepath.Abs("../..")
	return root
}

var demoScenarios = []string{
	"single_correction_commits",
	"stale_version_rejected",
	"invalid_request_rejected",
	"batch_partial_success",
	"revert_restores_prior_value",
	"preview_is_idempotent",
	"high_impact_requires_confirmation",
}

func loadDemo(t *testing.T, name string) *Scenario {
	t.Helper()
	path := filepath.Join(projectRoot(), "testdata", "scenarios", name+".yaml")
	scenario, err := LoadScenarioWithBasePath(path, projectRoot())
	require.NoError(t, err, "failed to load scenario from %s", path)
	return scenario
}

// TestDemoScenarios runs the scenarios under testdata/scenarios end to end
// and compares their traces with the golden files.
func TestDemoScenarios(t *testing.T) {
	for _, name := range demoScenarios {
		t.Run(name, func(t *testing.T) {
			scenario := loadDemo(t, name)
			assert.Equal(t, name, scenario.Name, "scenario name mismatch")
			assert.NotEmpty(t, scenario.Description)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err, "scenario execution failed")
			assert.True(t, result.Pass, "scenario should pass: errors=%v", result.Errors)
			assert.Len(t, result.Trace, len(scenario.Flow))
		})
	}
}

// TestDemoScenariosReplay validates deterministic replay.
// Running the same scenario twice should produce identical traces.
func TestDemoScenariosReplay(t *testing.T) {
	scenario := loadDemo(t, "revert_restores_prior_value")

	result1, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result1.Pass)

	result2, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result2.Pass)

	a, err := MarshalTrace(scenario.Name, result1)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, result2)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b), "replay should produce identical traces")
}
