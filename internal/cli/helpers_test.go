package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/retrofix/internal/testutil"
)

const testSchemaDir = "../../testdata/schema"

const testEntities = `entities:
  inv-1:
    type: invoice
    version: 3
    values:
      amount: 100
      currency: EUR
      issued_on: "2024-04-01"
      due_on: "2024-05-31"
  inv-2:
    type: invoice
    version: 1
    values:
      amount: 40
`

// cliFixture runs commands against a SQLite ledger in a temp dir with a
// deterministic clock and event IDs shared across invocations.
type cliFixture struct {
	t        *testing.T
	dir      string
	config   string
	entities string
	opts     *RootOptions
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()

	config := "store:\n  driver: sqlite\n  path: " + filepath.Join(dir, "ledger.db") + "\nlog:\n  level: error\n"
	f := &cliFixture{
		t:        t,
		dir:      dir,
		config:   writeTestFile(t, dir, "retrofix.yaml", config),
		entities: writeTestFile(t, dir, "entities.yaml", testEntities),
		opts: &RootOptions{
			Clock: testutil.NewStepClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), time.Second),
			IDs:   testutil.NewSequentialIDs("ev"),
		},
	}
	return f
}

// run executes the root command with the fixture's global flags.
func (f *cliFixture) run(args ...string) (string, error) {
	f.t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand(f.opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", f.config, "--schema", testSchemaDir, "--entities", f.entities}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (f *cliFixture) file(name, content string) string {
	f.t.Helper()
	return writeTestFile(f.t, f.dir, name, content)
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// decodeResponse parses a JSON CLIResponse whose data is decoded into data.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

const amountRequest = `entity_id: inv-1
entity_type: invoice
expected_version: 3
effective_date: "2024-05-01"
reason: "Amount misread by OCR"
actor_id: clerk-7
changes:
  - { field: amount, old: 100, new: 120 }
`
