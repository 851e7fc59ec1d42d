package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/retrofix/internal/config"
	"github.com/roach88/retrofix/internal/input"
)

// DefaultNow is the clock reading of the first flow step when a scenario
// does not set one.
var DefaultNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// Scenario defines a correction scenario: a schema, the entities as the
// upstream system knows them, a flow of operations against the engine and
// assertions on the resulting ledger.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the directory of CUE entity type definitions.
	// Relative paths are resolved against the scenario's base path.
	Schema string `yaml:"schema"`

	// Now is the clock reading of the first step, RFC3339. Each later step
	// runs one minute after the previous one.
	Now string `yaml:"now,omitempty"`

	// Resolver selects dependency resolution: "schema" (default) resolves
	// from the schema's dependents, "none" runs without a resolver.
	Resolver string `yaml:"resolver,omitempty"`

	// Engine overrides the pipeline policy. Zero values take the defaults.
	Engine config.EngineConfig `yaml:"engine,omitempty"`

	// Entities are the snapshots of entities the store has not seen yet.
	Entities map[string]input.Entity `yaml:"entities,omitempty"`

	// Flow contains the operations to run, in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final ledger.
	Assertions []Assertion `yaml:"assertions"`
}

// Resolver modes.
const (
	ResolverSchema = "schema"
	ResolverNone   = "none"
)

// Step is one operation of the flow. Exactly one of the operation fields
// must be set.
type Step struct {
	Submit   *input.Request  `yaml:"submit,omitempty"`
	Preview  *input.Request  `yaml:"preview,omitempty"`
	Batch    []input.Request `yaml:"batch,omitempty"`
	Precheck []input.Request `yaml:"precheck,omitempty"`
	Revert   *RevertStep     `yaml:"revert,omitempty"`

	// Expect specifies the expected outcome. If nil, any outcome is accepted.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpSubmit   = "submit"
	OpPreview  = "preview"
	OpBatch    = "batch"
	OpPrecheck = "precheck"
	OpRevert   = "revert"
)

// Op returns the operation the step performs, or "" when none or more than
// one is set.
func (s Step) Op() string {
	var ops []string
	if s.Submit != nil {
		ops = append(ops, OpSubmit)
	}
	if s.Preview != nil {
		ops = append(ops, OpPreview)
	}
	if s.Batch != nil {
		ops = append(ops, OpBatch)
	}
	if s.Precheck != nil {
		ops = append(ops, OpPrecheck)
	}
	if s.Revert != nil {
		ops = append(ops, OpRevert)
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// RevertStep restores a field to the value it had before an event.
type RevertStep struct {
	EntityID            string `yaml:"entity_id"`
	EntityType          string `yaml:"entity_type"`
	Field               string `yaml:"field"`
	EventID             string `yaml:"event_id"`
	Reason              string `yaml:"reason"`
	ActorID             string `yaml:"actor_id,omitempty"`
	EffectiveDate       string `yaml:"effective_date,omitempty"`
	AcknowledgeWarnings bool   `yaml:"acknowledge_warnings,omitempty"`
	ConfirmHighImpact   bool   `yaml:"confirm_high_impact,omitempty"`
}

// Expect is a subset match on a step's trace entry.
type Expect struct {
	// Outcome is one of committed, rejected, previewed, completed or
	// prechecked.
	Outcome string `yaml:"outcome"`

	// Code is the expected rejection code.
	Code string `yaml:"code,omitempty"`

	// Version is the expected entity version after the step.
	Version *uint64 `yaml:"version,omitempty"`

	// Affected is the expected dependent entity count of a preview.
	Affected *int `yaml:"affected,omitempty"`

	// Succeeded and Failed list entity IDs of a batch or precheck step.
	Succeeded []string `yaml:"succeeded,omitempty"`
	Failed    []string `yaml:"failed,omitempty"`
}

// Assertion validates the final ledger.
type Assertion struct {
	// Type specifies the assertion type:
	// - "current_value": the field's current value equals Value
	// - "version": the entity's committed version equals Version
	// - "event_count": the entity, or one field of it, has Count events
	// - "history": the field's new values, in transaction time order
	// - "value_as_of": the field's value replayed at ValidAt and KnownAt
	Type string `yaml:"type"`

	Entity string `yaml:"entity"`
	Field  string `yaml:"field,omitempty"`

	// Value is compared by its text form; null expects no value.
	Value any `yaml:"value,omitempty"`

	Version uint64 `yaml:"version,omitempty"`
	Count   int    `yaml:"count,omitempty"`
	Values  []any  `yaml:"values,omitempty"`

	// ValidAt and KnownAt bound value_as_of; at least one is required.
	ValidAt string `yaml:"valid_at,omitempty"`
	KnownAt string `yaml:"known_at,omitempty"`
}

// Assertion type constants.
const (
	AssertCurrentValue = "current_value"
	AssertVersion      = "version"
	AssertEventCount   = "event_count"
	AssertHistory      = "history"
	AssertValueAsOf    = "value_as_of"
)

// LoadScenario reads and parses a scenario YAML file, resolving the schema
// directory relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the schema directory relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) && basePath != "" {
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Schema == "" {
		return fmt.Errorf("schema directory is required")
	}
	if info, err := os.Stat(s.Schema); err != nil || !info.IsDir() {
		return fmt.Errorf("schema directory not found: %s", s.Schema)
	}

	if s.Now != "" {
		if _, err := time.Parse(time.RFC3339, s.Now); err != nil {
			return fmt.Errorf("now: %w", err)
		}
	}

	switch s.Resolver {
	case "", ResolverSchema, ResolverNone:
	default:
		return fmt.Errorf("unknown resolver %q", s.Resolver)
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step Step) error {
	op := step.Op()
	if op == "" {
		return fmt.Errorf("flow[%d]: exactly one of submit, preview, batch, precheck or revert is required", index)
	}
	switch op {
	case OpSubmit:
		if step.Submit.EntityID == "" {
			return fmt.Errorf("flow[%d].submit: entity_id is required", index)
		}
	case OpPreview:
		if step.Preview.EntityID == "" {
			return fmt.Errorf("flow[%d].preview: entity_id is required", index)
		}
	case OpBatch, OpPrecheck:
		reqs := step.Batch
		if op == OpPrecheck {
			reqs = step.Precheck
		}
		for j, r := range reqs {
			if r.EntityID == "" {
				return fmt.Errorf("flow[%d].%s[%d]: entity_id is required", index, op, j)
			}
		}
	case OpRevert:
		if step.Revert.EntityID == "" || step.Revert.Field == "" || step.Revert.EventID == "" {
			return fmt.Errorf("flow[%d].revert: entity_id, field and event_id are required", index)
		}
	}
	if step.Expect != nil && step.Expect.Outcome == "" {
		return fmt.Errorf("flow[%d].expect: outcome is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Entity == "" {
		return fmt.Errorf("assertions[%d]: entity is required", index)
	}

	switch a.Type {
	case AssertCurrentValue, AssertHistory:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for %s", index, a.Type)
		}
	case AssertValueAsOf:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for %s", index, a.Type)
		}
		if a.ValidAt == "" && a.KnownAt == "" {
			return fmt.Errorf("assertions[%d]: valid_at or known_at is required for %s", index, a.Type)
		}
		for _, ts := range []string{a.ValidAt, a.KnownAt} {
			if ts == "" {
				continue
			}
			if _, err := input.ParseTime(ts); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertVersion:
	case AssertEventCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
