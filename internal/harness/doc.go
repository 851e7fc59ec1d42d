// Package harness runs correction scenarios against a real coordinator and
// an in-memory ledger, and compares their traces with golden files.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: testdata/schema
//	now: "2024-05-01T09:00:00Z"
//	engine:
//	  warning_threshold: 4
//	entities:
//	  inv-1:
//	    type: invoice
//	    version: 3
//	    values: { amount: 100, currency: EUR }
//	flow:
//	  - submit:
//	      entity_id: inv-1
//	      entity_type: invoice
//	      expected_version: 3
//	      effective_date: "2024-05-01"
//	      reason: "Amount misread by OCR"
//	      changes:
//	        - { field: amount, new: 120 }
//	    expect: { outcome: committed, version: 4 }
//	assertions:
//	  - { type: current_value, entity: inv-1, field: amount, value: 120 }
//
// A flow step is one of submit, preview, batch, precheck or revert.
// Rejections are outcomes, recorded in the trace with their code and
// stage; they fail the scenario only when an expect clause says otherwise.
//
// # Assertion Types
//
//   - current_value: the field's value by latest transaction time
//   - version: the entity's committed version
//   - event_count: events of an entity, or of one field
//   - history: a field's new values in transaction time order
//   - value_as_of: a field replayed at valid_at and/or known_at
//
// # Deterministic Testing
//
// Every scenario gets a fresh in-memory SQLite store, sequential event IDs
// (ev-0001, ev-0002, ...) and a clock that reads "now" during the first
// step and one minute later for each step after it. Identical scenarios
// therefore produce byte-identical canonical traces.
package harness
