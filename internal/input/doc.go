// Package input decodes the YAML documents the CLI and the conformance
// harness read: correction requests and entity snapshots.
//
// Raw YAML scalars are coerced to field values through the entity type's
// schema, so `amount: 120` becomes a Number and `due_on: 2024-04-01` a Date.
// Fields the schema does not know are kept with an inferred kind and left
// for the validator to reject.
package input
