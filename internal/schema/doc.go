// Package schema compiles CUE entity type declarations into field
// definitions, cross-field rules and static dependency declarations.
//
// An entity type is declared under the top-level "entity" struct:
//
//	entity: invoice: {
//		fields: {
//			amount:    {type: "number", required: true, min: 0}
//			status:    {type: "enum", options: ["draft", "issued", "void"]}
//			issued_on: {type: "date"}
//			due_on:    {type: "date"}
//		}
//		rules: [{name: "issued_before_due", kind: "date_order", before: "issued_on", after: "due_on"}]
//		dependents: [{type: "ledger_recompute", on: ["amount"], count: 3, severity: "high"}]
//	}
package schema
