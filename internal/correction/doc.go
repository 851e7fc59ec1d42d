// Package correction holds the records exchanged between the stages of the
// correction pipeline: requests, ledger events, violations, conflicts and
// impact analyses, plus the stable codes that identify every failure.
package correction
