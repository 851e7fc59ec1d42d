// Package engine coordinates correction requests.
//
// A request passes through four gates, each a method on Pipeline:
//
//	Received -> Validated -> ConflictChecked -> ImpactAnalyzed -> Committed
//
// Any gate may move the pipeline to Rejected instead, returning a
// *RejectError that carries every violation and conflict found so far.
// Nothing is written to the store before Commit, and Commit writes one
// event per effective change in a single version-checked append.
//
// The store's version check is the only serialization point. Two
// coordinators, or two goroutines sharing one, may run pipelines for the
// same entity; the loser of the commit race is rejected with
// VERSION_CONFLICT and must start over.
//
// Coordinator.SubmitCorrection runs all gates in order. SubmitBatch runs an
// independent pipeline per request with bounded parallelism; there is no
// atomicity across entities.
package engine
