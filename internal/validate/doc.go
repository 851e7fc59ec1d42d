// Package validate checks a correction request against the field
// definitions of its entity type. It is pure: no I/O, no shared state.
//
// Validate reports every violation it finds rather than stopping at the
// first, so callers can present the complete list in one round trip.
package validate
