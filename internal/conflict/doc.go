// Package conflict compares a correction request against the entity's
// current state.
//
// Three findings are possible. A version mismatch (the request was built
// against a stale version) is an error. A change whose new value already is
// the current value is a no-op warning. A change whose stated old value no
// longer matches the current value is a concurrent-edit warning.
package conflict
