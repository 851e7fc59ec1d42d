// Package field provides the typed field model for correctable entities.
//
// Every field value is a member of a sealed union (Text, Number, Date, Bool,
// Enum, JSON) so that validation can switch exhaustively on the runtime kind
// instead of relying on implicit coercion. Field definitions are static per
// entity type and never mutated after configuration.
//
// This package imports nothing internal. All other engine packages build on
// it.
//
// Key constraints:
//   - ValidateValue is pure: no I/O, no side effects
//   - Text comparison is performed on NFC-normalized strings
//   - Canonical encoding sorts object keys by UTF-16 code units and never
//     escapes HTML characters, so digests are stable across platforms
package field
