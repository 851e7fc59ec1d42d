package correction

// Code identifies a violation, conflict or rejection reason.
type Code string

// Validation codes.
const (
	CodeUnknownField            Code = "UNKNOWN_FIELD"
	CodeInvalidType             Code = "INVALID_TYPE"
	CodeRequiredFieldMissing    Code = "REQUIRED_FIELD_MISSING"
	CodeReadOnlyField           Code = "READ_ONLY_FIELD"
	CodeValueOutOfRange         Code = "VALUE_OUT_OF_RANGE"
	CodePatternMismatch         Code = "PATTERN_MISMATCH"
	CodeReasonTooShort          Code = "REASON_TOO_SHORT"
	CodeEffectiveDateOutOfRange Code = "EFFECTIVE_DATE_OUT_OF_RANGE"
	CodeCustomRuleViolation     Code = "CUSTOM_RULE_VIOLATION"
	CodeDuplicateFieldChange    Code = "DUPLICATE_FIELD_CHANGE"
	CodeEmptyChangeset          Code = "EMPTY_CHANGESET"
	CodeUnknownEntityType       Code = "UNKNOWN_ENTITY_TYPE"
	CodeEntityTypeMismatch      Code = "ENTITY_TYPE_MISMATCH"
)

// Conflict codes.
const (
	CodeVersionMismatch Code = "VERSION_MISMATCH"
	CodeNoOpChange      Code = "NO_OP_CHANGE"
	CodeConcurrentEdit  Code = "CONCURRENT_EDIT"
)

// Policy codes.
const (
	CodeHighImpactUnconfirmed  Code = "HIGH_IMPACT_UNCONFIRMED"
	CodeWarningsUnacknowledged Code = "WARNINGS_UNACKNOWLEDGED"
)

// Store and collaborator codes.
const (
	CodeAppendFailed        Code = "APPEND_FAILED"
	CodeVersionConflict     Code = "VERSION_CONFLICT"
	CodeImpactUnavailable   Code = "IMPACT_UNAVAILABLE"
	CodeSnapshotUnavailable Code = "SNAPSHOT_UNAVAILABLE"
)

// Severity grades violations and conflicts. Errors block a commit; warnings
// require acknowledgement.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)
