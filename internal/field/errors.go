package field

import "fmt"

// ErrorCode categorizes a field value validation failure.
// The string values are shared with correction.Code.
type ErrorCode string

const (
	ErrCodeInvalidType ErrorCode = "INVALID_TYPE"
	ErrCodeRequired    ErrorCode = "REQUIRED_FIELD_MISSING"
	ErrCodeReadOnly    ErrorCode = "READ_ONLY_FIELD"
	ErrCodeOutOfRange  ErrorCode = "VALUE_OUT_OF_RANGE"
	ErrCodePattern     ErrorCode = "PATTERN_MISMATCH"
	ErrCodeCustomRule  ErrorCode = "CUSTOM_RULE_VIOLATION"
)

// Error describes why a value is not acceptable for a field.
type Error struct {
	Code    ErrorCode
	Field   string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

func newError(code ErrorCode, def Definition, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Field:   def.Name,
		Message: fmt.Sprintf(format, args...),
	}
}
