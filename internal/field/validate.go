package field

import (
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"
)

// ValidateValue checks v against def and returns a *Error describing the
// first failed constraint, or nil.
//
// A nil v (or blank text) is accepted unless the field is required.
func ValidateValue(def Definition, v Value) error {
	if def.ReadOnly {
		return newError(ErrCodeReadOnly, def, "field is read-only")
	}

	if isEmpty(v) {
		if def.Required {
			return newError(ErrCodeRequired, def, "a value is required")
		}
		return nil
	}

	if v.Kind() != def.Kind {
		return newError(ErrCodeInvalidType, def, "expected %s value, got %s", def.Kind, v.Kind())
	}

	var err *Error
	switch val := v.(type) {
	case Text:
		err = validateText(def, string(val))
	case Number:
		err = validateNumber(def, float64(val))
	case Date:
		err = validateDate(def, val)
	case Bool:
		// no constraints beyond kind
	case Enum:
		err = validateEnum(def, string(val))
	case JSON:
		if !json.Valid(val) {
			err = newError(ErrCodeInvalidType, def, "value is not valid JSON")
		}
	}
	if err != nil {
		return err
	}

	if def.Validator != nil {
		if verr := def.Validator(v); verr != nil {
			return newError(ErrCodeCustomRule, def, "%s", verr.Error())
		}
	}
	return nil
}

func isEmpty(v Value) bool {
	switch val := v.(type) {
	case nil:
		return true
	case Text:
		return strings.TrimSpace(string(val)) == ""
	case Enum:
		return string(val) == ""
	case JSON:
		s := strings.TrimSpace(string(val))
		return s == "" || s == "null"
	}
	return false
}

func validateText(def Definition, s string) *Error {
	n := float64(utf8.RuneCountInString(s))
	if def.Min != nil && n < *def.Min {
		return newError(ErrCodeOutOfRange, def, "length %d is below minimum %v", int(n), *def.Min)
	}
	if def.Max != nil && n > *def.Max {
		return newError(ErrCodeOutOfRange, def, "length %d exceeds maximum %v", int(n), *def.Max)
	}
	if def.Pattern != nil && !def.Pattern.MatchString(s) {
		return newError(ErrCodePattern, def, "value %q does not match pattern %s", s, def.Pattern)
	}
	return nil
}

func validateNumber(def Definition, f float64) *Error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return newError(ErrCodeInvalidType, def, "value is not a finite number")
	}
	if def.Min != nil && f < *def.Min {
		return newError(ErrCodeOutOfRange, def, "value %v is below minimum %v", f, *def.Min)
	}
	if def.Max != nil && f > *def.Max {
		return newError(ErrCodeOutOfRange, def, "value %v exceeds maximum %v", f, *def.Max)
	}
	return nil
}

func validateDate(def Definition, d Date) *Error {
	if d.Month < 1 || d.Month > 12 || d.Day < 1 || d.Day > 31 || DateOf(d.Time()) != d {
		return newError(ErrCodeInvalidType, def, "%s is not a valid calendar date", d)
	}
	if def.MinDate != nil && d.Compare(*def.MinDate) < 0 {
		return newError(ErrCodeOutOfRange, def, "date %s is before %s", d, *def.MinDate)
	}
	if def.MaxDate != nil && d.Compare(*def.MaxDate) > 0 {
		return newError(ErrCodeOutOfRange, def, "date %s is after %s", d, *def.MaxDate)
	}
	return nil
}

func validateEnum(def Definition, s string) *Error {
	if !def.HasOption(s) {
		return newError(ErrCodeInvalidType, def, "%q is not one of %v", s, def.Options)
	}
	if def.Pattern != nil && !def.Pattern.MatchString(s) {
		return newError(ErrCodePattern, def, "value %q does not match pattern %s", s, def.Pattern)
	}
	return nil
}
