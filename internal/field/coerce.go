package field

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Coerce converts untyped input (decoded YAML or JSON scalars, strings from
// flags) into a Value of def's kind. Values that are already typed pass
// through unchanged; nil stays nil.
//
// Coercion is strict: numbers must parse, dates must be real calendar dates,
// JSON text must be well formed. Failures are reported as *Error with
// ErrCodeInvalidType.
func Coerce(def Definition, raw any) (Value, error) {
	if raw == nil {
		return nil, nil
	}
	if v, ok := raw.(Value); ok {
		return v, nil
	}

	switch def.Kind {
	case KindText:
		return coerceText(def, raw)
	case KindNumber:
		return coerceNumber(def, raw)
	case KindDate:
		return coerceDate(def, raw)
	case KindBool:
		return coerceBool(def, raw)
	case KindEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, newError(ErrCodeInvalidType, def, "enum value must be a string, got %T", raw)
		}
		return Enum(s), nil
	case KindJSON:
		return coerceJSON(def, raw)
	default:
		return nil, newError(ErrCodeInvalidType, def, "field has unknown kind %q", def.Kind)
	}
}

func coerceText(def Definition, raw any) (Value, error) {
	switch r := raw.(type) {
	case string:
		return Text(r), nil
	case int, int64, float64, bool:
		return Text(fmt.Sprint(r)), nil
	default:
		return nil, newError(ErrCodeInvalidType, def, "cannot use %T as text", raw)
	}
}

func coerceNumber(def Definition, raw any) (Value, error) {
	switch r := raw.(type) {
	case int:
		return Number(r), nil
	case int64:
		return Number(r), nil
	case uint64:
		return Number(r), nil
	case float64:
		return Number(r), nil
	case float32:
		return Number(r), nil
	case json.Number:
		f, err := r.Float64()
		if err != nil {
			return nil, newError(ErrCodeInvalidType, def, "%q does not parse as a number", r.String())
		}
		return Number(f), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
		if err != nil {
			return nil, newError(ErrCodeInvalidType, def, "%q does not parse as a number", r)
		}
		return Number(f), nil
	default:
		return nil, newError(ErrCodeInvalidType, def, "cannot use %T as number", raw)
	}
}

func coerceDate(def Definition, raw any) (Value, error) {
	switch r := raw.(type) {
	case time.Time:
		return DateOf(r), nil
	case string:
		d, err := ParseDate(strings.TrimSpace(r))
		if err != nil {
			return nil, newError(ErrCodeInvalidType, def, "%q is not a valid calendar date (want YYYY-MM-DD)", r)
		}
		return d, nil
	default:
		return nil, newError(ErrCodeInvalidType, def, "cannot use %T as date", raw)
	}
}

func coerceBool(def Definition, raw any) (Value, error) {
	switch r := raw.(type) {
	case bool:
		return Bool(r), nil
	case string:
		switch strings.ToLower(strings.TrimSpace(r)) {
		case "true", "yes", "y", "1":
			return Bool(true), nil
		case "false", "no", "n", "0":
			return Bool(false), nil
		}
		return nil, newError(ErrCodeInvalidType, def, "%q is not a boolean", r)
	case int:
		if r == 0 || r == 1 {
			return Bool(r == 1), nil
		}
		return nil, newError(ErrCodeInvalidType, def, "%d is not a boolean", r)
	default:
		return nil, newError(ErrCodeInvalidType, def, "cannot use %T as boolean", raw)
	}
}

func coerceJSON(def Definition, raw any) (Value, error) {
	switch r := raw.(type) {
	case string:
		if !json.Valid([]byte(r)) {
			return nil, newError(ErrCodeInvalidType, def, "value is not valid JSON")
		}
		return JSON(r), nil
	case []byte:
		if !json.Valid(r) {
			return nil, newError(ErrCodeInvalidType, def, "value is not valid JSON")
		}
		return JSON(append([]byte(nil), r...)), nil
	default:
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, newError(ErrCodeInvalidType, def, "cannot encode %T as JSON: %v", raw, err)
		}
		return JSON(data), nil
	}
}
