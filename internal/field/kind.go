package field

import "fmt"

// Kind identifies the declared primitive type of a field.
type Kind string

const (
	KindText   Kind = "text"
	KindNumber Kind = "number"
	KindDate   Kind = "date"
	KindBool   Kind = "boolean"
	KindEnum   Kind = "enum"
	KindJSON   Kind = "json"
)

// Kinds lists every supported kind in declaration order.
var Kinds = []Kind{KindText, KindNumber, KindDate, KindBool, KindEnum, KindJSON}

// ParseKind converts a schema type name into a Kind.
// "bool" is accepted as an alias for "boolean".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "text", "string":
		return KindText, nil
	case "number":
		return KindNumber, nil
	case "date":
		return KindDate, nil
	case "boolean", "bool":
		return KindBool, nil
	case "enum":
		return KindEnum, nil
	case "json":
		return KindJSON, nil
	default:
		return "", fmt.Errorf("unknown field type %q: must be one of %v", s, Kinds)
	}
}
