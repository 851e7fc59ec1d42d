package field

import "regexp"

// Definition is the static schema of one field of an entity type.
//
// Min and Max bound the numeric value of number fields and the rune length of
// text fields. MinDate and MaxDate bound date fields. Pattern applies to text
// and enum values. Validator runs last, after every declarative check passed.
type Definition struct {
	Name        string
	Kind        Kind
	Description string
	Required    bool
	ReadOnly    bool
	Min         *float64
	Max         *float64
	MinDate     *Date
	MaxDate     *Date
	Pattern     *regexp.Regexp
	Options     []string
	Validator   func(Value) error
}

// HasOption reports whether s is in the definition's enum option set.
func (d Definition) HasOption(s string) bool {
	for _, o := range d.Options {
		if o == s {
			return true
		}
	}
	return false
}

// Bound returns a pointer to f, for building definitions inline.
func Bound(f float64) *float64 {
	return &f
}
