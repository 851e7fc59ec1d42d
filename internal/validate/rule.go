package validate

import (
	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
)

// View is the merged state a cross-field rule sees: current values with the
// proposed changes applied. Absent and cleared fields map to nil.
type View map[string]field.Value

// Rule is a cross-field constraint. Check returns nil when the view satisfies
// the rule, otherwise an error whose text becomes the violation message.
type Rule struct {
	Name     string
	Fields   []string
	Severity correction.Severity
	Check    func(View) error
}

// touches reports whether the rule reads any of the named fields.
func (r Rule) touches(changed map[string]bool) bool {
	if len(r.Fields) == 0 {
		return true
	}
	for _, f := range r.Fields {
		if changed[f] {
			return true
		}
	}
	return false
}
