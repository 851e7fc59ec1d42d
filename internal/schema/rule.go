package schema

import (
	"errors"
	"fmt"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
	"github.com/roach88/retrofix/internal/validate"
)

// Rule converts the declaration into a validator rule. Unset operands never
// violate an ordering rule.
func (s RuleSpec) Rule() validate.Rule {
	sev := correction.SeverityError
	if s.Severity == string(correction.SeverityWarning) {
		sev = correction.SeverityWarning
	}
	return validate.Rule{
		Name:     s.Name,
		Fields:   []string{s.Left, s.Right},
		Severity: sev,
		Check:    s.check,
	}
}

func (s RuleSpec) check(v validate.View) error {
	left, right := v[s.Left], v[s.Right]
	switch s.Kind {
	case RuleDateOrder:
		l, lok := left.(field.Date)
		r, rok := right.(field.Date)
		if lok && rok && l.Compare(r) >= 0 {
			return s.fail("%s (%s) must be before %s (%s)", s.Left, l, s.Right, r)
		}
	case RuleNumberOrder:
		l, lok := left.(field.Number)
		r, rok := right.(field.Number)
		if lok && rok && l > r {
			return s.fail("%s (%s) must not exceed %s (%s)", s.Left, l, s.Right, r)
		}
	case RuleRequiredWith:
		if isSet(left) && !isSet(right) {
			return s.fail("%s is required when %s is set", s.Right, s.Left)
		}
	default:
		return fmt.Errorf("unknown rule kind %q", s.Kind)
	}
	return nil
}

func (s RuleSpec) fail(format string, args ...any) error {
	if s.Message != "" {
		return errors.New(s.Message)
	}
	return fmt.Errorf(format, args...)
}

func isSet(v field.Value) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case field.Text:
		return t != ""
	case field.Enum:
		return t != ""
	}
	return true
}
