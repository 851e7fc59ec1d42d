package validate

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
)

// DefaultMinReasonLength is used when Input.MinReasonLength is zero.
const DefaultMinReasonLength = 10

// Bounds is the permitted effective date range, inclusive. A zero Floor or
// Ceiling leaves that side unbounded.
type Bounds struct {
	Floor   time.Time
	Ceiling time.Time
}

// Contains reports whether t lies within the bounds.
func (b Bounds) Contains(t time.Time) bool {
	if !b.Floor.IsZero() && t.Before(b.Floor) {
		return false
	}
	if !b.Ceiling.IsZero() && t.After(b.Ceiling) {
		return false
	}
	return true
}

// Input carries everything Validate needs besides the request itself.
type Input struct {
	Fields          map[string]field.Definition
	CurrentValues   map[string]field.Value
	Rules           []Rule
	MinReasonLength int
	Bounds          Bounds
}

// Validate runs every check against req and returns all violations in check
// order: field existence and writability, values, reason, effective date,
// then cross-field rules over the merged view.
func Validate(req correction.Request, in Input) []correction.Violation {
	violations := make([]correction.Violation, 0)

	if len(req.Changes) == 0 {
		violations = append(violations, correction.Violation{
			Code:     correction.CodeEmptyChangeset,
			Severity: correction.SeverityError,
			Message:  "request contains no field changes",
		})
	}

	// (a) field exists and is writable; (b) value is valid
	seen := make(map[string]bool, len(req.Changes))
	for _, change := range req.Changes {
		if seen[change.Field] {
			violations = append(violations, correction.Violation{
				Code:     correction.CodeDuplicateFieldChange,
				Severity: correction.SeverityError,
				Field:    change.Field,
				Message:  "field is changed more than once in the same request",
			})
			continue
		}
		seen[change.Field] = true

		def, ok := in.Fields[change.Field]
		if !ok {
			violations = append(violations, correction.Violation{
				Code:     correction.CodeUnknownField,
				Severity: correction.SeverityError,
				Field:    change.Field,
				Message:  fmt.Sprintf("entity type %q has no field %q", req.EntityType, change.Field),
			})
			continue
		}
		if def.ReadOnly {
			violations = append(violations, correction.Violation{
				Code:     correction.CodeReadOnlyField,
				Severity: correction.SeverityError,
				Field:    change.Field,
				Message:  "field is read-only",
			})
			continue
		}
		if err := field.ValidateValue(def, change.NewValue); err != nil {
			violations = append(violations, valueViolation(change.Field, err))
		}
	}

	// (c) reason
	minLen := in.MinReasonLength
	if minLen <= 0 {
		minLen = DefaultMinReasonLength
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(req.Reason)); n < minLen {
		violations = append(violations, correction.Violation{
			Code:     correction.CodeReasonTooShort,
			Severity: correction.SeverityError,
			Message:  fmt.Sprintf("reason must be at least %d characters, got %d", minLen, n),
		})
	}

	// (d) effective date
	if req.EffectiveDate.IsZero() {
		violations = append(violations, correction.Violation{
			Code:     correction.CodeEffectiveDateOutOfRange,
			Severity: correction.SeverityError,
			Message:  "effective date is required",
		})
	} else if !in.Bounds.Contains(req.EffectiveDate) {
		violations = append(violations, correction.Violation{
			Code:     correction.CodeEffectiveDateOutOfRange,
			Severity: correction.SeverityError,
			Message:  fmt.Sprintf("effective date %s is outside %s", formatTime(req.EffectiveDate), in.Bounds),
		})
	}

	// (e) cross-field rules
	if len(in.Rules) > 0 {
		view := Merge(in.CurrentValues, req.Changes)
		for _, rule := range in.Rules {
			if !rule.touches(seen) {
				continue
			}
			if err := rule.Check(view); err != nil {
				sev := rule.Severity
				if sev == "" {
					sev = correction.SeverityError
				}
				violations = append(violations, correction.Violation{
					Code:     correction.CodeCustomRuleViolation,
					Severity: sev,
					Rule:     rule.Name,
					Message:  err.Error(),
				})
			}
		}
	}

	return violations
}

// Merge applies changes over current and returns a new view. The current map
// is not modified.
func Merge(current map[string]field.Value, changes []correction.FieldChange) View {
	view := make(View, len(current)+len(changes))
	for k, v := range current {
		view[k] = v
	}
	for _, c := range changes {
		view[c.Field] = c.NewValue
	}
	return view
}

func valueViolation(name string, err error) correction.Violation {
	var fe *field.Error
	if errors.As(err, &fe) {
		return correction.Violation{
			Code:     correction.Code(fe.Code),
			Severity: correction.SeverityError,
			Field:    name,
			Message:  fe.Message,
		}
	}
	return correction.Violation{
		Code:     correction.CodeInvalidType,
		Severity: correction.SeverityError,
		Field:    name,
		Message:  err.Error(),
	}
}

func (b Bounds) String() string {
	lo, hi := "-inf", "+inf"
	if !b.Floor.IsZero() {
		lo = formatTime(b.Floor)
	}
	if !b.Ceiling.IsZero() {
		hi = formatTime(b.Ceiling)
	}
	return "[" + lo + ", " + hi + "]"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
