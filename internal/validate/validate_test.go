package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func invoiceFields() map[string]field.Definition {
	return map[string]field.Definition{
		"amount":    {Name: "amount", Kind: field.KindNumber, Required: true, Min: field.Bound(0)},
		"status":    {Name: "status", Kind: field.KindEnum, Options: []string{"draft", "issued", "void"}},
		"issued_on": {Name: "issued_on", Kind: field.KindDate},
		"due_on":    {Name: "due_on", Kind: field.KindDate},
		"reference": {Name: "reference", Kind: field.KindText, ReadOnly: true},
	}
}

func dateOrder(before, after string) Rule {
	return Rule{
		Name:     "issued_before_due",
		Fields:   []string{before, after},
		Severity: correction.SeverityError,
		Check: func(v View) error {
			b, ok1 := v[before].(field.Date)
			a, ok2 := v[after].(field.Date)
			if ok1 && ok2 && b.Compare(a) > 0 {
				return errors.New("issued_on must be before due_on")
			}
			return nil
		},
	}
}

func validRequest() correction.Request {
	return correction.Request{
		EntityID:      "inv-1",
		EntityType:    "invoice",
		Changes:       []correction.FieldChange{{Field: "amount", NewValue: field.Number(120)}},
		EffectiveDate: now.Add(-24 * time.Hour),
		Reason:        "supplier sent amended invoice",
	}
}

func baseInput() Input {
	return Input{
		Fields:          invoiceFields(),
		MinReasonLength: 10,
		Bounds:          Bounds{Ceiling: now},
	}
}

func codes(vs []correction.Violation) []correction.Code {
	out := make([]correction.Code, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Code)
	}
	return out
}

func TestValidate_ValidRequest(t *testing.T) {
	vs := Validate(validRequest(), baseInput())
	assert.Empty(t, vs)
	assert.NotNil(t, vs)
}

func TestValidate_ReasonTooShort(t *testing.T) {
	req := validRequest()
	req.Reason = "short"

	vs := Validate(req, baseInput())
	require.Len(t, vs, 1)
	assert.Equal(t, correction.CodeReasonTooShort, vs[0].Code)
	assert.Equal(t, correction.SeverityError, vs[0].Severity)
}

func TestValidate_ReasonIsTrimmed(t *testing.T) {
	req := validRequest()
	req.Reason = "   typo fix    "

	vs := Validate(req, baseInput())
	assert.Equal(t, []correction.Code{correction.CodeReasonTooShort}, codes(vs))
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	req := validRequest()
	req.Changes = []correction.FieldChange{
		{Field: "amount", NewValue: field.Number(-5)},
		{Field: "status", NewValue: field.Enum("lost")},
		{Field: "reference", NewValue: field.Text("INV-9")},
		{Field: "colour", NewValue: field.Text("red")},
	}
	req.Reason = "bad"
	req.EffectiveDate = now.Add(48 * time.Hour)

	vs := Validate(req, baseInput())
	assert.Equal(t, []correction.Code{
		correction.CodeValueOutOfRange,
		correction.CodeInvalidType,
		correction.CodeReadOnlyField,
		correction.CodeUnknownField,
		correction.CodeReasonTooShort,
		correction.CodeEffectiveDateOutOfRange,
	}, codes(vs))
}

func TestValidate_RequiredFieldCleared(t *testing.T) {
	req := validRequest()
	req.Changes = []correction.FieldChange{{Field: "amount", NewValue: nil}}

	vs := Validate(req, baseInput())
	require.Len(t, vs, 1)
	assert.Equal(t, correction.CodeRequiredFieldMissing, vs[0].Code)
	assert.Equal(t, "amount", vs[0].Field)
}

func TestValidate_EffectiveDateBounds(t *testing.T) {
	in := baseInput()
	in.Bounds.Floor = now.AddDate(-1, 0, 0)

	tests := []struct {
		name string
		date time.Time
		ok   bool
	}{
		{"at ceiling", now, true},
		{"at floor", now.AddDate(-1, 0, 0), true},
		{"before floor", now.AddDate(-2, 0, 0), false},
		{"future", now.Add(time.Minute), false},
		{"zero", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			req.EffectiveDate = tt.date
			vs := Validate(req, in)
			if tt.ok {
				assert.Empty(t, vs)
				return
			}
			assert.Equal(t, []correction.Code{correction.CodeEffectiveDateOutOfRange}, codes(vs))
		})
	}
}

func TestValidate_UnboundedCeiling(t *testing.T) {
	in := baseInput()
	in.Bounds = Bounds{}
	req := validRequest()
	req.EffectiveDate = now.AddDate(5, 0, 0)

	assert.Empty(t, Validate(req, in))
}

func TestValidate_CrossFieldRuleUsesMergedView(t *testing.T) {
	in := baseInput()
	in.Rules = []Rule{dateOrder("issued_on", "due_on")}
	in.CurrentValues = map[string]field.Value{
		"issued_on": field.MustDate("2024-01-10"),
		"due_on":    field.MustDate("2024-02-10"),
	}

	req := validRequest()
	req.Changes = []correction.FieldChange{{Field: "issued_on", NewValue: field.MustDate("2024-03-01")}}

	vs := Validate(req, in)
	require.Len(t, vs, 1)
	assert.Equal(t, correction.CodeCustomRuleViolation, vs[0].Code)
	assert.Equal(t, "issued_before_due", vs[0].Rule)

	// moving both dates together satisfies the rule
	req.Changes = append(req.Changes, correction.FieldChange{Field: "due_on", NewValue: field.MustDate("2024-04-01")})
	assert.Empty(t, Validate(req, in))

	// the current values are untouched by the merge
	assert.Equal(t, field.MustDate("2024-01-10"), in.CurrentValues["issued_on"])
}

func TestValidate_RuleSkippedWhenFieldsUntouched(t *testing.T) {
	in := baseInput()
	in.Rules = []Rule{dateOrder("issued_on", "due_on")}
	in.CurrentValues = map[string]field.Value{
		"issued_on": field.MustDate("2024-05-10"),
		"due_on":    field.MustDate("2024-02-10"),
	}

	assert.Empty(t, Validate(validRequest(), in))
}

func TestValidate_WarningRule(t *testing.T) {
	in := baseInput()
	in.Rules = []Rule{{
		Name:     "large_amount",
		Fields:   []string{"amount"},
		Severity: correction.SeverityWarning,
		Check: func(v View) error {
			if n, ok := v["amount"].(field.Number); ok && n > 100 {
				return errors.New("amount above 100 needs review")
			}
			return nil
		},
	}}

	vs := Validate(validRequest(), in)
	require.Len(t, vs, 1)
	assert.Equal(t, correction.SeverityWarning, vs[0].Severity)
	assert.False(t, correction.HasErrors(vs))
}

func TestValidate_DuplicateAndEmpty(t *testing.T) {
	req := validRequest()
	req.Changes = append(req.Changes, correction.FieldChange{Field: "amount", NewValue: field.Number(1)})
	assert.Equal(t, []correction.Code{correction.CodeDuplicateFieldChange}, codes(Validate(req, baseInput())))

	req.Changes = nil
	assert.Equal(t, []correction.Code{correction.CodeEmptyChangeset}, codes(Validate(req, baseInput())))
}

func TestValidate_DefaultMinReasonLength(t *testing.T) {
	in := baseInput()
	in.MinReasonLength = 0
	req := validRequest()
	req.Reason = "123456789"

	assert.Equal(t, []correction.Code{correction.CodeReasonTooShort}, codes(Validate(req, in)))
}
