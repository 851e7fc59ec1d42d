package schema

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
	"github.com/roach88/retrofix/internal/validate"
)

func loadInvoice(t *testing.T) *Registry {
	t.Helper()
	reg, errs := LoadDir("testdata/invoice", LoadModeCollectAll)
	require.Empty(t, errs)
	require.NotNil(t, reg)
	return reg
}

func TestLoadDir(t *testing.T) {
	reg := loadInvoice(t)
	assert.Equal(t, []string{"invoice", "supplier"}, reg.Names())

	fields, ok := reg.Fields("invoice")
	require.True(t, ok)
	assert.Len(t, fields, 7)

	_, ok = reg.Fields("purchase_order")
	assert.False(t, ok)
	assert.Nil(t, reg.Rules("purchase_order"))

	rules := reg.Rules("supplier")
	require.Len(t, rules, 1)
	assert.Equal(t, "number_order_terms_days_credit_limit", rules[0].Name)
}

func TestLoadDir_Errors(t *testing.T) {
	_, errs := LoadDir(filepath.Join(t.TempDir(), "missing"), LoadModeFailFast)
	require.Len(t, errs, 1)
	var le *LoadError
	require.True(t, errors.As(errs[0], &le))
	assert.Equal(t, ErrCodeNotFound, le.Code)

	empty := t.TempDir()
	_, errs = LoadDir(empty, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNoFiles)
}

func TestLoadDir_FailFastStopsAtFirstError(t *testing.T) {
	dir := t.TempDir()
	src := `package schema

entity: a: {fields: {x: {type: "money"}}}
entity: b: {fields: {x: {type: "colour"}}}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte(src), 0644))

	_, errs := LoadDir(dir, LoadModeFailFast)
	assert.Len(t, errs, 1)

	_, errs = LoadDir(dir, LoadModeCollectAll)
	assert.Len(t, errs, 2)
}

func TestRules_DateOrder(t *testing.T) {
	reg := loadInvoice(t)
	rules := reg.Rules("invoice")
	require.Len(t, rules, 2)
	order := rules[0]

	assert.NoError(t, order.Check(validate.View{
		"issued_on": field.MustDate("2024-01-01"),
		"due_on":    field.MustDate("2024-01-31"),
	}))
	assert.Error(t, order.Check(validate.View{
		"issued_on": field.MustDate("2024-02-01"),
		"due_on":    field.MustDate("2024-01-31"),
	}))
	err := order.Check(validate.View{
		"issued_on": field.MustDate("2024-01-31"),
		"due_on":    field.MustDate("2024-01-31"),
	})
	require.Error(t, err, "equal dates are not in order")
	assert.Contains(t, err.Error(), "must be before")
	// unset operands never violate ordering
	assert.NoError(t, order.Check(validate.View{"issued_on": field.MustDate("2024-02-01")}))
}

func TestRules_RequiredWithIsWarning(t *testing.T) {
	reg := loadInvoice(t)
	rule := reg.Rules("invoice")[1]
	assert.Equal(t, correction.SeverityWarning, rule.Severity)

	err := rule.Check(validate.View{"amount": field.Number(10)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "currency is required when amount is set")
	assert.NoError(t, rule.Check(validate.View{"amount": field.Number(10), "currency": field.Enum("EUR")}))
}

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver(loadInvoice(t))
	ctx := context.Background()

	effects, err := r.Resolve(ctx, "invoice", "inv-1", []string{"amount"})
	require.NoError(t, err)
	require.Len(t, effects, 3)
	assert.Equal(t, "ledger_recompute", effects[0].Type)
	assert.Equal(t, 3, effects[0].Count)
	assert.Equal(t, "high", effects[0].Severity)
	assert.Equal(t, "payment_schedule", effects[1].Type)
	assert.Equal(t, "low", effects[1].Severity)

	effects, err = r.Resolve(ctx, "invoice", "inv-1", []string{"notes"})
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, "search_reindex", effects[0].Type)

	_, err = r.Resolve(ctx, "purchase_order", "po-1", []string{"x"})
	assert.Error(t, err)
}
