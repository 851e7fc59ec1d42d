package schema

import (
	"sort"

	"github.com/roach88/retrofix/internal/field"
	"github.com/roach88/retrofix/internal/validate"
)

// RuleKind names a declarative cross-field rule.
type RuleKind string

const (
	// RuleDateOrder requires Left < Right for two date fields.
	RuleDateOrder RuleKind = "date_order"
	// RuleNumberOrder requires Left <= Right for two number fields.
	RuleNumberOrder RuleKind = "number_order"
	// RuleRequiredWith requires Right to be set whenever Left is set.
	RuleRequiredWith RuleKind = "required_with"
)

// RuleSpec is a compiled rule declaration.
type RuleSpec struct {
	Name     string
	Kind     RuleKind
	Left     string
	Right    string
	Severity string
	Message  string
}

// Dependent declares downstream work triggered when any of the On fields
// changes.
type Dependent struct {
	Type        string
	Description string
	On          []string
	Count       int
	Severity    string
}

// EntityType is a compiled entity type declaration.
type EntityType struct {
	Name        string
	Description string
	Fields      map[string]field.Definition
	// FieldOrder lists field names in declaration order.
	FieldOrder []string
	Rules      []RuleSpec
	Dependents []Dependent
}

// Registry holds the entity types loaded from one schema directory.
type Registry struct {
	types map[string]*EntityType
}

// NewRegistry builds a registry from compiled entity types.
func NewRegistry(types ...*EntityType) *Registry {
	r := &Registry{types: make(map[string]*EntityType, len(types))}
	for _, t := range types {
		r.types[t.Name] = t
	}
	return r
}

// Type returns the named entity type.
func (r *Registry) Type(name string) (*EntityType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Fields returns the field definitions of the named entity type.
func (r *Registry) Fields(entityType string) (map[string]field.Definition, bool) {
	t, ok := r.types[entityType]
	if !ok {
		return nil, false
	}
	return t.Fields, true
}

// Rules returns the cross-field rules of the named entity type, ready for
// the validator.
func (r *Registry) Rules(entityType string) []validate.Rule {
	t, ok := r.types[entityType]
	if !ok {
		return nil
	}
	rules := make([]validate.Rule, 0, len(t.Rules))
	for _, spec := range t.Rules {
		rules = append(rules, spec.Rule())
	}
	return rules
}

// Names returns the registered entity type names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered entity types.
func (r *Registry) Len() int {
	return len(r.types)
}
