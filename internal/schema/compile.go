package schema

import (
	"fmt"
	"regexp"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/retrofix/internal/field"
)

// CompileEntity parses a CUE value into an EntityType.
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: invoice: { fields: { ... } }`)
//	et, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.invoice")))
func CompileEntity(v cue.Value) (*EntityType, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	et := &EntityType{Fields: make(map[string]field.Definition)}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		et.Name = labels[len(labels)-1].String()
	}

	if desc := v.LookupPath(cue.ParsePath("description")); desc.Exists() {
		s, err := desc.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		et.Description = s
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{
			Field:   "fields",
			Message: "fields are required",
			Pos:     v.Pos(),
		}
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		def, err := compileField(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		et.Fields[def.Name] = def
		et.FieldOrder = append(et.FieldOrder, def.Name)
	}
	if len(et.FieldOrder) == 0 {
		return nil, &CompileError{
			Field:   "fields",
			Message: "at least one field is required",
			Pos:     fieldsVal.Pos(),
		}
	}

	et.Rules, err = compileRules(v, et.Fields)
	if err != nil {
		return nil, err
	}

	et.Dependents, err = compileDependents(v, et.Fields)
	if err != nil {
		return nil, err
	}

	return et, nil
}

func compileField(name string, v cue.Value) (field.Definition, error) {
	def := field.Definition{Name: name}
	path := "fields." + name

	typeStr, err := lookupString(v, "type")
	if err != nil {
		return def, err
	}
	if typeStr == "" {
		return def, &CompileError{Field: path + ".type", Message: "field type is required", Pos: v.Pos()}
	}
	def.Kind, err = field.ParseKind(typeStr)
	if err != nil {
		return def, &CompileError{Field: path + ".type", Message: err.Error(), Pos: v.Pos()}
	}

	if def.Description, err = lookupString(v, "description"); err != nil {
		return def, err
	}
	if def.Required, err = lookupBool(v, "required"); err != nil {
		return def, err
	}
	if def.ReadOnly, err = lookupBool(v, "read_only"); err != nil {
		return def, err
	}

	for _, bound := range []string{"min", "max"} {
		bv := v.LookupPath(cue.ParsePath(bound))
		if !bv.Exists() {
			continue
		}
		if def.Kind == field.KindDate {
			s, err := bv.String()
			if err != nil {
				return def, &CompileError{Field: path + "." + bound, Message: "date bounds must be YYYY-MM-DD strings", Pos: bv.Pos()}
			}
			d, err := field.ParseDate(s)
			if err != nil {
				return def, &CompileError{Field: path + "." + bound, Message: err.Error(), Pos: bv.Pos()}
			}
			if bound == "min" {
				def.MinDate = &d
			} else {
				def.MaxDate = &d
			}
			continue
		}
		if def.Kind != field.KindNumber && def.Kind != field.KindText {
			return def, &CompileError{Field: path + "." + bound, Message: fmt.Sprintf("%s fields do not take bounds", def.Kind), Pos: bv.Pos()}
		}
		f, err := bv.Float64()
		if err != nil {
			return def, formatCUEError(err)
		}
		if bound == "min" {
			def.Min = field.Bound(f)
		} else {
			def.Max = field.Bound(f)
		}
	}

	pattern, err := lookupString(v, "pattern")
	if err != nil {
		return def, err
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return def, &CompileError{Field: path + ".pattern", Message: err.Error(), Pos: v.Pos()}
		}
		def.Pattern = re
	}

	def.Options, err = lookupStrings(v, "options")
	if err != nil {
		return def, err
	}
	if def.Kind == field.KindEnum && len(def.Options) == 0 {
		return def, &CompileError{Field: path + ".options", Message: "enum fields require options", Pos: v.Pos()}
	}

	return def, nil
}

func compileRules(v cue.Value, fields map[string]field.Definition) ([]RuleSpec, error) {
	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, nil
	}
	iter, err := rulesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rules []RuleSpec
	for i := 0; iter.Next(); i++ {
		rv := iter.Value()
		path := fmt.Sprintf("rules[%d]", i)

		var spec RuleSpec
		if spec.Name, err = lookupString(rv, "name"); err != nil {
			return nil, err
		}
		kind, err := lookupString(rv, "kind")
		if err != nil {
			return nil, err
		}
		spec.Kind = RuleKind(kind)
		if spec.Severity, err = lookupString(rv, "severity"); err != nil {
			return nil, err
		}
		if spec.Message, err = lookupString(rv, "message"); err != nil {
			return nil, err
		}

		var leftKey, rightKey string
		var want field.Kind
		switch spec.Kind {
		case RuleDateOrder:
			leftKey, rightKey, want = "before", "after", field.KindDate
		case RuleNumberOrder:
			leftKey, rightKey, want = "lower", "upper", field.KindNumber
		case RuleRequiredWith:
			leftKey, rightKey = "field", "requires"
		default:
			return nil, &CompileError{Field: path + ".kind", Message: fmt.Sprintf("unknown rule kind %q", kind), Pos: rv.Pos()}
		}
		if spec.Left, err = lookupString(rv, leftKey); err != nil {
			return nil, err
		}
		if spec.Right, err = lookupString(rv, rightKey); err != nil {
			return nil, err
		}

		for _, operand := range []string{spec.Left, spec.Right} {
			def, ok := fields[operand]
			if !ok {
				return nil, &CompileError{Field: path, Message: fmt.Sprintf("rule references unknown field %q", operand), Pos: rv.Pos()}
			}
			if want != "" && def.Kind != want {
				return nil, &CompileError{Field: path, Message: fmt.Sprintf("%s rule needs %s fields, %q is %s", spec.Kind, want, operand, def.Kind), Pos: rv.Pos()}
			}
		}
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("%s_%s_%s", spec.Kind, spec.Left, spec.Right)
		}
		rules = append(rules, spec)
	}
	return rules, nil
}

func compileDependents(v cue.Value, fields map[string]field.Definition) ([]Dependent, error) {
	depsVal := v.LookupPath(cue.ParsePath("dependents"))
	if !depsVal.Exists() {
		return nil, nil
	}
	iter, err := depsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var deps []Dependent
	for i := 0; iter.Next(); i++ {
		dv := iter.Value()
		path := fmt.Sprintf("dependents[%d]", i)

		var dep Dependent
		if dep.Type, err = lookupString(dv, "type"); err != nil {
			return nil, err
		}
		if dep.Type == "" {
			return nil, &CompileError{Field: path + ".type", Message: "dependent type is required", Pos: dv.Pos()}
		}
		if dep.Description, err = lookupString(dv, "description"); err != nil {
			return nil, err
		}
		if dep.Severity, err = lookupString(dv, "severity"); err != nil {
			return nil, err
		}
		if dep.Severity == "" {
			dep.Severity = "low"
		}
		if dep.On, err = lookupStrings(dv, "on"); err != nil {
			return nil, err
		}
		for _, f := range dep.On {
			if _, ok := fields[f]; !ok {
				return nil, &CompileError{Field: path + ".on", Message: fmt.Sprintf("unknown field %q", f), Pos: dv.Pos()}
			}
		}

		dep.Count = 1
		if cv := dv.LookupPath(cue.ParsePath("count")); cv.Exists() {
			n, err := cv.Int64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			if n < 0 {
				return nil, &CompileError{Field: path + ".count", Message: "count must not be negative", Pos: cv.Pos()}
			}
			dep.Count = int(n)
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

func lookupString(v cue.Value, key string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(key))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func lookupBool(v cue.Value, key string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(key))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func lookupStrings(v cue.Value, key string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(key))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
