package schema

import (
	"context"
	"fmt"

	"github.com/roach88/retrofix/internal/correction"
)

// StaticResolver answers impact queries from the dependents declared in the
// schema. The counts are fixed per declaration; nothing is looked up.
type StaticResolver struct {
	Registry *Registry
}

// NewStaticResolver returns a resolver backed by reg.
func NewStaticResolver(reg *Registry) *StaticResolver {
	return &StaticResolver{Registry: reg}
}

// Resolve returns one effect per dependent whose On fields intersect the
// changed fields, in declaration order.
func (r *StaticResolver) Resolve(ctx context.Context, entityType, entityID string, changedFields []string) ([]correction.ImpactEffect, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	et, ok := r.Registry.Type(entityType)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q for entity %s", entityType, entityID)
	}

	changed := make(map[string]bool, len(changedFields))
	for _, f := range changedFields {
		changed[f] = true
	}

	effects := make([]correction.ImpactEffect, 0)
	for _, dep := range et.Dependents {
		if !triggers(dep, changed) {
			continue
		}
		effects = append(effects, correction.ImpactEffect{
			Type:        dep.Type,
			Description: dep.Description,
			Count:       dep.Count,
			Severity:    dep.Severity,
		})
	}
	return effects, nil
}

// triggers reports whether dep fires for the changed fields. A dependent
// without On fires for every change.
func triggers(dep Dependent, changed map[string]bool) bool {
	if len(dep.On) == 0 {
		return true
	}
	for _, f := range dep.On {
		if changed[f] {
			return true
		}
	}
	return false
}
