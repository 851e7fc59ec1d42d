package testutil

import (
	"context"
	"sync"

	"github.com/roach88/retrofix/internal/correction"
)

// Resolver is a configurable fake dependency resolver. Effects keyed by
// field name are returned when that field changes; Always effects are
// returned for every call.
//
// Thread-safety: safe for concurrent use.
type Resolver struct {
	mu      sync.Mutex
	byField map[string][]correction.ImpactEffect
	always  []correction.ImpactEffect
	err     error
	calls   int
}

// NewResolver creates a resolver that reports no effects.
func NewResolver() *Resolver {
	return &Resolver{byField: make(map[string][]correction.ImpactEffect)}
}

// On registers effects triggered by a change of fieldName.
func (r *Resolver) On(fieldName string, effects ...correction.ImpactEffect) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byField[fieldName] = append(r.byField[fieldName], effects...)
	return r
}

// Always registers effects returned for every call.
func (r *Resolver) Always(effects ...correction.ImpactEffect) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.always = append(r.always, effects...)
	return r
}

// Fail makes every subsequent call return err.
func (r *Resolver) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Calls returns the number of Resolve calls so far.
func (r *Resolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Resolve implements impact.DependencyResolver.
func (r *Resolver) Resolve(ctx context.Context, entityType, entityID string, changedFields []string) ([]correction.ImpactEffect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	effects := append([]correction.ImpactEffect{}, r.always...)
	for _, f := range changedFields {
		effects = append(effects, r.byField[f]...)
	}
	return effects, nil
}
