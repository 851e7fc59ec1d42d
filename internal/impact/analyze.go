package impact

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/retrofix/internal/correction"
)

const (
	// DefaultWarningThreshold is the affected-entity count above which a
	// warning is raised.
	DefaultWarningThreshold = 10

	// DefaultEffectWeight is the estimated processing time per affected item
	// for effect types without an explicit weight.
	DefaultEffectWeight = 100 * time.Millisecond
)

// UnknownImpactWarning is reported when no resolver is configured.
const UnknownImpactWarning = "impact unknown: no dependency resolver configured"

// DependencyResolver reports the downstream effects of changing fields of
// one entity.
type DependencyResolver interface {
	Resolve(ctx context.Context, entityType, entityID string, changedFields []string) ([]correction.ImpactEffect, error)
}

// ResolverFunc adapts a function to DependencyResolver.
type ResolverFunc func(ctx context.Context, entityType, entityID string, changedFields []string) ([]correction.ImpactEffect, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, entityType, entityID string, changedFields []string) ([]correction.ImpactEffect, error) {
	return f(ctx, entityType, entityID, changedFields)
}

// Config tunes the aggregation. Zero values select the defaults.
type Config struct {
	WarningThreshold int
	DefaultWeight    time.Duration
	Weights          map[string]time.Duration
}

func (c Config) threshold() int {
	if c.WarningThreshold <= 0 {
		return DefaultWarningThreshold
	}
	return c.WarningThreshold
}

// Weight returns the per-item weight of an effect type.
func (c Config) Weight(effectType string) time.Duration {
	if w, ok := c.Weights[effectType]; ok {
		return w
	}
	if c.DefaultWeight <= 0 {
		return DefaultEffectWeight
	}
	return c.DefaultWeight
}

// Exceeds reports whether an analysis is above the warning threshold.
func (c Config) Exceeds(a correction.ImpactAnalysis) bool {
	return a.AffectedEntityCount > c.threshold()
}

// Analyze asks resolver for the effects of req and aggregates them. A nil
// resolver yields an empty analysis carrying UnknownImpactWarning. Resolver
// errors are returned as is; the caller decides whether to proceed.
func Analyze(ctx context.Context, req correction.Request, resolver DependencyResolver, cfg Config) (correction.ImpactAnalysis, error) {
	analysis := correction.ImpactAnalysis{
		Effects:     []correction.ImpactEffect{},
		EffectTypes: []string{},
		Warnings:    []string{},
	}
	if resolver == nil {
		analysis.Warnings = append(analysis.Warnings, UnknownImpactWarning)
		return analysis, nil
	}

	effects, err := resolver.Resolve(ctx, req.EntityType, req.EntityID, req.ChangedFields())
	if err != nil {
		return correction.ImpactAnalysis{}, fmt.Errorf("resolve dependencies of %s: %w", req.EntityID, err)
	}

	for _, e := range effects {
		if e.Count < 0 {
			return correction.ImpactAnalysis{}, fmt.Errorf("resolve dependencies of %s: effect %q has negative count %d", req.EntityID, e.Type, e.Count)
		}
		analysis.Effects = append(analysis.Effects, e)
		analysis.AffectedEntityCount += e.Count
		analysis.EstimatedProcessingTime += cfg.Weight(e.Type) * time.Duration(e.Count)
		analysis.EffectTypes = append(analysis.EffectTypes, e.Type)
	}
	slices.Sort(analysis.EffectTypes)
	analysis.EffectTypes = slices.Compact(analysis.EffectTypes)

	if cfg.Exceeds(analysis) {
		analysis.Warnings = append(analysis.Warnings, fmt.Sprintf(
			"%d dependent entities affected, above the warning threshold of %d",
			analysis.AffectedEntityCount, cfg.threshold()))
	}
	for _, e := range analysis.Effects {
		if isSevere(e.Severity) {
			analysis.Warnings = append(analysis.Warnings, fmt.Sprintf(
				"%s severity effect %s affects %d entities", e.Severity, e.Type, e.Count))
		}
	}
	return analysis, nil
}

func isSevere(severity string) bool {
	return severity == "high" || severity == "critical"
}
