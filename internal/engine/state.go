package engine

import (
	"context"
	"fmt"
	"maps"

	"github.com/roach88/retrofix/internal/conflict"
	"github.com/roach88/retrofix/internal/field"
	"github.com/roach88/retrofix/internal/store"
	"github.com/roach88/retrofix/internal/validate"
)

// loadEntity assembles the entity's current state. Fields the store has
// events for take their latest committed value; the rest come from the
// snapshot. The version and the entity type come from the store once the
// entity is known to it.
func (c *Coordinator) loadEntity(ctx context.Context, entityID string) (conflict.State, error) {
	state := conflict.State{Values: map[string]field.Value{}}

	version, known, err := c.store.CurrentVersion(ctx, entityID)
	if err != nil {
		return state, fmt.Errorf("read version of %s: %w", entityID, err)
	}

	if c.snapshots != nil {
		values, err := c.snapshots.GetCurrentValues(ctx, entityID)
		if err != nil {
			return state, fmt.Errorf("snapshot values of %s: %w", entityID, err)
		}
		maps.Copy(state.Values, values)
		if !known {
			if version, err = c.snapshots.GetVersion(ctx, entityID); err != nil {
				return state, fmt.Errorf("snapshot version of %s: %w", entityID, err)
			}
			if tp, ok := c.snapshots.(EntityTypeProvider); ok {
				if state.EntityType, err = tp.EntityType(ctx, entityID); err != nil {
					return state, fmt.Errorf("snapshot type of %s: %w", entityID, err)
				}
			}
		}
	}
	state.CurrentVersion = version

	if known {
		events, err := c.store.EntityHistory(ctx, entityID)
		if err != nil {
			return state, fmt.Errorf("read history of %s: %w", entityID, err)
		}
		// ordered by transaction time, so the last event per field wins
		for _, e := range events {
			state.Values[e.Field] = e.NewValue
		}
		if len(events) > 0 {
			state.EntityType = events[0].EntityType
		}
	}
	return state, nil
}

// bounds computes the permitted effective date range for entityID.
func (c *Coordinator) bounds(ctx context.Context, entityID string) (validate.Bounds, error) {
	var b validate.Bounds
	if c.floors != nil {
		floor, err := c.floors.ValidTimeFloor(ctx, entityID)
		if err != nil {
			return b, fmt.Errorf("valid time floor of %s: %w", entityID, err)
		}
		b.Floor = floor
	}

	now := c.clock.Now()
	switch {
	case !c.policy.AllowFutureDating:
		b.Ceiling = now
	case c.policy.FutureHorizon > 0:
		b.Ceiling = now.Add(c.policy.FutureHorizon)
	}
	return b, nil
}

// StateAsOf rebuilds the entity as the ledger believed it at at.KnownAt for
// the valid instant at.ValidAt. Snapshot values fill the fields no replayed
// event touched, and the snapshot version applies while nothing had been
// recorded yet.
func (c *Coordinator) StateAsOf(ctx context.Context, entityID string, at store.AsOf) (store.EntityState, error) {
	state, err := store.Replay(ctx, c.store, entityID, at)
	if err != nil {
		return state, err
	}
	if c.snapshots == nil {
		return state, nil
	}

	values, err := c.snapshots.GetCurrentValues(ctx, entityID)
	if err != nil {
		return state, fmt.Errorf("snapshot values of %s: %w", entityID, err)
	}
	for name, v := range values {
		if _, ok := state.Values[name]; !ok {
			state.Values[name] = v
		}
	}
	if state.Version == 0 {
		if state.Version, err = c.snapshots.GetVersion(ctx, entityID); err != nil {
			return state, fmt.Errorf("snapshot version of %s: %w", entityID, err)
		}
	}
	return state, nil
}
