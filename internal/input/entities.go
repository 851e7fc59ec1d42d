package input

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/roach88/retrofix/internal/field"
)

// Entity is the YAML form of an entity snapshot.
type Entity struct {
	Type    string         `yaml:"type"`
	Version uint64         `yaml:"version"`
	Floor   string         `yaml:"floor,omitempty"`
	Values  map[string]any `yaml:"values"`
}

// Snapshot is a decoded entity.
type Snapshot struct {
	Type    string
	Version uint64
	Floor   time.Time
	Values  map[string]field.Value
}

// Snapshots is a fixed set of entity snapshots. Entities it does not hold
// start at version 0 with no values and no valid time floor.
//
// It implements engine.EntitySnapshotProvider and
// engine.ValidTimeFloorProvider and is safe for concurrent reads.
type Snapshots struct {
	byID map[string]Snapshot
}

// DecodeEntities coerces every entity's values through its type's schema.
// Entities are processed in ID order so errors are reported
// deterministically.
func DecodeEntities(entities map[string]Entity, s Schema) (*Snapshots, error) {
	ids := make([]string, 0, len(entities))
	for id := range entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := &Snapshots{byID: make(map[string]Snapshot, len(entities))}
	for _, id := range ids {
		e := entities[id]
		defs, ok := s.Fields(e.Type)
		if !ok {
			return nil, fmt.Errorf("entity %s: unknown entity type %q", id, e.Type)
		}
		floor, err := ParseTime(e.Floor)
		if err != nil {
			return nil, fmt.Errorf("entity %s: floor: %w", id, err)
		}

		values := make(map[string]field.Value, len(e.Values))
		for name, raw := range e.Values {
			v, err := coerce(defs, name, raw)
			if err != nil {
				return nil, fmt.Errorf("entity %s: %w", id, err)
			}
			if v != nil {
				values[name] = v
			}
		}
		out.byID[id] = Snapshot{Type: e.Type, Version: e.Version, Floor: floor, Values: values}
	}
	return out, nil
}

// Get returns the snapshot of entityID.
func (s *Snapshots) Get(entityID string) (Snapshot, bool) {
	snap, ok := s.byID[entityID]
	return snap, ok
}

// GetVersion implements engine.EntitySnapshotProvider.
func (s *Snapshots) GetVersion(_ context.Context, entityID string) (uint64, error) {
	return s.byID[entityID].Version, nil
}

// GetCurrentValues implements engine.EntitySnapshotProvider. The returned
// map is a copy.
func (s *Snapshots) GetCurrentValues(_ context.Context, entityID string) (map[string]field.Value, error) {
	return maps.Clone(s.byID[entityID].Values), nil
}

// EntityType implements engine.EntityTypeProvider.
func (s *Snapshots) EntityType(_ context.Context, entityID string) (string, error) {
	return s.byID[entityID].Type, nil
}

// ValidTimeFloor implements engine.ValidTimeFloorProvider.
func (s *Snapshots) ValidTimeFloor(_ context.Context, entityID string) (time.Time, error) {
	return s.byID[entityID].Floor, nil
}

// Len returns the number of snapshots.
func (s *Snapshots) Len() int {
	return len(s.byID)
}
