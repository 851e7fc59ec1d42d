package testutil

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/roach88/retrofix/internal/field"
)

// ErrUnknownEntity is returned for entities that were never Put.
var ErrUnknownEntity = errors.New("unknown entity")

// Entity is the snapshot of one entity.
type Entity struct {
	// Type is optional; empty leaves the entity type unchecked.
	Type    string
	Version uint64
	Values  map[string]field.Value
	// Floor is the earliest permitted effective date; zero means none.
	Floor time.Time
}

// Snapshots is an in-memory snapshot and valid-time floor provider.
//
// Thread-safety: safe for concurrent use.
type Snapshots struct {
	mu       sync.RWMutex
	entities map[string]Entity
	err      error
}

// NewSnapshots creates an empty provider.
func NewSnapshots() *Snapshots {
	return &Snapshots{entities: make(map[string]Entity)}
}

// Put stores or replaces an entity.
func (s *Snapshots) Put(entityID string, e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Values = maps.Clone(e.Values)
	s.entities[entityID] = e
}

// Fail makes every subsequent call return err. Fail(nil) restores service.
func (s *Snapshots) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Snapshots) get(entityID string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return Entity{}, s.err
	}
	e, ok := s.entities[entityID]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
	}
	return e, nil
}

// GetVersion implements engine.EntitySnapshotProvider.
func (s *Snapshots) GetVersion(_ context.Context, entityID string) (uint64, error) {
	e, err := s.get(entityID)
	return e.Version, err
}

// GetCurrentValues implements engine.EntitySnapshotProvider. The returned
// map is a copy.
func (s *Snapshots) GetCurrentValues(_ context.Context, entityID string) (map[string]field.Value, error) {
	e, err := s.get(entityID)
	if err != nil {
		return nil, err
	}
	return maps.Clone(e.Values), nil
}

// EntityType implements engine.EntityTypeProvider.
func (s *Snapshots) EntityType(_ context.Context, entityID string) (string, error) {
	e, err := s.get(entityID)
	return e.Type, err
}

// ValidTimeFloor implements engine.ValidTimeFloorProvider.
func (s *Snapshots) ValidTimeFloor(_ context.Context, entityID string) (time.Time, error) {
	e, err := s.get(entityID)
	return e.Floor, err
}
