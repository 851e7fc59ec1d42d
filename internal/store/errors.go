package store

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionConflict is returned when the stored version of an entity
	// differs from the version a commit was built against.
	ErrVersionConflict = errors.New("version conflict")
	// ErrAppendFailed wraps storage failures during a commit.
	ErrAppendFailed = errors.New("append failed")
	// ErrEmptyCommit is returned for a commit without events.
	ErrEmptyCommit = errors.New("commit has no events")
	// ErrEntityTypeMismatch is returned when a commit names a different
	// entity type than the one the entity is registered under.
	ErrEntityTypeMismatch = errors.New("entity type mismatch")
)

// VersionConflictError carries both versions of a lost optimistic race.
type VersionConflictError struct {
	EntityID string
	Expected uint64
	Actual   uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %d, current %d", e.EntityID, e.Expected, e.Actual)
}

func (e *VersionConflictError) Unwrap() error {
	return ErrVersionConflict
}

// IsVersionConflict reports whether err is a lost optimistic race.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// EntityTypeMismatchError carries the registered and the requested type.
type EntityTypeMismatchError struct {
	EntityID   string
	Registered string
	Requested  string
}

func (e *EntityTypeMismatchError) Error() string {
	return fmt.Sprintf("entity %s is registered as %q, not %q", e.EntityID, e.Registered, e.Requested)
}

func (e *EntityTypeMismatchError) Unwrap() error {
	return ErrEntityTypeMismatch
}

// IsEntityTypeMismatch reports whether err names the wrong entity type.
func IsEntityTypeMismatch(err error) bool {
	return errors.Is(err, ErrEntityTypeMismatch)
}

// AppendError wraps a storage failure during a commit.
func AppendError(entityID string, err error) error {
	return fmt.Errorf("%w: entity %s: %w", ErrAppendFailed, entityID, err)
}
