package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/retrofix/internal/correction"
)

// ErrStageOrder is returned when a pipeline stage is called before the stage
// it depends on has completed, or after the pipeline has finished.
var ErrStageOrder = errors.New("pipeline stage called out of order")

// ErrEventNotFound is returned by Revert when the target event is not part
// of the field's history.
var ErrEventNotFound = errors.New("event not found")

// Stage names the gate that rejected a request.
type Stage string

const (
	StageValidate Stage = "validate"
	StageConflict Stage = "conflict"
	StageImpact   Stage = "impact"
	StageCommit   Stage = "commit"
)

// RejectError reports a request that did not commit.
//
// Violations carries every validation finding, not just the first, so a
// caller can show all problems in one round trip. CurrentVersion is the
// entity version the pipeline observed, for reload-and-retry.
type RejectError struct {
	Stage      Stage
	Code       correction.Code
	EntityID   string
	Violations []correction.Violation
	Conflicts  []correction.ConflictRecord

	CurrentVersion uint64

	// Impact is set when the rejection happened at or after impact analysis.
	Impact *correction.ImpactAnalysis

	// Err is the underlying collaborator or store error, if any.
	Err error
}

// Error implements the error interface.
func (e *RejectError) Error() string {
	msg := fmt.Sprintf("correction of %s rejected at %s: %s", e.EntityID, e.Stage, e.Code)
	switch {
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	case len(e.Violations) == 1:
		msg += ": " + e.Violations[0].String()
	case len(e.Violations) > 1:
		msg += fmt.Sprintf(" (%d violations)", len(e.Violations))
	}
	return msg
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

// IsVersionMismatch reports whether err rejects a request built against a
// stale version, either at the conflict gate or by losing the commit race.
// Uses errors.As to handle wrapped errors.
func IsVersionMismatch(err error) bool {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Code == correction.CodeVersionMismatch || re.Code == correction.CodeVersionConflict
	}
	return false
}

// HasCode reports whether err is a RejectError whose code, or any of whose
// violations or conflicts, is code.
func HasCode(err error, code correction.Code) bool {
	var re *RejectError
	if !errors.As(err, &re) {
		return false
	}
	if re.Code == code {
		return true
	}
	for _, v := range re.Violations {
		if v.Code == code {
			return true
		}
	}
	for _, c := range re.Conflicts {
		if c.Type.Code() == code {
			return true
		}
	}
	return false
}

// RejectCode returns the code of a RejectError, or "" for other errors.
func RejectCode(err error) correction.Code {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
