package correction

import (
	"fmt"
	"strings"
	"time"
)

// Violation is one finding of the validator.
type Violation struct {
	Code     Code     `json:"code"`
	Severity Severity `json:"severity"`
	Field    string   `json:"field,omitempty"`
	Rule     string   `json:"rule,omitempty"`
	Message  string   `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return fmt.Sprintf("[%s] %s", v.Code, v.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", v.Code, v.Field, v.Message)
}

// ConflictType classifies a ConflictRecord.
type ConflictType string

const (
	ConflictVersionMismatch ConflictType = "version_mismatch"
	ConflictConcurrentEdit  ConflictType = "concurrent_edit"
	ConflictNoOpChange      ConflictType = "no_op_change"
)

// Code maps the conflict type to its rejection code.
func (t ConflictType) Code() Code {
	switch t {
	case ConflictVersionMismatch:
		return CodeVersionMismatch
	case ConflictConcurrentEdit:
		return CodeConcurrentEdit
	case ConflictNoOpChange:
		return CodeNoOpChange
	default:
		return Code(strings.ToUpper(string(t)))
	}
}

// ConflictRecord is one finding of the conflict detector.
type ConflictRecord struct {
	Type            ConflictType `json:"type"`
	Severity        Severity     `json:"severity"`
	Field           string       `json:"field,omitempty"`
	Message         string       `json:"message"`
	ExpectedVersion uint64       `json:"expected_version"`
	CurrentVersion  uint64       `json:"current_version"`
}

// ImpactEffect is one class of downstream work reported by a resolver.
type ImpactEffect struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Count       int    `json:"count" yaml:"count"`
	Severity    string `json:"severity" yaml:"severity"`
}

// ImpactAnalysis aggregates the effects of a request. It is derived per
// request and never persisted.
type ImpactAnalysis struct {
	AffectedEntityCount     int            `json:"affected_entity_count"`
	Effects                 []ImpactEffect `json:"effects"`
	EffectTypes             []string       `json:"effect_types"`
	EstimatedProcessingTime time.Duration  `json:"estimated_processing_time"`
	Warnings                []string       `json:"warnings"`
}

// HasErrors reports whether any violation has error severity.
func HasErrors(vs []Violation) bool {
	for _, v := range vs {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Warnings returns the warning-severity violations.
func Warnings(vs []Violation) []Violation {
	var out []Violation
	for _, v := range vs {
		if v.Severity == SeverityWarning {
			out = append(out, v)
		}
	}
	return out
}
