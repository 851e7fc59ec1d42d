package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/engine"
	"github.com/roach88/retrofix/internal/field"
)

// EventView is the JSON form of a ledger event. Values are rendered as
// canonical JSON content.
type EventView struct {
	EventID         string              `json:"event_id"`
	Seq             int64               `json:"seq,omitempty"`
	EntityID        string              `json:"entity_id"`
	EntityType      string              `json:"entity_type,omitempty"`
	Field           string              `json:"field"`
	OldValue        json.RawMessage     `json:"old_value"`
	NewValue        json.RawMessage     `json:"new_value"`
	ValidTime       time.Time           `json:"valid_time"`
	TransactionTime time.Time           `json:"transaction_time"`
	ActorID         string              `json:"actor_id,omitempty"`
	Reason          string              `json:"reason"`
	SourceVersion   uint64              `json:"source_version"`
	Metadata        correction.Metadata `json:"metadata"`
	Digest          string              `json:"digest"`
}

// ReceiptView is the JSON form of a committed correction.
type ReceiptView struct {
	EntityID        string                      `json:"entity_id"`
	PreviousVersion uint64                      `json:"previous_version"`
	Version         uint64                      `json:"version"`
	TransactionTime time.Time                   `json:"transaction_time"`
	Events          []EventView                 `json:"events"`
	Impact          correction.ImpactAnalysis   `json:"impact"`
	Warnings        []correction.Violation      `json:"warnings,omitempty"`
	Conflicts       []correction.ConflictRecord `json:"conflicts,omitempty"`
	VersionOverride string                      `json:"version_override,omitempty"`
}

// RejectionView is the error detail of a rejected correction.
type RejectionView struct {
	EntityID       string                      `json:"entity_id"`
	Stage          string                      `json:"stage"`
	CurrentVersion uint64                      `json:"current_version"`
	Violations     []correction.Violation      `json:"violations,omitempty"`
	Conflicts      []correction.ConflictRecord `json:"conflicts,omitempty"`
	Impact         *correction.ImpactAnalysis  `json:"impact,omitempty"`
}

func jsonValue(v field.Value) json.RawMessage {
	data, err := field.MarshalCanonical(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}

func newEventView(e correction.Event) EventView {
	return EventView{
		EventID:         e.EventID,
		Seq:             e.Seq,
		EntityID:        e.EntityID,
		EntityType:      e.EntityType,
		Field:           e.Field,
		OldValue:        jsonValue(e.OldValue),
		NewValue:        jsonValue(e.NewValue),
		ValidTime:       e.ValidTime,
		TransactionTime: e.TransactionTime,
		ActorID:         e.ActorID,
		Reason:          e.Reason,
		SourceVersion:   e.SourceVersion,
		Metadata:        e.Metadata,
		Digest:          e.Digest,
	}
}

func newEventViews(events []correction.Event) []EventView {
	views := make([]EventView, 0, len(events))
	for _, e := range events {
		views = append(views, newEventView(e))
	}
	return views
}

func newReceiptView(r engine.Receipt) ReceiptView {
	return ReceiptView{
		EntityID:        r.EntityID,
		PreviousVersion: r.PreviousVersion,
		Version:         r.Version,
		TransactionTime: r.TransactionTime,
		Events:          newEventViews(r.Events),
		Impact:          r.Impact,
		Warnings:        r.Warnings,
		Conflicts:       r.Conflicts,
		VersionOverride: r.VersionOverride,
	}
}

// describe renders a value for text output.
func describe(v field.Value) string {
	if v == nil {
		return "<unset>"
	}
	return v.String()
}

func formatDay(t time.Time) string {
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.UTC().Format(time.DateOnly)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeEventLine(w io.Writer, e correction.Event) {
	fmt.Fprintf(w, "  %s: %s → %s (valid %s, recorded %s, %s)\n",
		e.Field, describe(e.OldValue), describe(e.NewValue),
		formatDay(e.ValidTime), e.TransactionTime.UTC().Format(time.RFC3339Nano), e.EventID)
}

func writeImpact(w io.Writer, a correction.ImpactAnalysis) {
	fmt.Fprintf(w, "  impact: %d dependent entities, est. %s\n", a.AffectedEntityCount, a.EstimatedProcessingTime)
	for _, e := range a.Effects {
		fmt.Fprintf(w, "    %s: %d (%s)\n", e.Type, e.Count, e.Severity)
	}
	for _, warning := range a.Warnings {
		fmt.Fprintf(w, "  ! %s\n", warning)
	}
}

// outputRejection reports err, which is a *engine.RejectError or a plain
// failure. Rejections exit with ExitFailure, anything else is a command
// error.
func outputRejection(formatter *OutputFormatter, err error) error {
	var re *engine.RejectError
	if !errors.As(err, &re) {
		return formatter.CommandError("correction failed", err)
	}

	view := RejectionView{
		EntityID:       re.EntityID,
		Stage:          string(re.Stage),
		CurrentVersion: re.CurrentVersion,
		Violations:     re.Violations,
		Conflicts:      re.Conflicts,
		Impact:         re.Impact,
	}

	if formatter.Format == "json" {
		_ = formatter.Error(string(re.Code), re.Error(), view)
		return NewExitError(ExitFailure, re.Error())
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✗ %s rejected at %s: %s (entity at version %d)\n", re.EntityID, re.Stage, re.Code, re.CurrentVersion)
	for _, v := range re.Violations {
		fmt.Fprintf(w, "  %s\n", v)
	}
	for _, c := range re.Conflicts {
		fmt.Fprintf(w, "  %s [%s]: %s\n", c.Type.Code(), c.Severity, c.Message)
	}
	if re.Err != nil {
		fmt.Fprintf(w, "  %v\n", re.Err)
	}
	if re.Impact != nil {
		writeImpact(w, *re.Impact)
	}
	return NewExitError(ExitFailure, re.Error())
}
