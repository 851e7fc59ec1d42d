package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/retrofix/internal/engine"
	"github.com/roach88/retrofix/internal/input"
)

// HistoryView is the JSON form of a field history.
type HistoryView struct {
	EntityID string      `json:"entity_id"`
	Field    string      `json:"field"`
	Events   []EventView `json:"events"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <entity-id> <field>",
		Short: "List the recorded corrections of one field",
		Long: `List every committed event for a field, oldest first.

Each line shows the old and new value with both timelines: the valid time
the correction applies from and the transaction time it was recorded at.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runHistory(opts *RootOptions, entityID, fieldName string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	ctx := commandContext(cmd)
	env, err := openEnv(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer env.close()

	events, err := env.engine.GetFieldHistory(ctx, entityID, fieldName)
	if err != nil {
		return formatter.CommandError("failed to read history", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(HistoryView{EntityID: entityID, Field: fieldName, Events: newEventViews(events)})
	}

	w := formatter.Writer
	if len(events) == 0 {
		fmt.Fprintf(w, "No corrections recorded for %s.%s\n", entityID, fieldName)
		return nil
	}
	fmt.Fprintf(w, "%s.%s (%d event(s))\n", entityID, fieldName, len(events))
	for _, e := range events {
		writeEventLine(w, e)
		fmt.Fprintf(w, "    %s", e.Reason)
		if e.ActorID != "" {
			fmt.Fprintf(w, " by %s", e.ActorID)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// RevertOptions holds flags for the revert command.
type RevertOptions struct {
	*RootOptions
	Reason              string
	Actor               string
	EffectiveDate       string
	AcknowledgeWarnings bool
	ConfirmHighImpact   bool
}

// NewRevertCommand creates the revert command.
func NewRevertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RevertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "revert <entity-id> <field> <event-id>",
		Short: "Restore a field to the value it had before an event",
		Long: `Revert a recorded correction by committing a new one.

The new event sets the field back to the reverted event's old value and
goes through the same gates as submit. History is never rewritten. The
effective date defaults to the valid time of the reverted event.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRevert(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Reason, "reason", "", "why the correction is reverted (required)")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "who requests the revert")
	cmd.Flags().StringVar(&opts.EffectiveDate, "effective-date", "", "valid time of the revert (date or RFC 3339)")
	cmd.Flags().BoolVar(&opts.AcknowledgeWarnings, "acknowledge-warnings", false, "commit despite warnings")
	cmd.Flags().BoolVar(&opts.ConfirmHighImpact, "confirm-high-impact", false, "commit despite exceeding the impact threshold")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func runRevert(opts *RevertOptions, entityID, fieldName, eventID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var effective time.Time
	if opts.EffectiveDate != "" {
		t, err := input.ParseTime(opts.EffectiveDate)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --effective-date", err)
		}
		effective = t
	}

	ctx := commandContext(cmd)
	env, err := openEnv(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer env.close()

	receipt, err := env.engine.Revert(ctx, engine.RevertRequest{
		EntityID:            entityID,
		Field:               fieldName,
		EventID:             eventID,
		Reason:              opts.Reason,
		ActorID:             opts.Actor,
		EffectiveDate:       effective,
		AcknowledgeWarnings: opts.AcknowledgeWarnings,
		ConfirmedHighImpact: opts.ConfirmHighImpact,
	})
	if errors.Is(err, engine.ErrEventNotFound) {
		_ = formatter.Error("EVENT_NOT_FOUND", err.Error(), nil)
		return WrapExitError(ExitFailure, "revert failed", err)
	}
	if err != nil {
		return outputRejection(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(newReceiptView(receipt))
	}
	fmt.Fprintf(formatter.Writer, "✓ %s reverted %s: version %d → %d\n", receipt.EntityID, eventID, receipt.PreviousVersion, receipt.Version)
	for _, e := range receipt.Events {
		writeEventLine(formatter.Writer, e)
	}
	writeImpact(formatter.Writer, receipt.Impact)
	return nil
}
