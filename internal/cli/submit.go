package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/retrofix/internal/input"
)

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <request.yaml>",
		Short: "Validate, check and commit a correction request",
		Long: `Submit a correction request read from a YAML file.

The request runs through validation, conflict detection and impact
analysis before its events are appended to the ledger. A rejected request
writes nothing and exits with code 1.

Example:
  retrofix submit --schema ./schema --entities ./entities.yaml fix-inv-1.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(rootOpts, args[0], cmd)
		},
	}
}

func runSubmit(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	raw, err := input.LoadRequest(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read request", err)
	}

	ctx := commandContext(cmd)
	env, err := openEnv(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer env.close()

	req, err := raw.Build(env.schemas)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid request", err)
	}
	formatter.VerboseLog("Submitting %d change(s) to %s at version %d", len(req.Changes), req.EntityID, req.ExpectedVersion)

	receipt, err := env.engine.SubmitCorrection(ctx, req)
	if err != nil {
		return outputRejection(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(newReceiptView(receipt))
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ %s committed: version %d → %d\n", receipt.EntityID, receipt.PreviousVersion, receipt.Version)
	if receipt.VersionOverride != "" {
		fmt.Fprintf(w, "  version conflict overridden (%s)\n", receipt.VersionOverride)
	}
	for _, e := range receipt.Events {
		writeEventLine(w, e)
	}
	for _, v := range receipt.Warnings {
		fmt.Fprintf(w, "  ! %s\n", v)
	}
	writeImpact(w, receipt.Impact)
	return nil
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <request.yaml>",
		Short: "Show the downstream impact of a correction without committing it",
		Long: `Validate a correction request and report its downstream impact.

Nothing is written. Conflict and confirmation gates are not applied, so a
request that submit would reject for those reasons can still be previewed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(rootOpts, args[0], cmd)
		},
	}
}

func runPreview(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	raw, err := input.LoadRequest(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read request", err)
	}

	ctx := commandContext(cmd)
	env, err := openEnv(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer env.close()

	req, err := raw.Build(env.schemas)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid request", err)
	}

	analysis, err := env.engine.PreviewImpact(ctx, req)
	if err != nil {
		return outputRejection(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(analysis)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s preview\n", req.EntityID)
	writeImpact(formatter.Writer, analysis)
	return nil
}
