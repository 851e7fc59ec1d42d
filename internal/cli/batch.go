package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/retrofix/internal/engine"
	"github.com/roach88/retrofix/internal/input"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	DryRun       bool // run every gate except commit
	AllOrNothing bool // submit only when every request passes the precheck
}

// BatchView is the JSON form of a batch result.
type BatchView struct {
	Committed bool                  `json:"committed"`
	Succeeded []string              `json:"succeeded"`
	Failed    []engine.BatchFailure `json:"failed"`
	Receipts  []ReceiptView         `json:"receipts,omitempty"`
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <requests.yaml>",
		Short: "Submit several correction requests",
		Long: `Submit a list of correction requests, one pipeline per request.

Requests succeed or fail independently; a failure never rolls back the
others. With --all-or-nothing every request is prechecked first and none
is submitted unless all pass. A concurrent writer can still make a commit
fail after a clean precheck.

Exit codes:
  0 - All requests committed (or passed the precheck with --dry-run)
  1 - One or more requests failed
  2 - Command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "check every request without committing")
	cmd.Flags().BoolVar(&opts.AllOrNothing, "all-or-nothing", false, "submit only if every request passes the precheck")

	return cmd
}

func runBatch(opts *BatchOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	raw, err := input.LoadRequests(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read requests", err)
	}

	ctx := commandContext(cmd)
	env, err := openEnv(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer env.close()

	reqs, err := input.BuildAll(raw, env.schemas)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid requests", err)
	}

	var result engine.BatchResult
	committed := false
	switch {
	case opts.DryRun:
		result = env.engine.PrecheckBatch(ctx, reqs)
	case opts.AllOrNothing:
		result = env.engine.PrecheckBatch(ctx, reqs)
		if result.OK() {
			formatter.VerboseLog("Precheck passed for %d request(s), submitting", len(reqs))
			result = env.engine.SubmitBatch(ctx, reqs)
			committed = true
		}
	default:
		result = env.engine.SubmitBatch(ctx, reqs)
		committed = true
	}

	if formatter.Format == "json" {
		view := BatchView{Committed: committed, Succeeded: result.Succeeded, Failed: result.Failed}
		for _, r := range result.Receipts {
			view.Receipts = append(view.Receipts, newReceiptView(r))
		}
		if err := formatter.Success(view); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		verb := "committed"
		if !committed {
			verb = "passed"
		}
		receipts := make(map[string]engine.Receipt, len(result.Receipts))
		for _, r := range result.Receipts {
			receipts[r.EntityID] = r
		}
		for _, id := range result.Succeeded {
			if r, ok := receipts[id]; ok {
				fmt.Fprintf(w, "✓ %s %s at version %d\n", id, verb, r.Version)
			} else {
				fmt.Fprintf(w, "✓ %s %s\n", id, verb)
			}
		}
		for _, f := range result.Failed {
			fmt.Fprintf(w, "✗ %s: %s\n", f.EntityID, f.Reason)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Batch Summary: %d succeeded, %d failed, %d total\n", len(result.Succeeded), len(result.Failed), len(reqs))
		if opts.AllOrNothing && !committed {
			fmt.Fprintln(w, "Nothing submitted: precheck failed")
		}
	}

	if !result.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d request(s) failed", len(result.Failed)))
	}
	return nil
}
