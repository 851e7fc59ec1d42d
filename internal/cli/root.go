package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/retrofix/internal/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigPath   string
	SchemaDir    string
	EntitiesPath string

	// Clock and IDs override the engine's clock and event ID generator
	// (for testing). Nil means the system clock and UUIDv7 IDs.
	Clock engine.Clock
	IDs   engine.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the retrofix CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrofix",
		Short: "retrofix - bitemporal corrections for extracted business data",
		Long: `Apply audited, retroactive corrections to entity fields.

Every correction is validated against the entity's schema, checked for
conflicts with concurrent edits, analyzed for downstream impact and then
appended to a ledger that records both when a value was true (valid time)
and when the system learned it (transaction time).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default ./retrofix.yaml or $RETROFIX_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.SchemaDir, "schema", "schema", "directory of CUE entity type definitions")
	cmd.PersistentFlags().StringVar(&opts.EntitiesPath, "entities", "", "YAML file of entity snapshots for entities not yet in the ledger")

	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewPreviewCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewRevertCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
