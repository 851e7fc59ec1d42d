package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/retrofix/internal/schema"
)

// SchemaError is one problem found while loading a schema directory.
type SchemaError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds schema validation results.
type ValidationResult struct {
	Valid       bool          `json:"valid"`
	EntityTypes []string      `json:"entity_types,omitempty"`
	Errors      []SchemaError `json:"errors,omitempty"`
}

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect entity schemas",
	}
	cmd.AddCommand(newSchemaValidateCommand(rootOpts))
	return cmd
}

func newSchemaValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [schema-dir]",
		Short: "Check CUE entity schemas",
		Long: `Load every entity type declared in a CUE schema directory and report
all problems found. Defaults to the --schema directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.SchemaDir
			if len(args) == 1 {
				dir = args[0]
			}
			return runSchemaValidate(rootOpts, dir, cmd)
		},
	}
}

func runSchemaValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	reg, errs := schema.LoadDir(dir, schema.LoadModeCollectAll)
	if reg == nil && len(errs) > 0 {
		// Nothing could be built; the directory itself is the problem.
		var loadErr *schema.LoadError
		if errors.As(errs[0], &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
		}
		return formatter.CommandError("schema load failed", errs[0])
	}

	if len(errs) > 0 {
		return outputSchemaErrors(formatter, toSchemaErrors(errs))
	}

	names := reg.Names()
	formatter.VerboseLog("Loaded %d entity type(s) from %s", len(names), dir)

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, EntityTypes: names})
	}
	fmt.Fprintln(formatter.Writer, "✓ All schemas valid")
	for _, name := range names {
		t, _ := reg.Type(name)
		fmt.Fprintf(formatter.Writer, "  %s: %d field(s), %d rule(s), %d dependent(s)\n", name, len(t.Fields), len(t.Rules), len(t.Dependents))
	}
	return nil
}

func toSchemaErrors(errs []error) []SchemaError {
	out := make([]SchemaError, 0, len(errs))
	for _, err := range errs {
		var loadErr *schema.LoadError
		if !errors.As(err, &loadErr) {
			out = append(out, SchemaError{Code: ErrCodeGeneric, Message: err.Error()})
			continue
		}
		se := SchemaError{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			se.File = loadErr.Pos.Filename()
			se.Line = loadErr.Pos.Line()
		}
		out = append(out, se)
	}
	return out
}

// outputSchemaErrors reports validation failures. They exit with
// ExitFailure like a failed test.
func outputSchemaErrors(formatter *OutputFormatter, errs []SchemaError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		_ = formatter.Error(errs[0].Code, errs[0].Message, ValidationResult{Valid: false, Errors: errs})
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s line %d\n", e.File, e.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return failure
}
