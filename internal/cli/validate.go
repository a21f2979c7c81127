package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/patchwire/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                       `json:"valid"`
	Patches int                        `json:"patches"`
	Errors  []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <patch-dir>",
		Short: "Check patches without running them",
		Long: `Compile the patches in a directory and check every graph and the
setup configuration. All problems are reported, not just the first.

Exit codes:
  0 - Patches are valid
  1 - Validation errors
  2 - The directory could not be loaded`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	errs, patches, err := ValidateDir(dir)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	formatter.VerboseLog("Validated %d patch(es) in %s", patches, dir)

	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs, patches)
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Patches: patches})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d patch(es) valid\n", patches)
	return nil
}

// ValidateDir loads and validates the patches in dir. A compile error is
// returned as a validation error; only a directory that cannot be loaded
// is an error.
func ValidateDir(dir string) ([]compiler.ValidationError, int, error) {
	loaded, err := LoadSetup(dir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return nil, 0, err
		}
		code, message := errorCode(err)
		return []compiler.ValidationError{{
			Field:   "compile",
			Message: message,
			Code:    code,
			Line:    lineOf(err),
		}}, 0, nil
	}
	return compiler.Validate(loaded.Setup), len(loaded.Setup.Patches), nil
}

func outputValidationErrors(f *OutputFormatter, errs []compiler.ValidationError, patches int) error {
	exit := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if f.JSON() {
		resp := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Patches: patches, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
				Line:    errs[0].Line,
			},
		}
		if err := f.encode(resp); err != nil {
			return err
		}
		return exit
	}

	fmt.Fprintln(f.Writer, "✗ Validation failed")
	fmt.Fprintln(f.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(f.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(f.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return exit
}
