package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/patchwire/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
	Golden string // golden file directory
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>",
		Short: "Run scenario files",
		Long: `Run YAML scenarios against the patches they name, checking the expected
outputs of every step and the assertions.

When a golden file <golden-dir>/<scenario name>.golden exists, the trace
must match it. --update writes the golden files instead. The golden
directory defaults to "golden" next to the scenarios.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  patchwire test ./scenarios
  patchwire test ./scenarios --filter "split*"
  patchwire test ./scenarios --update
  patchwire test ./scenarios/keyboard_split.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the file name")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden file directory")

	return cmd
}

func runTests(opts *TestOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	suite, err := harness.RunAll(cmd.Context(), path, opts.Filter)
	switch {
	case errors.Is(err, filepath.ErrBadPattern):
		return formatter.fail(ExitCommandError, err)
	case err != nil:
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("scenarios not found: %s", path), nil)
		return WrapExitError(ExitCommandError, "scenarios not found", err)
	}

	goldenDir := opts.Golden
	if goldenDir == "" {
		base := path
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			base = filepath.Dir(path)
		}
		goldenDir = filepath.Join(base, "golden")
	}

	for i, sc := range suite.Scenarios {
		if sc.Result == nil {
			continue
		}
		if msg := checkGolden(sc, goldenDir, opts.Update); msg != "" {
			suite.Fail(i, msg)
		}
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(suite.Scenarios)),
		Passed:    suite.Passed,
		Failed:    suite.Failed,
		Total:     suite.Total,
	}
	for _, sc := range suite.Scenarios {
		sr := ScenarioResult{Name: sc.Name, File: sc.Path, Pass: sc.Pass(), Errors: sc.Errors}
		if sr.Name == "" {
			sr.Name = filepath.Base(sc.Path)
		}
		formatter.VerboseLog("%s: pass=%v", sc.Path, sr.Pass)
		if !formatter.JSON() {
			printScenario(formatter.Writer, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	if formatter.JSON() {
		return outputTestJSON(formatter, result, suite.Err())
	}
	return outputTestText(formatter.Writer, result, suite.Err())
}

// checkGolden compares the trace of a scenario that ran with its golden
// file, or writes the file when update is set. It returns a failure
// message, or "" when the trace matches or there is no golden file.
func checkGolden(sc harness.ScenarioRun, goldenDir string, update bool) string {
	data, err := sc.Result.Snapshot(sc.Name).MarshalCanonical()
	if err != nil {
		return fmt.Sprintf("marshal trace: %v", err)
	}
	goldenPath := filepath.Join(goldenDir, sc.Name+".golden")

	if update {
		if err := os.MkdirAll(goldenDir, 0o755); err != nil {
			return fmt.Sprintf("create golden directory: %v", err)
		}
		if err := os.WriteFile(goldenPath, data, 0o644); err != nil {
			return fmt.Sprintf("write golden file: %v", err)
		}
		return ""
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		return ""
	case err != nil:
		return fmt.Sprintf("read golden file: %v", err)
	case !bytes.Equal(golden, data):
		return "trace does not match golden file (run with --update to regenerate)"
	}
	return ""
}

func printScenario(w io.Writer, sr ScenarioResult) {
	if sr.Pass {
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(strings.TrimRight(e, "\n"), "\n", "\n  "))
	}
}

func outputTestJSON(f *OutputFormatter, result TestResult, failures error) error {
	if result.Failed == 0 {
		return f.Success(result)
	}
	message := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := f.Failure("E_TEST_FAILED", message, result); err != nil {
		return err
	}
	return WrapExitError(ExitFailure, message, failures)
}

func outputTestText(w io.Writer, result TestResult, failures error) error {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed), failures)
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
