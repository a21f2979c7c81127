package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/patchwire/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// PatchSummary describes one compiled patch.
type PatchSummary struct {
	Number  int    `json:"number"`
	Units   int    `json:"units"`
	Edges   int    `json:"edges"`
	Init    bool   `json:"init"`
	Hash    string `json:"hash"`
	Default bool   `json:"default,omitempty"`
}

// CompilationResult is the JSON output of compile.
type CompilationResult struct {
	SetupHash string         `json:"setup_hash"`
	Config    ir.Config      `json:"config"`
	Patches   []PatchSummary `json:"patches"`
	Output    string         `json:"output,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <patch-dir>",
		Short: "Compile CUE patches to module graphs",
		Long: `Compile the CUE setup and patches in a directory into module graphs.

Prints a summary of every patch. With --output, the compiled setup is
written as JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, err := LoadSetup(dir)
	if err != nil {
		return outputCompileError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)

	result, err := summarize(loaded.Setup)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}

	if opts.Output != "" {
		if err := writeSetup(loaded.Setup, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
		}
		result.Output = opts.Output
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputCompileText(formatter, result)
	return nil
}

func summarize(setup *ir.Setup) (*CompilationResult, error) {
	hash, err := ir.SetupHash(setup)
	if err != nil {
		return nil, err
	}
	result := &CompilationResult{SetupHash: hash, Config: setup.Config}
	for _, e := range setup.Patches {
		ph, err := ir.PatchHash(e.Body)
		if err != nil {
			return nil, fmt.Errorf("patch %d: %w", e.Number, err)
		}
		result.Patches = append(result.Patches, PatchSummary{
			Number:  e.Number,
			Units:   e.Body.UnitCount(),
			Edges:   e.Body.EdgeCount(),
			Init:    e.Init != nil,
			Hash:    ph,
			Default: setup.DefaultPatch != nil && *setup.DefaultPatch == e.Number,
		})
	}
	return result, nil
}

func outputCompileText(f *OutputFormatter, result *CompilationResult) {
	w := f.Writer
	fmt.Fprintf(w, "✓ Compiled %d patch(es) for %s\n\n", len(result.Patches), result.Config.ClientName)
	for _, p := range result.Patches {
		var extra string
		if p.Init {
			extra += ", init"
		}
		if p.Default {
			extra += ", default"
		}
		fmt.Fprintf(w, "  patch %d: %d unit(s), %d edge(s)%s\n", p.Number, p.Units, p.Edges, extra)
		f.VerboseLog("  patch %d hash %s", p.Number, p.Hash)
	}
	fmt.Fprintf(w, "\nSetup hash: %s\n", result.SetupHash)
	if result.Output != "" {
		fmt.Fprintf(w, "Wrote compiled setup to %s\n", result.Output)
	}
}

// outputCompileError reports a load or compile failure.
func outputCompileError(f *OutputFormatter, err error) error {
	code, message := errorCode(err)
	if f.JSON() {
		_ = f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Line: lineOf(err)},
		})
	} else {
		fmt.Fprintln(f.Writer, "✗ Compilation failed")
		fmt.Fprintln(f.Writer)
		fmt.Fprintf(f.Writer, "  %s: %s\n", code, message)
	}
	return WrapExitError(ExitCommandError, "compilation failed", err)
}

// writeSetup writes the compiled setup as indented JSON.
func writeSetup(setup *ir.Setup, filename string) error {
	data, err := json.MarshalIndent(setup, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling setup: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
