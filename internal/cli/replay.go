package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/patchwire/internal/engine"
	"github.com/roach88/patchwire/internal/ir"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - every run by default
}

// ReplaySummary holds the overall replay result.
type ReplaySummary struct {
	Runs       []engine.ReplayResult `json:"runs"`
	TotalRuns  int                   `json:"total_runs"`
	Reproduced bool                  `json:"reproduced"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <patch-dir>",
		Short: "Replay recorded runs against the current patches",
		Long: `Feed the recorded inputs and patch switches of a run through the
patches in a directory and compare the outputs with the recording.

Exit codes:
  0 - Every run reproduced its recorded outputs
  1 - At least one divergence
  2 - Command error (database not found, patches do not load, etc.)

Examples:
  patchwire replay --db ./trace.db ./patches
  patchwire replay --db ./trace.db --run-id take-1 ./patches --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "replay this run only")

	return cmd
}

func runReplay(opts *ReplayOptions, dir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, err := LoadSetup(dir)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var runs []ir.Run
	if opts.RunID != "" {
		run, err := st.ReadRun(ctx, opts.RunID)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, fmt.Sprintf("run %s: %v", opts.RunID, err), nil)
			return WrapExitError(ExitCommandError, "failed to find run", err)
		}
		runs = []ir.Run{run}
	} else if runs, err = st.ListRuns(ctx); err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	summary := ReplaySummary{
		Runs:       make([]engine.ReplayResult, 0, len(runs)),
		TotalRuns:  len(runs),
		Reproduced: true,
	}
	for _, run := range runs {
		rec, err := st.ReadRecording(ctx, run.ID)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read run %s", run.ID), err)
		}

		// Every run starts from a fresh setup.
		setup, err := engine.NewSetup(loaded.Setup)
		if err != nil {
			return formatter.fail(ExitCommandError, err)
		}
		res, err := engine.Replay(ctx, setup, rec)
		if err != nil {
			formatter.VerboseLog("replay %s: %v", run.ID, err)
		}
		summary.Runs = append(summary.Runs, res)
		if !res.OK() {
			summary.Reproduced = false
		}
	}

	if formatter.JSON() {
		if !summary.Reproduced {
			if err := formatter.Failure("E_DIVERGENCE", "replay diverged from the recording", summary); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "replay diverged from the recording")
		}
		return formatter.Success(summary)
	}
	return outputReplayText(formatter.Writer, summary)
}

func outputReplayText(w io.Writer, summary ReplaySummary) error {
	if summary.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", summary.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range summary.Runs {
		status := "✓"
		if !run.OK() {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Run: %s (%d step(s))\n", status, run.RunID, run.Steps)
		if run.SetupChanged {
			fmt.Fprintln(w, "  Patches changed since the run was recorded")
		}
		if !run.OK() {
			d := run.Divergences[0]
			fmt.Fprintf(w, "  First divergence at seq %d", d.Seq)
			if d.Input != nil {
				fmt.Fprintf(w, " (input %s)", d.Input)
			}
			fmt.Fprintln(w)
			printEvents(w, "recorded", d.Want)
			printEvents(w, "replayed", d.Got)
			if d.Error != "" {
				fmt.Fprintf(w, "    error: %s\n", d.Error)
			}
			if n := len(run.Divergences) - 1; n > 0 {
				fmt.Fprintf(w, "  ... and %d more\n", n)
			}
		}
		fmt.Fprintln(w)
	}

	if summary.Reproduced {
		fmt.Fprintln(w, "✓ All runs reproduced")
		return nil
	}
	fmt.Fprintln(w, "✗ Replay diverged from the recording")
	return NewExitError(ExitFailure, "replay diverged from the recording")
}

func printEvents(w io.Writer, label string, events []ir.Event) {
	if len(events) == 0 {
		fmt.Fprintf(w, "    %s: (none)\n", label)
		return
	}
	fmt.Fprintf(w, "    %s:\n", label)
	for _, ev := range events {
		fmt.Fprintf(w, "      %s\n", ev)
	}
}
