package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/patchwire/internal/engine"
	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Events   string
	Port     int
	RunID    string
	Append   bool

	// RunIDs overrides the run ID generator (for testing).
	// If nil, --run-id or a UUIDv7 is used.
	RunIDs engine.RunIDGenerator
}

// RunSummary is printed when the engine stops.
type RunSummary struct {
	RunID       string           `json:"run_id"`
	Inputs      int              `json:"inputs"`
	Outputs     int              `json:"outputs"`
	Switches    []ir.PatchSwitch `json:"switches"`
	ActivePatch int              `json:"active_patch"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <patch-dir>",
		Short: "Run the engine and record a trace",
		Long: `Start the engine with the patches in a directory and record every
input, output and patch switch to a SQLite database (created if needed).

Events come from --events, or from standard input as one hex message per
line until end of input or Ctrl-C. Outputs are printed as they happen.

Examples:
  patchwire run --db ./trace.db ./patches < phrase.txt
  patchwire run --db ./trace.db --events phrase.yaml --run-id take-1 ./patches
  patchwire run --db ./trace.db --run-id take-1 --append ./patches < more.txt`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Events, "events", "", "YAML event file (default: hex messages on stdin)")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "input port of stdin messages")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "record under this run ID instead of a new UUIDv7")
	cmd.Flags().BoolVar(&opts.Append, "append", false, "continue the existing run named by --run-id")

	return cmd
}

func runEngine(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Append && opts.RunID == "" {
		return formatter.fail(ExitCommandError, errors.New("--append needs --run-id"))
	}

	slog.Info("loading patches", "dir", dir)
	setup, err := newSetup(dir)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	slog.Info("patches loaded", "patches", len(setup.Numbers()), "active", setup.Active())

	var events []ir.Event
	if opts.Events != "" {
		if events, err = readEvents(opts.Events, nil, opts.Port); err != nil {
			_ = formatter.Error(ErrCodeEvents, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeEvents, err)
		}
	}

	slog.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	var engineOpts []engine.EngineOption
	runIDs := opts.RunIDs
	switch {
	case runIDs != nil:
	case opts.Append:
		resume, err := resumeRun(cmd.Context(), st, setup, opts.RunID)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeStore, err)
		}
		engineOpts = resume
		runIDs = engine.NewFixedGenerator(opts.RunID)
	case opts.RunID != "":
		_, err := st.ReadRun(cmd.Context(), opts.RunID)
		switch {
		case err == nil:
			err = fmt.Errorf("run %s already exists (use --append to continue it)", opts.RunID)
			fallthrough
		case !errors.Is(err, sql.ErrNoRows):
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeStore, err)
		}
		runIDs = engine.NewFixedGenerator(opts.RunID)
	default:
		runIDs = engine.UUIDv7Generator{}
	}

	outputs := 0
	sink := engine.SinkFunc(func(_ context.Context, ev ir.TraceEvent) error {
		outputs++
		if !formatter.JSON() {
			fmt.Fprintln(formatter.Writer, formatTraceEvent(ev))
		}
		return nil
	})
	eng := engine.New(st, setup, runIDs, append(engineOpts, engine.WithSink(sink))...)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var inputs atomic.Int64
	if opts.Events != "" {
		for _, ev := range events {
			eng.Enqueue(ev)
		}
		inputs.Store(int64(len(events)))
		eng.Stop()
	} else {
		// Stdin feeds the engine until EOF.
		go func() {
			defer eng.Stop()
			err := scanEvents(cmd.InOrStdin(), opts.Port, func(ev ir.Event) bool {
				inputs.Add(1)
				return eng.Enqueue(ev)
			})
			if err != nil {
				slog.Error("reading events", "error", err)
			}
		}()
	}

	runErr := eng.Run(ctx)
	if runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)) {
		runErr = nil
	}
	slog.Info("engine stopped", "run_id", eng.RunID())

	switches, err := st.ReadPatchSwitches(context.WithoutCancel(ctx), eng.RunID())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read patch switches", err)
	}
	summary := RunSummary{
		RunID:       eng.RunID(),
		Inputs:      int(inputs.Load()),
		Outputs:     outputs,
		Switches:    switches,
		ActivePatch: setup.Active(),
	}

	if runErr != nil {
		if formatter.JSON() {
			_ = formatter.Failure(ErrCodeRuntime, runErr.Error(), summary)
		} else {
			fmt.Fprintf(formatter.Writer, "✗ %v\n", runErr)
		}
		return WrapExitError(ExitFailure, "engine error", runErr)
	}

	if formatter.JSON() {
		return formatter.Success(summary)
	}
	fmt.Fprintf(formatter.Writer, "Run %s: %d input(s), %d output(s), %d switch(es), active patch %d\n",
		summary.RunID, summary.Inputs, summary.Outputs, len(summary.Switches), summary.ActivePatch)
	return nil
}

// resumeRun prepares setup and the engine to continue a recorded run: the
// patches must be unchanged, the run's last active patch is restored and
// new seqs follow the recorded ones.
func resumeRun(ctx context.Context, st *store.Store, setup *engine.Setup, runID string) ([]engine.EngineOption, error) {
	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, err
	}
	if run.SetupHash != setup.Hash() {
		return nil, fmt.Errorf("run %s was recorded with different patches", runID)
	}

	switches, err := st.ReadPatchSwitches(ctx, runID)
	if err != nil {
		return nil, err
	}
	if n := len(switches); n > 0 {
		if err := setup.Resume(switches[n-1].To); err != nil {
			return nil, err
		}
	}

	last, err := st.LastSeq(ctx, runID)
	if err != nil {
		return nil, err
	}
	slog.Info("appending to run", "run_id", runID, "last_seq", last, "patch", setup.Active())
	return []engine.EngineOption{engine.WithClock(engine.NewClockAt(last)), engine.Resumed()}, nil
}
