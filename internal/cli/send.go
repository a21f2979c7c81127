package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/patchwire/internal/engine"
	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/store"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	Events   string
	Port     int
	Patch    int
	Database string
}

// SendResult is the JSON output of send.
type SendResult struct {
	RunID       string          `json:"run_id"`
	Inputs      int             `json:"inputs"`
	Outputs     []ir.TraceEvent `json:"outputs"`
	ActivePatch int             `json:"active_patch"`
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send <patch-dir> [message...]",
		Short: "Send events through the patches and print the outputs",
		Long: `Send events through a setup and print what comes out.

Messages are raw MIDI bytes in hex, one argument per message. Use --events
for a YAML event file instead.

Examples:
  patchwire send ./patches "90 3C 64" "80 3C 00"
  patchwire send ./patches --patch 2 "C0 05"
  patchwire send ./patches --events phrase.yaml --db ./trace.db`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Events, "events", "", "YAML event file")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "input port of raw messages")
	cmd.Flags().IntVar(&opts.Patch, "patch", -1, "patch to switch to before sending")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the trace to this SQLite database")

	return cmd
}

func runSend(opts *SendOptions, dir string, messages []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Events == "" && len(messages) == 0 {
		return formatter.fail(ExitCommandError, fmt.Errorf("no events: pass messages or --events"))
	}
	events, err := readEvents(opts.Events, messages, opts.Port)
	if err != nil {
		_ = formatter.Error(ErrCodeEvents, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeEvents, err)
	}

	setup, err := newSetup(dir)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	if opts.Patch >= 0 && !slices.Contains(setup.Numbers(), opts.Patch) {
		err := engine.NewUnknownPatchError(opts.Patch)
		_ = formatter.Error(ErrCodeRuntime, err.Error(), map[string]any{"patches": setup.Numbers()})
		return WrapExitError(ExitFailure, "unknown patch", err)
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	sink := &engine.Collector{}
	eng := engine.New(st, setup, engine.UUIDv7Generator{}, engine.WithSink(sink))
	if opts.Patch >= 0 {
		eng.RequestSwitch(opts.Patch)
	}
	for _, ev := range events {
		eng.Enqueue(ev)
	}
	eng.Stop()

	runErr := eng.Run(cmd.Context())

	result := SendResult{
		RunID:       eng.RunID(),
		Inputs:      len(events),
		Outputs:     sink.Events(),
		ActivePatch: setup.Active(),
	}
	if runErr != nil {
		if formatter.JSON() {
			_ = formatter.Failure(ErrCodeRuntime, runErr.Error(), result)
		} else {
			printOutputs(formatter, result)
			fmt.Fprintf(formatter.Writer, "✗ %v\n", runErr)
		}
		return WrapExitError(ExitFailure, "send failed", runErr)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	printOutputs(formatter, result)
	return nil
}

func printOutputs(f *OutputFormatter, result SendResult) {
	for _, out := range result.Outputs {
		fmt.Fprintln(f.Writer, formatTraceEvent(out))
	}
	fmt.Fprintf(f.Writer, "%d input(s), %d output(s), active patch %d\n",
		result.Inputs, len(result.Outputs), result.ActivePatch)
	f.VerboseLog("run %s", result.RunID)
}

// newSetup loads dir and prepares it for processing.
func newSetup(dir string) (*engine.Setup, error) {
	loaded, err := LoadSetup(dir)
	if err != nil {
		return nil, err
	}
	return engine.NewSetup(loaded.Setup)
}
