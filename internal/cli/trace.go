package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/midimsg"
	"github.com/roach88/patchwire/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	RunID     string // optional - latest run by default
	Direction string
	Types     []string
	Patch     int
	Channel   int
	Cause     int64
	From      int64
	To        int64
	Limit     int
	Export    string // write the run's inputs to this event file
}

// TraceResult holds the trace output.
type TraceResult struct {
	Run      ir.Run           `json:"run"`
	Events   []ir.TraceEvent  `json:"events"`
	Switches []ir.PatchSwitch `json:"switches"`
	Stats    TraceStats       `json:"stats"`
	Exported string           `json:"exported,omitempty"`
}

// TraceStats holds summary statistics for the selected events.
type TraceStats struct {
	Inputs   int `json:"inputs"`
	Outputs  int `json:"outputs"`
	Switches int `json:"switches"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded trace of a run",
		Long: `Show the inputs, outputs and patch switches recorded for a run, in
seq order. Each output names the seq of the input that caused it.

Without --run-id the most recent run is shown. The filters narrow the
events; patch switches are shown for the selected seq range. --export
writes every input of the run as a YAML event file that send and run
accept with --events.

Examples:
  patchwire trace --db ./trace.db
  patchwire trace --db ./trace.db --run-id take-1 --direction out --type note_on
  patchwire trace --db ./trace.db --cause 12 --format json
  patchwire trace --db ./trace.db --run-id take-1 --export take-1.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run to show (default: latest)")
	cmd.Flags().StringVar(&opts.Direction, "direction", "", "only in or out events")
	cmd.Flags().StringSliceVar(&opts.Types, "type", nil, "only events of these types")
	cmd.Flags().IntVar(&opts.Patch, "patch", -1, "only events processed by this patch")
	cmd.Flags().IntVar(&opts.Channel, "channel", -1, "only events on this channel")
	cmd.Flags().Int64Var(&opts.Cause, "cause", 0, "only events caused by this input seq")
	cmd.Flags().Int64Var(&opts.From, "from", 0, "first seq")
	cmd.Flags().Int64Var(&opts.To, "to", 0, "last seq")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events")
	cmd.Flags().StringVar(&opts.Export, "export", "", "write the run's inputs to this YAML event file")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd)

	query, err := opts.query()
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := resolveRun(ctx, st, opts.RunID)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find run", err)
	}
	query.RunID = run.ID

	events, err := st.QueryEvents(ctx, query)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to query events", err)
	}
	switches, err := st.ReadPatchSwitches(ctx, run.ID)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read patch switches", err)
	}
	switches = slices.DeleteFunc(switches, func(sw ir.PatchSwitch) bool {
		return sw.Seq < opts.From || (opts.To > 0 && sw.Seq > opts.To)
	})

	result := TraceResult{
		Run:      run,
		Events:   events,
		Switches: switches,
		Stats:    TraceStats{Switches: len(switches)},
	}
	for _, ev := range events {
		if ev.Direction == ir.DirectionIn {
			result.Stats.Inputs++
		} else {
			result.Stats.Outputs++
		}
	}

	if opts.Export != "" {
		n, err := exportInputs(ctx, st, run.ID, opts.Export)
		if err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
		}
		formatter.VerboseLog("Exported %d input(s) to %s", n, opts.Export)
		result.Exported = opts.Export
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result)
	return nil
}

// exportInputs writes the inputs of a run as a YAML event file and returns
// how many were written.
func exportInputs(ctx context.Context, st *store.Store, runID, path string) (int, error) {
	inputs, err := st.ReadInputs(ctx, runID)
	if err != nil {
		return 0, err
	}
	events := make([]ir.Event, len(inputs))
	for i, in := range inputs {
		events[i] = in.Event
	}
	data, err := midimsg.MarshalEvents(events)
	if err != nil {
		return 0, fmt.Errorf("marshal events: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("writing file: %w", err)
	}
	return len(events), nil
}

func (o *TraceOptions) query() (store.EventQuery, error) {
	q := store.EventQuery{FromSeq: o.From, ToSeq: o.To, Limit: o.Limit}
	switch ir.Direction(o.Direction) {
	case "", ir.DirectionIn, ir.DirectionOut:
		q.Direction = ir.Direction(o.Direction)
	default:
		return q, fmt.Errorf("invalid direction %q: must be in or out", o.Direction)
	}
	for _, t := range o.Types {
		et := ir.EventType(t)
		if !et.Valid() {
			return q, fmt.Errorf("unknown event type %q", t)
		}
		q.Types = append(q.Types, et)
	}
	if o.Patch >= 0 {
		q.Patch = &o.Patch
	}
	if o.Channel >= 0 {
		q.Channel = &o.Channel
	}
	if o.Cause > 0 {
		q.CauseSeq = &o.Cause
	}
	return q, nil
}

// openStore opens an existing trace database.
func openStore(f *OutputFormatter, path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", path), nil)
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// resolveRun returns the run with the given ID, or the latest run.
func resolveRun(ctx context.Context, st *store.Store, id string) (ir.Run, error) {
	if id != "" {
		run, err := st.ReadRun(ctx, id)
		if err != nil {
			return ir.Run{}, fmt.Errorf("run %s: %w", id, err)
		}
		return run, nil
	}
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return ir.Run{}, err
	}
	if len(runs) == 0 {
		return ir.Run{}, fmt.Errorf("no runs recorded")
	}
	return runs[len(runs)-1], nil
}

func outputTraceText(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Trace for run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Setup: %s (%s, %s)\n", truncateHash(result.Run.SetupHash), result.Run.Backend, result.Run.ClientName)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Events) == 0 && len(result.Switches) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	switches := result.Switches
	for _, ev := range result.Events {
		// A switch caused by an input is listed right after that input.
		for len(switches) > 0 && switches[0].Seq < ev.Seq {
			printSwitch(w, switches[0])
			switches = switches[1:]
		}
		fmt.Fprintf(w, "  %s\n", formatTraceEvent(ev))
		if ev.Direction == ir.DirectionIn && len(switches) > 0 && switches[0].Seq == ev.Seq {
			printSwitch(w, switches[0])
			switches = switches[1:]
		}
	}
	for _, sw := range switches {
		printSwitch(w, sw)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Inputs:   %d\n", result.Stats.Inputs)
	fmt.Fprintf(w, "  Outputs:  %d\n", result.Stats.Outputs)
	fmt.Fprintf(w, "  Switches: %d\n", result.Stats.Switches)
	if result.Exported != "" {
		fmt.Fprintf(w, "\nExported inputs to %s\n", result.Exported)
	}
}

func printSwitch(w io.Writer, sw ir.PatchSwitch) {
	fmt.Fprintf(w, "  [%d] switch p%d -> p%d\n", sw.Seq, sw.From, sw.To)
}

// truncateHash shortens a hash for display.
func truncateHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
