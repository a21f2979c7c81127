package harness

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/patchwire/internal/compiler"
	"github.com/roach88/patchwire/internal/engine"
	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/midimsg"
	"github.com/roach88/patchwire/internal/store"
	"github.com/roach88/patchwire/internal/testutil"
)

// Run executes a scenario on the real engine and evaluates its
// expectations and assertions.
//
// Each scenario gets a fresh in-memory store, a fixed run ID and a
// deterministic clock. opts configure the Setup, e.g. to register the
// handlers of process and call units.
//
// The returned error covers problems running the scenario at all; failed
// expectations and assertions are reported in Result.
func Run(ctx context.Context, sc *Scenario, opts ...engine.Option) (*Result, error) {
	src, err := compiler.LoadSetupDir(sc.Patches)
	if err != nil {
		return nil, fmt.Errorf("load patches: %w", err)
	}
	setup, err := engine.NewSetup(src, opts...)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	eng := engine.New(st, setup, testutil.NewFixedRunIDGenerator(sc.RunID),
		engine.WithClock(testutil.NewDeterministicClock()))
	initial := setup.Active()
	result := NewResult(eng.RunID())

	for i, step := range sc.Steps {
		if step.Switch != nil {
			eng.RequestSwitch(*step.Switch)
			continue
		}
		ev, err := step.Send.Event()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		eng.Enqueue(ev)
	}
	eng.Stop()

	// Run only fails here for call and system units; those are scenario
	// failures, not harness failures.
	if err := eng.Run(ctx); err != nil {
		result.AddError(fmt.Sprintf("engine: %v", err))
	}

	rec, err := st.ReadRecording(ctx, eng.RunID())
	if err != nil {
		return nil, err
	}
	if result.Trace, err = st.ReadTrace(ctx, eng.RunID()); err != nil {
		return nil, err
	}
	result.Switches = rec.Switches
	result.ActivePatch = setup.Active()
	if startup := rec.Outputs[0]; startup != nil {
		result.Startup = startup
	}

	steps, err := matchSteps(sc.Steps, rec, initial, setup.Numbers())
	if err != nil {
		return nil, err
	}
	result.Steps = steps

	for i, step := range sc.Steps {
		if step.Expect == nil {
			continue
		}
		if msg := compareOutputs(step.Expect, steps[i].Outputs); msg != "" {
			result.AddError(fmt.Sprintf("step %d: %s", i, msg))
		}
	}

	for _, msg := range EvaluateAssertions(result, sc.Assertions) {
		result.AddError(msg)
	}

	slog.Debug("scenario finished",
		"scenario", sc.Name,
		"run_id", result.RunID,
		"events", len(result.Trace),
		"pass", result.Pass,
	)
	return result, nil
}

// matchSteps assigns recorded seqs to scenario steps. Every send is
// traced as an input; a switch is traced only when it names a known patch
// other than the active one.
func matchSteps(steps []Step, rec store.Recording, initial int, numbers []int) ([]StepResult, error) {
	causedBy := make(map[int64]ir.PatchSwitch)
	inputSeqs := make(map[int64]bool)
	for _, in := range rec.Inputs {
		inputSeqs[in.Seq] = true
	}
	var external []ir.PatchSwitch
	for _, sw := range rec.Switches {
		if inputSeqs[sw.Seq] {
			causedBy[sw.Seq] = sw
		} else {
			external = append(external, sw)
		}
	}

	active := initial
	out := make([]StepResult, len(steps))
	var nextInput, nextSwitch int
	for i, step := range steps {
		sr := StepResult{Index: i, Outputs: []ir.TraceEvent{}}
		switch {
		case step.Send != nil:
			if nextInput >= len(rec.Inputs) {
				return nil, fmt.Errorf("step %d: no input recorded", i)
			}
			sr.Seq = rec.Inputs[nextInput].Seq
			nextInput++
			if sw, ok := causedBy[sr.Seq]; ok {
				active = sw.To
			}
		case slices.Contains(numbers, *step.Switch) && *step.Switch != active:
			if nextSwitch >= len(external) {
				return nil, fmt.Errorf("step %d: no patch switch recorded", i)
			}
			sr.Seq = external[nextSwitch].Seq
			active = external[nextSwitch].To
			nextSwitch++
		}
		if sr.Seq != 0 {
			sr.Outputs = append(sr.Outputs, rec.Outputs[sr.Seq]...)
		}
		out[i] = sr
	}
	return out, nil
}

// compareOutputs returns a description of the first difference, or "".
func compareOutputs(want []midimsg.EventSpec, got []ir.TraceEvent) string {
	if len(want) != len(got) {
		return fmt.Sprintf("expected %d outputs, got %d: %s", len(want), len(got), describe(got))
	}
	for i, spec := range want {
		ev, err := spec.Event()
		if err != nil {
			return fmt.Sprintf("expected output %d: %v", i, err)
		}
		if !ev.Equal(got[i].Event) {
			return fmt.Sprintf("output %d: expected %s, got %s", i, ev, got[i].Event)
		}
	}
	return ""
}
