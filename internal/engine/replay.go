package engine

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/store"
)

// Divergence is a step whose replayed outputs differ from the recording.
type Divergence struct {
	// Seq is the recorded input or switch seq; 0 is the start of the run.
	Seq   int64      `json:"seq"`
	Input *ir.Event  `json:"input,omitempty"`
	Want  []ir.Event `json:"want"`
	Got   []ir.Event `json:"got"`
	Error string     `json:"error,omitempty"`
}

// ReplayResult summarizes a replay.
type ReplayResult struct {
	RunID        string       `json:"run_id"`
	SetupChanged bool         `json:"setup_changed"`
	Steps        int          `json:"steps"`
	Divergences  []Divergence `json:"divergences"`
}

// OK reports whether the replay reproduced the recording.
func (r ReplayResult) OK() bool {
	return len(r.Divergences) == 0
}

// replayStep is a recorded input, or a patch switch that no input caused.
type replayStep struct {
	seq         int64
	input       *ir.Event
	patchSwitch *ir.PatchSwitch
}

// Replay feeds a recorded run through setup and compares outputs step by
// step. setup should be fresh: replay starts from its active patch.
//
// A recorded input that failed has no outputs; if it fails again the step
// matches. Errors of call and system units are returned after the
// comparison completes.
func Replay(ctx context.Context, setup *Setup, rec store.Recording) (ReplayResult, error) {
	res := ReplayResult{
		RunID:        rec.Run.ID,
		SetupChanged: rec.Run.SetupHash != setup.Hash(),
		Divergences:  []Divergence{},
	}

	init, err := setup.Start(ctx)
	res.compare(0, nil, rec.Outputs[0], init, err)

	for _, step := range replaySteps(rec) {
		res.Steps++
		if step.input != nil {
			r, err := setup.Process(ctx, *step.input)
			res.compare(step.seq, step.input, rec.Outputs[step.seq], r.Outputs, err)
			continue
		}
		got, err := setup.SwitchPatch(ctx, step.patchSwitch.To)
		res.compare(step.seq, nil, rec.Outputs[step.seq], got, err)
	}

	if err := setup.Wait(); err != nil {
		return res, fmt.Errorf("replay %s: %w", rec.Run.ID, err)
	}
	return res, nil
}

func (r *ReplayResult) compare(seq int64, input *ir.Event, recorded []ir.TraceEvent, got []ir.Event, err error) {
	want := make([]ir.Event, len(recorded))
	for i, ev := range recorded {
		want[i] = ev.Event
	}
	if got == nil {
		got = []ir.Event{}
	}

	if err == nil && slices.EqualFunc(want, got, ir.Event.Equal) {
		return
	}
	if err != nil && len(want) == 0 {
		return
	}

	d := Divergence{Seq: seq, Input: input, Want: want, Got: got}
	if err != nil {
		d.Error = err.Error()
	}
	r.Divergences = append(r.Divergences, d)
}

// replaySteps merges inputs with the patch switches that were requested
// from outside, in seq order.
func replaySteps(rec store.Recording) []replayStep {
	inputSeqs := make(map[int64]bool, len(rec.Inputs))
	steps := make([]replayStep, 0, len(rec.Inputs)+len(rec.Switches))
	for _, in := range rec.Inputs {
		ev := in.Event
		inputSeqs[in.Seq] = true
		steps = append(steps, replayStep{seq: in.Seq, input: &ev})
	}
	for _, sw := range rec.Switches {
		if inputSeqs[sw.Seq] {
			continue
		}
		steps = append(steps, replayStep{seq: sw.Seq, patchSwitch: &sw})
	}
	slices.SortFunc(steps, func(a, b replayStep) int { return cmp.Compare(a.seq, b.seq) })
	return steps
}
