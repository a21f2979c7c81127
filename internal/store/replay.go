package store

import (
	"context"
	"fmt"

	"github.com/roach88/patchwire/internal/ir"
)

// Recording is a run's inputs and patch switches with the outputs each one
// produced. Outputs under cause seq 0 came from starting the run.
type Recording struct {
	Run      ir.Run
	Inputs   []ir.TraceEvent
	Switches []ir.PatchSwitch
	Outputs  map[int64][]ir.TraceEvent // keyed by cause seq
}

// ReadInputs returns the input events of a run in seq order.
func (s *Store) ReadInputs(ctx context.Context, runID string) ([]ir.TraceEvent, error) {
	return s.QueryEvents(ctx, EventQuery{RunID: runID, Direction: ir.DirectionIn})
}

// ReadRecording loads everything needed to replay a run.
func (s *Store) ReadRecording(ctx context.Context, runID string) (Recording, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return Recording{}, fmt.Errorf("read recording %s: %w", runID, err)
	}

	trace, err := s.ReadTrace(ctx, runID)
	if err != nil {
		return Recording{}, fmt.Errorf("read recording %s: %w", runID, err)
	}

	switches, err := s.ReadPatchSwitches(ctx, runID)
	if err != nil {
		return Recording{}, fmt.Errorf("read recording %s: %w", runID, err)
	}

	rec := Recording{
		Run:      run,
		Inputs:   []ir.TraceEvent{},
		Switches: switches,
		Outputs:  make(map[int64][]ir.TraceEvent),
	}
	for _, ev := range trace {
		switch ev.Direction {
		case ir.DirectionIn:
			rec.Inputs = append(rec.Inputs, ev)
		case ir.DirectionOut:
			rec.Outputs[ev.CauseSeq] = append(rec.Outputs[ev.CauseSeq], ev)
		}
	}
	return rec, nil
}
