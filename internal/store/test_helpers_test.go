package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/patchwire/internal/ir"
)

// createTestStore opens a store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// pragma reads the current value of a SQLite pragma.
func pragma(s *Store, name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}

func testRun(id string) ir.Run {
	return ir.Run{
		ID:            id,
		SetupHash:     "test-hash",
		Backend:       "dummy",
		ClientName:    "patchwire",
		EngineVersion: "0.1.0",
	}
}

func inEvent(runID string, seq int64, patch int, ev ir.Event) *ir.TraceEvent {
	return &ir.TraceEvent{RunID: runID, Seq: seq, CauseSeq: seq, Direction: ir.DirectionIn, Patch: patch, Event: ev}
}

func outEvent(runID string, seq, cause int64, patch int, ev ir.Event) ir.TraceEvent {
	return ir.TraceEvent{RunID: runID, Seq: seq, CauseSeq: cause, Direction: ir.DirectionOut, Patch: patch, Event: ev}
}

// seedTrace writes a small run: two inputs, three outputs, one switch.
func seedTrace(t *testing.T, s *Store, runID string) {
	t.Helper()
	ctx := t.Context()
	if err := s.WriteRun(ctx, testRun(runID)); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}

	steps := []Step{
		{
			Input: inEvent(runID, 1, 1, ir.NoteOn(0, 0, 60, 100)),
			Outputs: []ir.TraceEvent{
				outEvent(runID, 2, 1, 1, ir.NoteOn(0, 0, 72, 100)),
				outEvent(runID, 3, 1, 1, ir.NoteOn(1, 9, 60, 100)),
			},
		},
		{
			Input:   inEvent(runID, 4, 1, ir.ProgramChange(0, 0, 2)),
			Outputs: []ir.TraceEvent{outEvent(runID, 5, 4, 2, ir.CtrlChange(0, 0, 7, 100))},
			Switch:  &ir.PatchSwitch{RunID: runID, Seq: 4, From: 1, To: 2},
		},
	}
	for _, step := range steps {
		if err := s.WriteStep(ctx, step); err != nil {
			t.Fatalf("WriteStep() failed: %v", err)
		}
	}
}
