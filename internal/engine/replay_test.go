package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwire/internal/compiler"
	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/store"
	"github.com/roach88/patchwire/internal/units"
)

func recordSession(t *testing.T) store.Recording {
	t.Helper()
	st := openStore(t)
	runSession(t, New(st, newSetup(t, sceneSetup(t)), NewFixedGenerator("run-1")))

	rec, err := st.ReadRecording(t.Context(), "run-1")
	require.NoError(t, err)
	return rec
}

func TestReplay_Reproduces(t *testing.T) {
	rec := recordSession(t)

	res, err := Replay(t.Context(), newSetup(t, sceneSetup(t)), rec)
	require.NoError(t, err)
	assert.True(t, res.OK(), "divergences: %+v", res.Divergences)
	assert.False(t, res.SetupChanged)
	assert.Equal(t, "run-1", res.RunID)
	// Three inputs plus the external switch back to patch 1.
	assert.Equal(t, 4, res.Steps)
}

func TestReplay_ReportsDivergence(t *testing.T) {
	rec := recordSession(t)

	src := sceneSetup(t)
	body, err := compiler.Compile(units.Transpose(7))
	require.NoError(t, err)
	src.Patches[1].Body = body

	res, err := Replay(t.Context(), newSetup(t, src), rec)
	require.NoError(t, err)
	assert.True(t, res.SetupChanged)
	require.Len(t, res.Divergences, 1)

	d := res.Divergences[0]
	assert.Equal(t, int64(6), d.Seq)
	require.NotNil(t, d.Input)
	assert.True(t, ir.NoteOn(0, 0, 60, 100).Equal(*d.Input))
	requireEvents(t, []ir.Event{ir.NoteOn(0, 0, 72, 100)}, d.Want)
	requireEvents(t, []ir.Event{ir.NoteOn(0, 0, 67, 100)}, d.Got)
	assert.Empty(t, d.Error)
}

func TestReplay_FailedInputStillFails(t *testing.T) {
	st := openStore(t)
	e := New(st, newSetup(t, sceneSetup(t)), NewFixedGenerator("run-1"))
	e.Enqueue(ir.DummyEvent())
	e.Stop()
	require.NoError(t, e.Run(t.Context()))

	rec, err := st.ReadRecording(t.Context(), "run-1")
	require.NoError(t, err)

	res, err := Replay(t.Context(), newSetup(t, sceneSetup(t)), rec)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, 1, res.Steps)
}

func TestReplaySteps_MergesExternalSwitches(t *testing.T) {
	rec := store.Recording{
		Inputs: []ir.TraceEvent{
			{Seq: 1, Event: ir.NoteOn(0, 0, 60, 100)},
			{Seq: 5, Event: ir.ProgramChange(0, 0, 2)},
		},
		Switches: []ir.PatchSwitch{
			{Seq: 3, From: 1, To: 2},
			{Seq: 5, From: 2, To: 1},
		},
	}

	steps := replaySteps(rec)
	require.Len(t, steps, 3)
	assert.Equal(t, int64(1), steps[0].seq)
	assert.NotNil(t, steps[0].input)
	assert.Equal(t, int64(3), steps[1].seq)
	require.NotNil(t, steps[1].patchSwitch)
	assert.Equal(t, 2, steps[1].patchSwitch.To)
	assert.Equal(t, int64(5), steps[2].seq)
	assert.Nil(t, steps[2].patchSwitch, "switch caused by an input is replayed through the input")
}
