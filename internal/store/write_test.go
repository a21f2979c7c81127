package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwire/internal/ir"
)

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.WriteRun(ctx, testRun("r1")))
	second := testRun("r1")
	second.SetupHash = "other"
	require.NoError(t, s.WriteRun(ctx, second))

	run, err := s.ReadRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "test-hash", run.SetupHash, "first record wins")
}

func TestWriteEvent_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.WriteRun(ctx, testRun("r1")))

	written := []ir.TraceEvent{
		*inEvent("r1", 1, 3, ir.NoteOn(1, 9, 36, 127)),
		outEvent("r1", 2, 1, 3, ir.SysExEvent(0, []byte{0xF0, 0x43, 0x10, 0xF7})),
		outEvent("r1", 3, 1, 3, ir.Event{Port: 0, Channel: 2, Type: ir.EventPitchBend, Data2: -8192}),
	}
	for _, ev := range written {
		require.NoError(t, s.WriteEvent(ctx, ev))
	}

	got, err := s.ReadTrace(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, written[0], got[0])
	assert.Equal(t, written[1], got[1])
	assert.Nil(t, got[0].Event.SysEx, "non-sysex events store NULL")
	assert.Equal(t, -8192, got[2].Event.Data2)
}

func TestWriteEvent_DuplicateSeqIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.WriteRun(ctx, testRun("r1")))

	require.NoError(t, s.WriteEvent(ctx, *inEvent("r1", 1, 1, ir.NoteOn(0, 0, 60, 1))))
	require.NoError(t, s.WriteEvent(ctx, *inEvent("r1", 1, 1, ir.NoteOn(0, 0, 61, 1))))

	got, err := s.ReadTrace(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 60, got[0].Event.Note())
}

func TestWriteEvent_UnknownRun(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteEvent(t.Context(), *inEvent("nope", 1, 1, ir.NoteOn(0, 0, 60, 1)))
	assert.Error(t, err)
}

func TestWriteStep_Atomic(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.WriteRun(ctx, testRun("r1")))

	// The second output names a run that does not exist, so the whole
	// step must roll back.
	err := s.WriteStep(ctx, Step{
		Input: inEvent("r1", 1, 1, ir.NoteOn(0, 0, 60, 100)),
		Outputs: []ir.TraceEvent{
			outEvent("r1", 2, 1, 1, ir.NoteOn(0, 0, 60, 100)),
			outEvent("ghost", 3, 1, 1, ir.NoteOn(0, 0, 60, 100)),
		},
	})
	require.Error(t, err)

	got, err := s.ReadTrace(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteStep_WithSwitch(t *testing.T) {
	s := createTestStore(t)
	seedTrace(t, s, "r1")

	switches, err := s.ReadPatchSwitches(t.Context(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []ir.PatchSwitch{{RunID: "r1", Seq: 4, From: 1, To: 2}}, switches)
}

func TestWriteStep_SwitchWithoutInput(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.WriteRun(ctx, testRun("r1")))

	require.NoError(t, s.WriteStep(ctx, Step{
		Outputs: []ir.TraceEvent{outEvent("r1", 2, 1, 3, ir.CtrlChange(0, 0, 7, 90))},
		Switch:  &ir.PatchSwitch{RunID: "r1", Seq: 1, From: 1, To: 3},
	}))

	inputs, err := s.ReadInputs(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, inputs)

	switches, err := s.ReadPatchSwitches(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, switches, 1)
	assert.Equal(t, 3, switches[0].To)
}
