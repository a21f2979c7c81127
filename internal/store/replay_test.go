package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwire/internal/ir"
)

func TestReadInputs(t *testing.T) {
	s := createTestStore(t)
	seedTrace(t, s, "r1")

	inputs, err := s.ReadInputs(t.Context(), "r1")
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, ir.EventNoteOn, inputs[0].Event.Type)
	assert.Equal(t, ir.EventProgram, inputs[1].Event.Type)
	for _, in := range inputs {
		assert.Equal(t, ir.DirectionIn, in.Direction)
	}
}

func TestReadRecording(t *testing.T) {
	s := createTestStore(t)
	seedTrace(t, s, "r1")

	rec, err := s.ReadRecording(t.Context(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.Run.ID)
	assert.Len(t, rec.Inputs, 2)
	assert.Len(t, rec.Outputs[1], 2)
	assert.Len(t, rec.Outputs[4], 1)
	assert.Len(t, rec.Switches, 1)
	assert.Equal(t, 72, rec.Outputs[1][0].Event.Note())
}

func TestReadRecording_UnknownRun(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRecording(t.Context(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
