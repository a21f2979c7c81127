package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwire/internal/ir"
)

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(t.Context(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)

	for _, id := range []string{"0190-b", "0190-a", "0190-c"} {
		require.NoError(t, s.WriteRun(ctx, testRun(id)))
	}
	runs, err = s.ListRuns(ctx)
	require.NoError(t, err)
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"0190-a", "0190-b", "0190-c"}, ids)
}

func TestReadTrace_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.WriteRun(ctx, testRun("r1")))

	for _, seq := range []int64{5, 2, 9, 1} {
		require.NoError(t, s.WriteEvent(ctx, *inEvent("r1", seq, 1, ir.NoteOn(0, 0, int(seq), 1))))
	}

	got, err := s.ReadTrace(ctx, "r1")
	require.NoError(t, err)
	var seqs []int64
	for _, ev := range got {
		seqs = append(seqs, ev.Seq)
	}
	assert.Equal(t, []int64{1, 2, 5, 9}, seqs)
}

func TestReadTrace_Empty(t *testing.T) {
	s := createTestStore(t)
	got, err := s.ReadTrace(t.Context(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestQueryEvents(t *testing.T) {
	s := createTestStore(t)
	seedTrace(t, s, "r1")
	seedTrace(t, s, "r2")

	patch2 := 2
	port1 := 1
	cause := int64(1)

	tests := []struct {
		name string
		q    EventQuery
		want []int64
	}{
		{"whole run", EventQuery{RunID: "r1"}, []int64{1, 2, 3, 4, 5}},
		{"inputs", EventQuery{RunID: "r1", Direction: ir.DirectionIn}, []int64{1, 4}},
		{"outputs", EventQuery{RunID: "r1", Direction: ir.DirectionOut}, []int64{2, 3, 5}},
		{"types", EventQuery{RunID: "r1", Types: []ir.EventType{ir.EventProgram, ir.EventCtrl}}, []int64{4, 5}},
		{"patch", EventQuery{RunID: "r1", Patch: &patch2}, []int64{5}},
		{"port", EventQuery{RunID: "r1", Port: &port1}, []int64{3}},
		{"cause", EventQuery{RunID: "r1", CauseSeq: &cause}, []int64{1, 2, 3}},
		{"seq window", EventQuery{RunID: "r1", FromSeq: 2, ToSeq: 4}, []int64{2, 3, 4}},
		{"open window", EventQuery{RunID: "r1", FromSeq: 4}, []int64{4, 5}},
		{"limit", EventQuery{RunID: "r1", Limit: 2}, []int64{1, 2}},
		{"other run", EventQuery{RunID: "r3"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QueryEvents(t.Context(), tt.q)
			require.NoError(t, err)
			var seqs []int64
			for _, ev := range got {
				assert.Equal(t, tt.q.RunID, ev.RunID)
				seqs = append(seqs, ev.Seq)
			}
			assert.Equal(t, tt.want, seqs)
		})
	}
}

func TestQueryEvents_RequiresRunID(t *testing.T) {
	s := createTestStore(t)
	_, err := s.QueryEvents(t.Context(), EventQuery{})
	assert.Error(t, err)
}

func TestLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	seq, err := s.LastSeq(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, seq)

	seedTrace(t, s, "r1")
	seq, err = s.LastSeq(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), seq)
}
