package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwire/internal/ir"
)

func TestCompileEventQuery(t *testing.T) {
	port := 2
	sql, params, err := compileEventQuery(EventQuery{
		RunID:     "r1",
		Direction: ir.DirectionOut,
		Types:     []ir.EventType{ir.EventNoteOn, ir.EventNoteOff},
		Port:      &port,
		Limit:     10,
	})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT "+eventSelectColumns+" FROM events WHERE run_id = ? AND direction = ? AND type IN (?, ?) AND port = ? ORDER BY seq ASC LIMIT ?",
		sql)
	assert.Equal(t, []any{"r1", "out", "note_on", "note_off", int64(2), 10}, params)
}

func TestCompileEventQuery_AlwaysOrdered(t *testing.T) {
	sql, _, err := compileEventQuery(EventQuery{RunID: "r1"})
	require.NoError(t, err)
	assert.Contains(t, sql, "ORDER BY seq ASC")
}

func TestCompilePredicate_NeverInterpolates(t *testing.T) {
	sql, params, err := compilePredicate(Equals{Field: "type", Value: "x'; DROP TABLE events; --"})
	require.NoError(t, err)
	assert.Equal(t, "type = ?", sql)
	assert.Equal(t, []any{"x'; DROP TABLE events; --"}, params)
}

func TestCompilePredicate_Edges(t *testing.T) {
	sql, params, err := compilePredicate(And{})
	require.NoError(t, err)
	assert.Equal(t, "1 = 1", sql)
	assert.Empty(t, params)

	sql, _, err = compilePredicate(In{Field: "port"})
	require.NoError(t, err)
	assert.Equal(t, "1 = 0", sql)

	sql, params, err = compilePredicate(And{Predicates: []Predicate{
		Equals{Field: "patch", Value: int64(1)},
		And{Predicates: []Predicate{Between{Field: "seq", Min: 1, Max: 3}}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "patch = ? AND (seq BETWEEN ? AND ?)", sql)
	assert.Equal(t, []any{int64(1), int64(1), int64(3)}, params)
}

func TestCompilePredicate_UnknownColumn(t *testing.T) {
	_, _, err := compilePredicate(Equals{Field: "1=1 OR seq", Value: 1})
	assert.Error(t, err)

	_, _, err = compilePredicate(nil)
	assert.Error(t, err)
}
