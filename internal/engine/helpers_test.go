package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwire/internal/compiler"
	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/store"
	"github.com/roach88/patchwire/internal/units"
)

func must(u ir.Unit, err error) ir.Unit {
	if err != nil {
		panic(err)
	}
	return u
}

func compile(t *testing.T, e ir.Expr) *ir.Patch {
	t.Helper()
	p, err := compiler.Compile(e)
	require.NoError(t, err)
	return p
}

// sceneSetup builds a two-patch setup: patch 1 passes everything, patch 2
// transposes up an octave and sends ctrl 7 on entry. Program changes on
// the control patch select the patch.
func sceneSetup(t *testing.T) *ir.Setup {
	t.Helper()
	return &ir.Setup{
		Config: ir.DefaultConfig(),
		Patches: []ir.PatchEntry{
			{Number: 1, Body: compile(t, units.Pass())},
			{
				Number: 2,
				Init:   compile(t, must(units.Ctrl(7, 100))),
				Body:   compile(t, units.Transpose(12)),
			},
		},
		Control: compile(t, ir.ChainOf(
			must(units.TypeFilter(ir.EventProgram)),
			must(units.SceneSwitch(ir.ParamData2)),
		)),
	}
}

func newSetup(t *testing.T, src *ir.Setup, opts ...Option) *Setup {
	t.Helper()
	s, err := NewSetup(src, opts...)
	require.NoError(t, err)
	return s
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func requireEvents(t *testing.T, want, got []ir.Event) {
	t.Helper()
	require.Len(t, got, len(want), "got %v", got)
	for i := range want {
		require.True(t, want[i].Equal(got[i]), "event %d: want %s, got %s", i, want[i], got[i])
	}
}
