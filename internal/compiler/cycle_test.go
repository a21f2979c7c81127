package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwire/internal/ir"
)

// handPatch builds a patch whose unit modules have the given successors.
// Modules 0 and 1 are Input and Output.
func handPatch(inputNext []int, next ...[]int) *ir.Patch {
	p := &ir.Patch{
		Input:  ir.InputID,
		Output: ir.OutputID,
		Modules: []ir.Module{
			{ID: 0, Kind: ir.ModuleInput, Next: inputNext},
			{ID: 1, Kind: ir.ModuleOutput},
		},
	}
	for i, n := range next {
		u := passUnit()
		p.Modules = append(p.Modules, ir.Module{ID: i + 2, Kind: ir.ModuleUnit, Unit: &u, Next: n})
	}
	return p
}

func passUnit() ir.Unit {
	return ir.Unit{Kind: ir.KindPass}
}

func TestAnalyzeCyclesEmpty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
	assert.Empty(t, AnalyzeCycles(&ir.Patch{}))
}

func TestAnalyzeCyclesCompiledPatchIsAcyclic(t *testing.T) {
	p, err := Compile(ir.Then(ir.ForkOf(tr(1), tr(2)), ir.ForkOf(tr(3), tr(4))))
	require.NoError(t, err)
	assert.Empty(t, AnalyzeCycles(p))
}

func TestAnalyzeCyclesSelfLoop(t *testing.T) {
	p := handPatch([]int{2}, []int{2, 1})

	warnings := AnalyzeCycles(p)
	require.Len(t, warnings, 1)
	assert.Equal(t, []int{2, 2}, warnings[0].Path)
	assert.Equal(t, "module 2 feeds itself", warnings[0].Message)
	assert.Equal(t, "error", warnings[0].Level)
}

func TestAnalyzeCyclesThreeNodes(t *testing.T) {
	p := handPatch([]int{2}, []int{3}, []int{4}, []int{2, 1})

	warnings := AnalyzeCycles(p)
	require.Len(t, warnings, 1)
	assert.Equal(t, []int{2, 3, 4, 2}, warnings[0].Path)
	assert.Equal(t, "cycle through modules 2 -> 3 -> 4 -> 2", warnings[0].Message)
}

func TestAnalyzeCyclesMultipleOrdered(t *testing.T) {
	// 4 <-> 5 and 2 <-> 3, reported by lowest module ID.
	p := handPatch([]int{2, 4}, []int{3}, []int{2, 1}, []int{5}, []int{4, 1})

	warnings := AnalyzeCycles(p)
	require.Len(t, warnings, 2)
	assert.Equal(t, 2, warnings[0].Path[0])
	assert.Equal(t, 4, warnings[1].Path[0])
}

func TestTarjanSCCSingletons(t *testing.T) {
	p := handPatch([]int{2}, []int{3}, []int{1})
	sccs := tarjanSCC(p)
	assert.Len(t, sccs, 4)
	for _, scc := range sccs {
		assert.Len(t, scc, 1)
	}
}

func TestReconstructCyclePathEmpty(t *testing.T) {
	assert.Empty(t, reconstructCyclePath(&ir.Patch{}, nil))
}
