package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoUnitPatch builds Input -> a -> b -> Output by hand.
func twoUnitPatch(a, b Unit) *Patch {
	return &Patch{
		Input:  InputID,
		Output: OutputID,
		Modules: []Module{
			{ID: 0, Kind: ModuleInput, Next: []int{2}},
			{ID: 1, Kind: ModuleOutput},
			{ID: 2, Kind: ModuleUnit, Unit: &a, Next: []int{3}},
			{ID: 3, Kind: ModuleUnit, Unit: &b, Next: []int{1}},
		},
	}
}

func TestPatchHashDeterminism(t *testing.T) {
	a := Unit{Kind: KindChannelFilter, Params: Params{Values: []int{0}}}
	b := Unit{Kind: KindTranspose, Params: Params{Amount: 12}}

	h1, err := PatchHash(twoUnitPatch(a, b))
	require.NoError(t, err)
	h2, err := PatchHash(twoUnitPatch(a, b))
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestPatchHashChangesWithUnits(t *testing.T) {
	a := Unit{Kind: KindChannelFilter, Params: Params{Values: []int{0}}}
	b := Unit{Kind: KindTranspose, Params: Params{Amount: 12}}
	c := Unit{Kind: KindTranspose, Params: Params{Amount: -12}}

	base := MustPatchHash(twoUnitPatch(a, b))
	assert.NotEqual(t, base, MustPatchHash(twoUnitPatch(a, c)), "different params")
	assert.NotEqual(t, base, MustPatchHash(twoUnitPatch(a.Invert(), b)), "negation")
	assert.NotEqual(t, base, MustPatchHash(twoUnitPatch(b, a)), "order")
}

func TestPatchHashNil(t *testing.T) {
	_, err := PatchHash(nil)
	require.Error(t, err)
}

func TestSetupHash(t *testing.T) {
	a := Unit{Kind: KindPass}
	p := twoUnitPatch(a, a)
	one := 1

	s1 := &Setup{Config: DefaultConfig(), Patches: []PatchEntry{{Number: 1, Body: p}}, DefaultPatch: &one}
	s2 := &Setup{Config: DefaultConfig(), Patches: []PatchEntry{{Number: 1, Body: p}}, DefaultPatch: &one}

	h1, err := SetupHash(s1)
	require.NoError(t, err)
	h2, err := SetupHash(s2)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	s2.Config.Backend = BackendJackRT
	h3, err := SetupHash(s2)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3, "backend is part of the fingerprint")

	s2.Config.Backend = BackendDummy
	s2.Pre = p
	h4, err := SetupHash(s2)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h4, "pre patch is part of the fingerprint")
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain(DomainPatch, data), hashWithDomain(DomainSetup, data))
}
