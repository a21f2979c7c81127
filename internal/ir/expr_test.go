package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChainOf(t *testing.T) {
	a := Unit{Kind: KindPass}
	b := Unit{Kind: KindDiscard}
	c := Unit{Kind: KindTranspose, Params: Params{Amount: 1}}

	assert.Nil(t, ChainOf())
	assert.Equal(t, a, ChainOf(a))
	assert.Equal(t, Chain{Left: Chain{Left: a, Right: b}, Right: c}, ChainOf(a, b, c))
}

func TestInvertIsInvolution(t *testing.T) {
	f := Unit{Kind: KindKeyFilter, Params: Params{Lower: 0, Upper: 60, Ranged: true}}

	assert.True(t, f.Invert().Negated)
	assert.Equal(t, f, f.Invert().Invert())
}

func TestInvertDoesNotAlias(t *testing.T) {
	f := Unit{Kind: KindPortFilter, Params: Params{Values: []int{1, 2}}}
	g := f.Invert()
	g.Params.Values[0] = 9

	assert.Equal(t, []int{1, 2}, f.Params.Values)
}

func TestUnitKindCategories(t *testing.T) {
	assert.True(t, KindKeyFilter.IsFilter())
	assert.False(t, KindTranspose.IsFilter())
	assert.True(t, KindTranspose.Valid())
	assert.False(t, UnitKind("bogus").Valid())
	assert.Len(t, UnitKinds(), len(filterKinds)+len(otherKinds))
}

func TestFormatExpr(t *testing.T) {
	f := Unit{Kind: KindKeyFilter, Params: Params{Lower: 0, Upper: 60, Ranged: true}}
	tr := Unit{Kind: KindTranspose, Params: Params{Amount: 12}}
	e := Then(f, ForkOf(tr, Unit{Kind: KindPass}))

	assert.Equal(t, "key_filter[0,60) >> [transpose(12), pass]", FormatExpr(e))
	assert.Equal(t, "~key_filter[0,60)", FormatUnit(f.Invert()))
	assert.Equal(t, "<nil>", FormatExpr(nil))
}

func TestEventCloneAndEqual(t *testing.T) {
	ev := SysExEvent(0, []byte{0xF0, 0x7E, 0xF7})
	cp := ev.Clone()
	cp.SysEx[1] = 0x7F

	assert.Equal(t, byte(0x7E), ev.SysEx[1])
	assert.False(t, ev.Equal(cp))
	assert.True(t, NoteOn(0, 0, 60, 100).Equal(NoteOn(0, 0, 60, 100)))
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "note_on port=0 ch=1 note=60 vel=100", NoteOn(0, 1, 60, 100).String())
	assert.Equal(t, "program port=0 ch=0 program=5", ProgramChange(0, 0, 5).String())
}
