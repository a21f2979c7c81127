package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/units"
)

var (
	pass    = units.Pass()
	discard = units.Discard()
)

func TestKeySplitWithDefault(t *testing.T) {
	e, err := KeySplit(Table{
		Cases: []Case{
			{Key: units.K(0, 60), Patch: tr(12)},
			{Key: units.K(60, 128), Patch: pass},
		},
		Default: discard,
	})
	require.NoError(t, err)

	assert.Equal(t,
		"[key_filter[0,60) >> transpose(12), key_filter[60,128) >> pass, ~key_filter[0,60) >> ~key_filter[60,128) >> discard]",
		ir.FormatExpr(e))

	p, err := Compile(e)
	require.NoError(t, err)
	assert.Equal(t, 2+2+2+1, p.UnitCount(), "else branch gets fresh negated filters")
}

func TestChannelSplitKeepsTupleAsSet(t *testing.T) {
	e, err := ChannelSplit(Table{Cases: []Case{{Key: units.K(0, 1), Patch: pass}}})
	require.NoError(t, err)
	assert.Equal(t, "[channel_filter[0 1] >> pass]", ir.FormatExpr(e))
}

func TestSplitWithoutDefault(t *testing.T) {
	e, err := ProgramSplit(Table{Cases: []Case{
		{Key: units.K(1), Patch: tr(1)},
		{Key: units.K(2), Patch: tr(2)},
	}})
	require.NoError(t, err)
	fork, ok := e.(ir.Fork)
	require.True(t, ok)
	assert.Len(t, fork.Items, 2)
}

func TestSplitEmptyTable(t *testing.T) {
	e, err := PortSplit(Table{})
	require.NoError(t, err)
	p, err := Compile(e)
	require.NoError(t, err)
	assert.Zero(t, p.UnitCount())
	assert.Zero(t, p.EdgeCount())

	e, err = PortSplit(Table{Default: tr(3)})
	require.NoError(t, err)
	assert.Equal(t, "[transpose(3)]", ir.FormatExpr(e), "default alone")
}

func TestSplitDuplicateKey(t *testing.T) {
	e, err := CtrlSplit(Table{Cases: []Case{
		{Key: units.K(7), Patch: pass},
		{Key: units.K(1), Patch: pass},
		{Key: units.K(7), Patch: discard},
	}})
	require.Error(t, err)
	assert.Nil(t, e)
	assert.ErrorIs(t, err, ErrDuplicateDispatchKey)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "cases[2].key", ce.Field)
}

func TestSplitFactoryError(t *testing.T) {
	_, err := ChannelSplit(Table{Cases: []Case{{Key: units.K(16), Patch: pass}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidExpression)

	var argErr *units.ArgError
	assert.True(t, errors.As(err, &argErr))
}

func TestBuildSplitRejectsNonFilter(t *testing.T) {
	notFilter := func(args ...units.Key) (ir.Unit, error) { return units.Transpose(1), nil }
	_, err := BuildSplit(notFilter, Table{Cases: []Case{{Key: units.K(1), Patch: pass}}}, false)
	assert.ErrorIs(t, err, ErrInvalidExpression)
}

func TestBuildSplitUnpack(t *testing.T) {
	var got [][]units.Key
	record := func(args ...units.Key) (ir.Unit, error) {
		got = append(got, args)
		return units.KeyFilter(args...)
	}

	_, err := BuildSplit(record, Table{Cases: []Case{{Key: units.K(10, 20), Patch: pass}}}, true)
	require.NoError(t, err)
	assert.Equal(t, [][]units.Key{{units.K(10), units.K(20)}}, got)

	got = nil
	_, err = BuildSplit(record, Table{Cases: []Case{{Key: units.K(10, 20), Patch: pass}}}, false)
	require.NoError(t, err)
	assert.Equal(t, [][]units.Key{{units.K(10, 20)}}, got)
}

func TestThresholds(t *testing.T) {
	e, err := KeyThreshold(60, tr(-12), tr(12))
	require.NoError(t, err)
	assert.Equal(t, "[key_filter[0,60) >> transpose(-12), ~key_filter[0,60) >> transpose(12)]", ir.FormatExpr(e))

	e, err = VelocityThreshold(100, pass, discard)
	require.NoError(t, err)
	assert.Equal(t, "[velocity_filter[0,100) >> pass, ~velocity_filter[0,100) >> discard]", ir.FormatExpr(e))

	_, err = CtrlValueThreshold(200, pass, discard)
	assert.ErrorIs(t, err, ErrInvalidExpression)
}

func TestBuildThresholdRequiresFilter(t *testing.T) {
	_, err := BuildThreshold(tr(1), pass, discard)
	assert.ErrorIs(t, err, ErrInvalidExpression)
}

func TestSysExManufacturerSplit(t *testing.T) {
	e, err := SysExManufacturerSplit(Table{Cases: []Case{{Key: units.K(0x43), Patch: pass}}})
	require.NoError(t, err)
	assert.Equal(t, "[sysex_filter(F0 43) >> pass]", ir.FormatExpr(e))
}
