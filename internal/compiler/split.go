package compiler

import (
	"fmt"

	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/units"
)

// FilterFunc constructs a filter unit from dispatch key arguments. The
// filter factories in package units all have this shape.
type FilterFunc func(args ...units.Key) (ir.Unit, error)

// Case is one positive entry of a dispatch table.
type Case struct {
	Key   units.Key
	Patch ir.Expr
}

// Table maps keys to sub-expressions. Default is the else branch and may
// be nil.
type Table struct {
	Cases   []Case
	Default ir.Expr
}

// BuildSplit expands a dispatch table into
//
//	[f(k1) >> p1, f(k2) >> p2, ..., ~f(k1) >> ~f(k2) >> ... >> default]
//
// With unpack set, each key's elements are passed as separate arguments to
// makeFilter; otherwise the key is passed as one value.
func BuildSplit(makeFilter FilterFunc, table Table, unpack bool) (ir.Expr, error) {
	for i, c := range table.Cases {
		for j := range i {
			if table.Cases[j].Key.Equal(c.Key) {
				return nil, &CompileError{
					Field:   fmt.Sprintf("cases[%d].key", i),
					Message: fmt.Sprintf("key %s already used by cases[%d]", c.Key, j),
					Err:     ErrDuplicateDispatchKey,
				}
			}
		}
	}

	filter := func(i int) (ir.Unit, error) {
		key := table.Cases[i].Key
		var (
			u   ir.Unit
			err error
		)
		if unpack {
			u, err = makeFilter(key.Spread()...)
		} else {
			u, err = makeFilter(key)
		}
		if err != nil {
			return ir.Unit{}, &CompileError{
				Field:   fmt.Sprintf("cases[%d].key", i),
				Message: err.Error(),
				Err:     fmt.Errorf("%w: %w", ErrInvalidExpression, err),
			}
		}
		if !u.IsFilter() {
			return ir.Unit{}, invalidExpr(fmt.Sprintf("cases[%d].key", i), "%s is not a filter", u.Kind)
		}
		return u, nil
	}

	fork := ir.Fork{Items: make([]ir.Expr, 0, len(table.Cases)+1)}
	for i, c := range table.Cases {
		f, err := filter(i)
		if err != nil {
			return nil, err
		}
		fork.Items = append(fork.Items, ir.Then(f, c.Patch))
	}

	if table.Default != nil {
		if len(table.Cases) == 0 {
			fork.Items = append(fork.Items, table.Default)
			return fork, nil
		}
		negated := make([]ir.Expr, len(table.Cases))
		for i := range table.Cases {
			f, err := filter(i)
			if err != nil {
				return nil, err
			}
			negated[i] = f.Invert()
		}
		fork.Items = append(fork.Items, ir.Then(ir.ChainOf(negated...), table.Default))
	}

	return fork, nil
}

// BuildThreshold returns [f >> lower, ~f >> upper].
func BuildThreshold(f ir.Unit, lower, upper ir.Expr) (ir.Expr, error) {
	if !f.IsFilter() {
		return nil, invalidExpr("threshold", "%s is not a filter", f.Kind)
	}
	return ir.ForkOf(
		ir.Then(f, lower),
		ir.Then(f.Invert(), upper),
	), nil
}

func threshold(makeFilter FilterFunc, at int, lower, upper ir.Expr) (ir.Expr, error) {
	f, err := makeFilter(units.K(0), units.K(at))
	if err != nil {
		return nil, &CompileError{
			Field:   "threshold",
			Message: err.Error(),
			Err:     fmt.Errorf("%w: %w", ErrInvalidExpression, err),
		}
	}
	return BuildThreshold(f, lower, upper)
}

// PortSplit dispatches events by input port.
func PortSplit(t Table) (ir.Expr, error) {
	return BuildSplit(units.PortFilter, t, false)
}

// ChannelSplit dispatches channel messages by channel. Events without a
// channel pass every branch.
func ChannelSplit(t Table) (ir.Expr, error) {
	return BuildSplit(units.ChannelFilter, t, false)
}

// KeySplit dispatches note events by note number. A two-element key is a
// [lower, upper) range, a one-element key a single note.
func KeySplit(t Table) (ir.Expr, error) {
	return BuildSplit(units.KeyFilter, t, true)
}

// KeyThreshold sends notes below note to lower and the rest to upper.
func KeyThreshold(note int, lower, upper ir.Expr) (ir.Expr, error) {
	return threshold(units.KeyFilter, note, lower, upper)
}

// VelocitySplit dispatches note-on events by velocity. Keys are ranges
// as in KeySplit.
func VelocitySplit(t Table) (ir.Expr, error) {
	return BuildSplit(units.VelocityFilter, t, true)
}

// VelocityThreshold sends note-ons softer than velocity to lower and the
// rest to upper.
func VelocityThreshold(velocity int, lower, upper ir.Expr) (ir.Expr, error) {
	return threshold(units.VelocityFilter, velocity, lower, upper)
}

// CtrlSplit dispatches control changes by controller number.
func CtrlSplit(t Table) (ir.Expr, error) {
	return BuildSplit(units.CtrlFilter, t, false)
}

// CtrlValueSplit dispatches control changes by value range.
func CtrlValueSplit(t Table) (ir.Expr, error) {
	return BuildSplit(units.CtrlValueFilter, t, true)
}

// CtrlValueThreshold sends control changes with a value below value to
// lower and the rest to upper.
func CtrlValueThreshold(value int, lower, upper ir.Expr) (ir.Expr, error) {
	return threshold(units.CtrlValueFilter, value, lower, upper)
}

// ProgramSplit dispatches program changes by program number.
func ProgramSplit(t Table) (ir.Expr, error) {
	return BuildSplit(units.ProgramFilter, t, false)
}

// SysExSplit dispatches sysex messages by byte prefix.
func SysExSplit(t Table) (ir.Expr, error) {
	return BuildSplit(units.SysExFilter, t, false)
}

// SysExManufacturerSplit dispatches sysex messages by manufacturer ID.
func SysExManufacturerSplit(t Table) (ir.Expr, error) {
	return BuildSplit(units.SysExManufacturer, t, false)
}

// Splits maps the split names accepted in CUE to their builders.
var Splits = map[string]func(Table) (ir.Expr, error){
	"port":               PortSplit,
	"channel":            ChannelSplit,
	"key":                KeySplit,
	"velocity":           VelocitySplit,
	"ctrl":               CtrlSplit,
	"ctrl_value":         CtrlValueSplit,
	"program":            ProgramSplit,
	"sysex":              SysExSplit,
	"sysex_manufacturer": SysExManufacturerSplit,
}

// Thresholds maps the threshold names accepted in CUE to their builders.
var Thresholds = map[string]func(int, ir.Expr, ir.Expr) (ir.Expr, error){
	"key":        KeyThreshold,
	"velocity":   VelocityThreshold,
	"ctrl_value": CtrlValueThreshold,
}
