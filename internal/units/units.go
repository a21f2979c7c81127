// Package units provides the factory functions for every unit kind.
//
// Factories validate their arguments and return plain ir.Unit values. The
// graph compiler treats the result as opaque; runtime behavior lives in the
// engine package.
package units

import (
	"fmt"
	"slices"

	"github.com/roach88/patchwire/internal/ir"
)

// Key is a dispatch discriminant: a scalar (one element) or a tuple.
type Key []int

// K builds a Key from its elements.
func K(v ...int) Key {
	return Key(v)
}

// Spread turns a tuple into one scalar Key per element.
func (k Key) Spread() []Key {
	out := make([]Key, len(k))
	for i, v := range k {
		out[i] = Key{v}
	}
	return out
}

// Equal reports whether two keys hold the same elements.
func (k Key) Equal(o Key) bool {
	return slices.Equal(k, o)
}

func (k Key) String() string {
	if len(k) == 1 {
		return fmt.Sprint(k[0])
	}
	return fmt.Sprint([]int(k))
}

// ArgError reports an invalid factory argument.
type ArgError struct {
	Kind    ir.UnitKind
	Message string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func argErr(kind ir.UnitKind, format string, args ...any) error {
	return &ArgError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// flatten merges the elements of all keys into one value set.
func flatten(args []Key) []int {
	var out []int
	for _, k := range args {
		out = append(out, k...)
	}
	return out
}

func checkRange(kind ir.UnitKind, v, lo, hi int) error {
	if v < lo || v > hi {
		return argErr(kind, "value %d out of range [%d, %d]", v, lo, hi)
	}
	return nil
}

func checkAll(kind ir.UnitKind, values []int, lo, hi int) error {
	for _, v := range values {
		if err := checkRange(kind, v, lo, hi); err != nil {
			return err
		}
	}
	return nil
}

// setFilter builds a filter matching any of the given values.
func setFilter(kind ir.UnitKind, lo, hi int, args []Key) (ir.Unit, error) {
	values := flatten(args)
	if len(values) == 0 {
		return ir.Unit{}, argErr(kind, "at least one value is required")
	}
	if err := checkAll(kind, values, lo, hi); err != nil {
		return ir.Unit{}, err
	}
	return ir.Unit{Kind: kind, Params: ir.Params{Values: values}}, nil
}

// rangeFilter builds a filter from either one scalar (exact match), one
// tuple (value set) or two scalars (half-open range [lower, upper)).
func rangeFilter(kind ir.UnitKind, args []Key) (ir.Unit, error) {
	switch {
	case len(args) == 2 && len(args[0]) == 1 && len(args[1]) == 1:
		lower, upper := args[0][0], args[1][0]
		if err := checkRange(kind, lower, 0, 128); err != nil {
			return ir.Unit{}, err
		}
		if err := checkRange(kind, upper, 0, 128); err != nil {
			return ir.Unit{}, err
		}
		if upper < lower {
			return ir.Unit{}, argErr(kind, "upper bound %d below lower bound %d", upper, lower)
		}
		return ir.Unit{Kind: kind, Params: ir.Params{Lower: lower, Upper: upper, Ranged: true}}, nil
	case len(args) == 1:
		return setFilter(kind, 0, 127, args)
	default:
		return ir.Unit{}, argErr(kind, "expected a value, a value set, or lower and upper bounds")
	}
}

// TypeFilter passes only events of the given types.
func TypeFilter(types ...ir.EventType) (ir.Unit, error) {
	if len(types) == 0 {
		return ir.Unit{}, argErr(ir.KindTypeFilter, "at least one type is required")
	}
	for _, t := range types {
		if !t.Valid() {
			return ir.Unit{}, argErr(ir.KindTypeFilter, "unknown event type %q", t)
		}
	}
	return ir.Unit{Kind: ir.KindTypeFilter, Params: ir.Params{Types: slices.Clone(types)}}, nil
}

// PortFilter passes events on any of the given ports.
func PortFilter(ports ...Key) (ir.Unit, error) {
	return setFilter(ir.KindPortFilter, 0, 1<<16, ports)
}

// ChannelFilter passes events on any of the given channels.
func ChannelFilter(channels ...Key) (ir.Unit, error) {
	return setFilter(ir.KindChannelFilter, 0, 15, channels)
}

// KeyFilter filters note events by note number.
func KeyFilter(args ...Key) (ir.Unit, error) {
	return rangeFilter(ir.KindKeyFilter, args)
}

// VelocityFilter filters note-on events by velocity.
func VelocityFilter(args ...Key) (ir.Unit, error) {
	return rangeFilter(ir.KindVelocityFilter, args)
}

// CtrlFilter filters control changes by controller number.
func CtrlFilter(ctrls ...Key) (ir.Unit, error) {
	return setFilter(ir.KindCtrlFilter, 0, 127, ctrls)
}

// CtrlValueFilter filters control changes by value.
func CtrlValueFilter(args ...Key) (ir.Unit, error) {
	return rangeFilter(ir.KindCtrlValueFilter, args)
}

// ProgramFilter filters program changes by program number.
func ProgramFilter(programs ...Key) (ir.Unit, error) {
	return setFilter(ir.KindProgramFilter, 0, 127, programs)
}

// SysExFilter passes sysex messages starting with the given bytes. A
// leading F0 is added when missing.
func SysExFilter(args ...Key) (ir.Unit, error) {
	data := flatten(args)
	if len(data) == 0 {
		return ir.Unit{}, argErr(ir.KindSysExFilter, "a sysex prefix is required")
	}
	if err := checkAll(ir.KindSysExFilter, data, 0, 0xFF); err != nil {
		return ir.Unit{}, err
	}
	prefix := make([]byte, 0, len(data)+1)
	if data[0] != 0xF0 {
		prefix = append(prefix, 0xF0)
	}
	for _, b := range data {
		prefix = append(prefix, byte(b))
	}
	return ir.Unit{Kind: ir.KindSysExFilter, Params: ir.Params{Data: prefix}}, nil
}

// SysExManufacturer matches sysex messages from one manufacturer. The ID is
// either one byte or the three-byte extended form starting with 0x00.
func SysExManufacturer(args ...Key) (ir.Unit, error) {
	id := flatten(args)
	switch {
	case len(id) == 1 && id[0] != 0:
	case len(id) == 3 && id[0] == 0:
	default:
		return ir.Unit{}, argErr(ir.KindSysExFilter, "manufacturer id must be one byte or three bytes starting with 0x00, got %v", id)
	}
	return SysExFilter(Key(id))
}

// Port sets the output port.
func Port(port int) (ir.Unit, error) {
	if err := checkRange(ir.KindPort, port, 0, 1<<16); err != nil {
		return ir.Unit{}, err
	}
	return ir.Unit{Kind: ir.KindPort, Params: ir.Params{Amount: port}}, nil
}

// Channel sets the channel of channel events.
func Channel(channel int) (ir.Unit, error) {
	if err := checkRange(ir.KindChannel, channel, 0, 15); err != nil {
		return ir.Unit{}, err
	}
	return ir.Unit{Kind: ir.KindChannel, Params: ir.Params{Amount: channel}}, nil
}

// Transpose shifts note events by offset semitones.
func Transpose(offset int) ir.Unit {
	return ir.Unit{Kind: ir.KindTranspose, Params: ir.Params{Amount: offset}}
}

// Velocity changes note-on velocities.
func Velocity(value float64, mode ir.VelocityMode) (ir.Unit, error) {
	if mode < ir.VelocityOffset || mode > ir.VelocityCurve {
		return ir.Unit{}, argErr(ir.KindVelocity, "unknown velocity mode %d", mode)
	}
	if mode == ir.VelocityGamma && value <= 0 {
		return ir.Unit{}, argErr(ir.KindVelocity, "gamma must be positive, got %g", value)
	}
	return ir.Unit{Kind: ir.KindVelocity, Params: ir.Params{Factor: value, Mode: mode}}, nil
}

// CtrlMap renumbers controller from to controller to.
func CtrlMap(from, to int) (ir.Unit, error) {
	if err := checkAll(ir.KindCtrlMap, []int{from, to}, 0, 127); err != nil {
		return ir.Unit{}, err
	}
	return ir.Unit{Kind: ir.KindCtrlMap, Params: ir.Params{Values: []int{from, to}}}, nil
}

// CtrlRange linearly maps the values of ctrl from [inMin, inMax] onto
// [min, max].
func CtrlRange(ctrl, min, max, inMin, inMax int) (ir.Unit, error) {
	if err := checkRange(ir.KindCtrlRange, ctrl, 0, 127); err != nil {
		return ir.Unit{}, err
	}
	if inMin >= inMax {
		return ir.Unit{}, argErr(ir.KindCtrlRange, "input range [%d, %d] is empty", inMin, inMax)
	}
	return ir.Unit{Kind: ir.KindCtrlRange, Params: ir.Params{Values: []int{ctrl, min, max, inMin, inMax}}}, nil
}

func checkParam(kind ir.UnitKind, v, hi int) error {
	if v < ir.ParamData2 {
		return argErr(kind, "unknown parameter reference %d", v)
	}
	if v > hi {
		return argErr(kind, "value %d out of range [0, %d]", v, hi)
	}
	return nil
}

// Ctrl replaces the event with a control change. Either argument may be a
// parameter reference (ir.ParamPort ... ir.ParamData2).
func Ctrl(ctrl, value int) (ir.Unit, error) {
	if err := checkParam(ir.KindCtrl, ctrl, 127); err != nil {
		return ir.Unit{}, err
	}
	if err := checkParam(ir.KindCtrl, value, 127); err != nil {
		return ir.Unit{}, err
	}
	return ir.Unit{Kind: ir.KindCtrl, Params: ir.Params{Values: []int{ctrl, value}}}, nil
}

// SceneSwitch switches the active patch and consumes the event. The
// number may be a parameter reference, e.g. ir.ParamData2 to follow
// program changes.
func SceneSwitch(number int) (ir.Unit, error) {
	if err := checkParam(ir.KindSceneSwitch, number, 1<<16); err != nil {
		return ir.Unit{}, err
	}
	return ir.Unit{Kind: ir.KindSceneSwitch, Params: ir.Params{Amount: number}}, nil
}

// Pass forwards every event unchanged.
func Pass() ir.Unit {
	return ir.Unit{Kind: ir.KindPass}
}

// Discard drops every event.
func Discard() ir.Unit {
	return ir.Unit{Kind: ir.KindDiscard}
}

func handlerUnit(kind ir.UnitKind, name string) (ir.Unit, error) {
	if name == "" {
		return ir.Unit{}, argErr(kind, "handler name is required")
	}
	return ir.Unit{Kind: kind, Params: ir.Params{Handler: name}}, nil
}

// Process runs the named transform handler; its results replace the event.
func Process(handler string) (ir.Unit, error) {
	return handlerUnit(ir.KindProcess, handler)
}

// Call runs the named observer asynchronously on a copy of the event and
// passes the event on unchanged.
func Call(handler string) (ir.Unit, error) {
	return handlerUnit(ir.KindCall, handler)
}

// System runs a shell command asynchronously for every event and passes
// the event on unchanged.
func System(command string) (ir.Unit, error) {
	return handlerUnit(ir.KindSystem, command)
}
