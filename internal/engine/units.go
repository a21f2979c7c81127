package engine

import (
	"bytes"
	"math"
	"slices"

	"github.com/roach88/patchwire/internal/ir"
)

// filterPasses reports whether a filter lets ev through. Events the filter
// does not inspect pass unchanged, whether or not it is negated.
func filterPasses(u *ir.Unit, ev ir.Event) bool {
	match, relevant := filterMatch(u, ev)
	if !relevant {
		return true
	}
	return match != u.Negated
}

func filterMatch(u *ir.Unit, ev ir.Event) (match, relevant bool) {
	p := &u.Params
	if u.Kind == ir.KindTypeFilter {
		return slices.Contains(p.Types, ev.Type), true
	}
	if ev.Type == ir.EventDummy {
		return false, false
	}

	switch u.Kind {
	case ir.KindPortFilter:
		return slices.Contains(p.Values, ev.Port), true
	case ir.KindChannelFilter:
		if !ev.Type.HasChannel() {
			return false, false
		}
		return slices.Contains(p.Values, ev.Channel), true
	case ir.KindKeyFilter:
		if !ev.Type.IsNote() {
			return false, false
		}
		return inRange(p, ev.Note()), true
	case ir.KindVelocityFilter:
		if ev.Type != ir.EventNoteOn {
			return false, false
		}
		return inRange(p, ev.Velocity()), true
	case ir.KindCtrlFilter:
		if ev.Type != ir.EventCtrl {
			return false, false
		}
		return slices.Contains(p.Values, ev.Ctrl()), true
	case ir.KindCtrlValueFilter:
		if ev.Type != ir.EventCtrl {
			return false, false
		}
		return inRange(p, ev.Value()), true
	case ir.KindProgramFilter:
		if ev.Type != ir.EventProgram {
			return false, false
		}
		return slices.Contains(p.Values, ev.Program()), true
	case ir.KindSysExFilter:
		if ev.Type != ir.EventSysEx {
			return false, false
		}
		return bytes.HasPrefix(ev.SysEx, p.Data), true
	}
	return false, false
}

// inRange matches [Lower, Upper) for ranged filters, set membership otherwise.
func inRange(p *ir.Params, v int) bool {
	if p.Ranged {
		return v >= p.Lower && v < p.Upper
	}
	return slices.Contains(p.Values, v)
}

// modify applies a modifier unit. ok is false when the result is not a
// valid event and must be dropped.
func modify(u *ir.Unit, ev ir.Event) (out ir.Event, ok bool) {
	p := &u.Params
	switch u.Kind {
	case ir.KindPort:
		ev.Port = p.Amount
	case ir.KindChannel:
		if ev.Type != ir.EventSysEx {
			ev.Channel = p.Amount
		}
	case ir.KindTranspose:
		if ev.Type.IsNote() {
			ev.Data1 += p.Amount
			if ev.Data1 < 0 || ev.Data1 > 127 {
				return ev, false
			}
		}
	case ir.KindVelocity:
		if ev.Type == ir.EventNoteOn {
			ev.Data2 = clamp(applyVelocity(ev.Data2, p.Factor, p.Mode), 0, 127)
		}
	case ir.KindCtrlMap:
		if ev.Type == ir.EventCtrl && len(p.Values) == 2 && ev.Data1 == p.Values[0] {
			ev.Data1 = p.Values[1]
		}
	case ir.KindCtrlRange:
		v := p.Values
		if ev.Type == ir.EventCtrl && len(v) == 5 && ev.Data1 == v[0] {
			ev.Data2 = mapRange(ev.Data2, v[3], v[4], v[1], v[2])
		}
	}
	return ev, true
}

// applyVelocity computes a new note-on velocity. Velocity 0 stays 0 in
// every mode.
func applyVelocity(velocity int, value float64, mode ir.VelocityMode) int {
	if velocity == 0 {
		return 0
	}

	switch mode {
	case ir.VelocityOffset:
		return velocity + int(value)
	case ir.VelocityMultiply:
		return int(float64(velocity) * value)
	case ir.VelocityFixed:
		return int(value)
	case ir.VelocityGamma:
		if velocity < 0 {
			return velocity
		}
		b := math.Pow(float64(velocity)/127, 1/value)
		return max(1, int(math.RoundToEven(b*127)))
	case ir.VelocityCurve:
		if velocity < 0 {
			return 0
		}
		if value == 0 {
			return velocity
		}
		a := math.Exp(-value*float64(velocity)/127) - 1
		b := math.Exp(-value) - 1
		return max(1, int(127*a/b))
	default:
		return 0
	}
}

// mapRange maps arg from [argLower, argUpper] onto [valLower, valUpper],
// clamping outside the input range.
func mapRange(arg, argLower, argUpper, valLower, valUpper int) int {
	switch {
	case arg <= argLower:
		return valLower
	case arg >= argUpper:
		return valUpper
	}
	dx := float64(argUpper - argLower)
	dy := float64(valUpper - valLower)
	return int(dy/dx*float64(arg-argLower) + float64(valLower))
}

// parameter resolves a generator argument. Negative values refer to
// fields of the event being processed.
func parameter(v int, ev ir.Event) int {
	switch v {
	case ir.ParamPort:
		return ev.Port
	case ir.ParamChannel:
		return ev.Channel
	case ir.ParamData1:
		return ev.Data1
	case ir.ParamData2:
		return ev.Data2
	}
	return v
}

// generateCtrl replaces ev with a control change on the same port and channel.
func generateCtrl(u *ir.Unit, ev ir.Event) ir.Event {
	ctrl := clamp(parameter(u.Params.Values[0], ev), 0, 127)
	value := clamp(parameter(u.Params.Values[1], ev), 0, 127)
	return ir.CtrlChange(ev.Port, ev.Channel, ctrl, value)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
