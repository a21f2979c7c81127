// Package midimsg converts between ir.Event values and MIDI wire bytes.
//
// Wire messages carry no port; Decode takes the port the bytes arrived on
// and Encode drops it. Running status and realtime messages are not
// supported.
package midimsg

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"

	"github.com/roach88/patchwire/internal/ir"
)

var (
	// ErrUnsupported is returned for messages that have no ir.Event form.
	ErrUnsupported = errors.New("unsupported midi message")

	// ErrOutOfRange is returned when an event field does not fit the wire
	// format.
	ErrOutOfRange = errors.New("value out of range")
)

const (
	sysexStart = 0xF0
	sysexEnd   = 0xF7
)

// Decode parses one raw MIDI message received on port.
func Decode(port int, raw []byte) (ir.Event, error) {
	msg := midi.Message(raw)

	var ch, a, b uint8
	switch {
	case msg.GetNoteOn(&ch, &a, &b):
		if b == 0 {
			return ir.NoteOff(port, int(ch), int(a), 0), nil
		}
		return ir.NoteOn(port, int(ch), int(a), int(b)), nil
	case msg.GetNoteOff(&ch, &a, &b):
		return ir.NoteOff(port, int(ch), int(a), int(b)), nil
	case msg.GetControlChange(&ch, &a, &b):
		return ir.CtrlChange(port, int(ch), int(a), int(b)), nil
	case msg.GetProgramChange(&ch, &a):
		return ir.ProgramChange(port, int(ch), int(a)), nil
	case msg.GetPolyAfterTouch(&ch, &a, &b):
		return ir.Event{Port: port, Channel: int(ch), Type: ir.EventPolyAftertouch, Data1: int(a), Data2: int(b)}, nil
	case msg.GetAfterTouch(&ch, &a):
		return ir.Event{Port: port, Channel: int(ch), Type: ir.EventAftertouch, Data2: int(a)}, nil
	}

	var rel int16
	var abs uint16
	if msg.GetPitchBend(&ch, &rel, &abs) {
		return ir.Event{Port: port, Channel: int(ch), Type: ir.EventPitchBend, Data2: int(rel)}, nil
	}

	var data []byte
	if msg.GetSysEx(&data) {
		return ir.SysExEvent(port, frame(data)), nil
	}

	return ir.Event{}, fmt.Errorf("%w: % X", ErrUnsupported, raw)
}

// Encode renders an event as raw MIDI bytes.
func Encode(ev ir.Event) ([]byte, error) {
	if ev.Type.HasChannel() {
		if err := check("channel", ev.Channel, 0, 15); err != nil {
			return nil, err
		}
	}

	ch := uint8(ev.Channel)
	switch ev.Type {
	case ir.EventNoteOn, ir.EventNoteOff, ir.EventCtrl, ir.EventPolyAftertouch:
		if err := check("data1", ev.Data1, 0, 127); err != nil {
			return nil, err
		}
		if err := check("data2", ev.Data2, 0, 127); err != nil {
			return nil, err
		}
		d1, d2 := uint8(ev.Data1), uint8(ev.Data2)
		switch ev.Type {
		case ir.EventNoteOn:
			return midi.NoteOn(ch, d1, d2), nil
		case ir.EventNoteOff:
			return midi.NoteOffVelocity(ch, d1, d2), nil
		case ir.EventCtrl:
			return midi.ControlChange(ch, d1, d2), nil
		default:
			return midi.PolyAfterTouch(ch, d1, d2), nil
		}
	case ir.EventProgram, ir.EventAftertouch:
		if err := check("data2", ev.Data2, 0, 127); err != nil {
			return nil, err
		}
		if ev.Type == ir.EventProgram {
			return midi.ProgramChange(ch, uint8(ev.Data2)), nil
		}
		return midi.AfterTouch(ch, uint8(ev.Data2)), nil
	case ir.EventPitchBend:
		if err := check("data2", ev.Data2, -8192, 8191); err != nil {
			return nil, err
		}
		return midi.Pitchbend(ch, int16(ev.Data2)), nil
	case ir.EventSysEx:
		return midi.SysEx(unframe(ev.SysEx)), nil
	}
	return nil, fmt.Errorf("%w: %s events have no wire form", ErrUnsupported, ev.Type)
}

func check(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s %d not in [%d, %d]", ErrOutOfRange, field, v, lo, hi)
	}
	return nil
}

// unframe strips the F0/F7 framing if present.
func unframe(data []byte) []byte {
	if len(data) > 0 && data[0] == sysexStart {
		data = data[1:]
	}
	if len(data) > 0 && data[len(data)-1] == sysexEnd {
		data = data[:len(data)-1]
	}
	return data
}

// frame returns data with F0/F7 framing, adding whatever is missing.
func frame(data []byte) []byte {
	inner := unframe(data)
	out := make([]byte, 0, len(inner)+2)
	out = append(out, sysexStart)
	out = append(out, inner...)
	return append(out, sysexEnd)
}

// ParseHex reads bytes written as hex pairs, with or without spaces,
// e.g. "90 3C 64" or "903c64".
func ParseHex(s string) ([]byte, error) {
	clean := strings.Join(strings.Fields(s), "")
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("parse hex %q: %w", s, err)
	}
	return b, nil
}

// FormatHex renders bytes as space separated upper-case hex pairs.
func FormatHex(b []byte) string {
	return fmt.Sprintf("% X", b)
}

// Describe renders raw bytes the way the midi library prints them, for
// debug logging.
func Describe(raw []byte) string {
	return midi.Message(raw).String()
}
