package ir

import (
	"fmt"
	"slices"
)

// EventType identifies the kind of MIDI event.
type EventType string

const (
	EventNoteOn         EventType = "note_on"
	EventNoteOff        EventType = "note_off"
	EventCtrl           EventType = "ctrl"
	EventProgram        EventType = "program"
	EventPitchBend      EventType = "pitchbend"
	EventAftertouch     EventType = "aftertouch"
	EventPolyAftertouch EventType = "poly_aftertouch"
	EventSysEx          EventType = "sysex"

	// EventDummy is the placeholder event used to run init patches.
	EventDummy EventType = "dummy"
)

// EventTypes lists every known event type in a stable order.
var EventTypes = []EventType{
	EventNoteOn,
	EventNoteOff,
	EventCtrl,
	EventProgram,
	EventPitchBend,
	EventAftertouch,
	EventPolyAftertouch,
	EventSysEx,
	EventDummy,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return slices.Contains(EventTypes, t)
}

// IsNote reports whether t is a note-on or note-off.
func (t EventType) IsNote() bool {
	return t == EventNoteOn || t == EventNoteOff
}

// HasChannel reports whether events of type t carry a channel.
func (t EventType) HasChannel() bool {
	return t != EventSysEx && t != EventDummy
}

// Event is a single MIDI event.
//
// Event is a value type: units receive a copy and return new values, so no
// two owners ever share mutable state. SysEx is the only reference field;
// use Clone before handing an event to another goroutine.
//
// Port and Channel are zero-based. Data1/Data2 hold note/velocity,
// controller/value, program (Data2) or the 14-bit pitch bend value (Data2,
// signed, centered on 0).
type Event struct {
	Port    int       `json:"port" yaml:"port"`
	Channel int       `json:"channel" yaml:"channel"`
	Type    EventType `json:"type" yaml:"type"`
	Data1   int       `json:"data1" yaml:"data1"`
	Data2   int       `json:"data2" yaml:"data2"`
	SysEx   []byte    `json:"sysex,omitempty" yaml:"sysex,omitempty"`
}

// Note returns the note number of a note event.
func (e Event) Note() int { return e.Data1 }

// Velocity returns the velocity of a note event.
func (e Event) Velocity() int { return e.Data2 }

// Ctrl returns the controller number of a ctrl event.
func (e Event) Ctrl() int { return e.Data1 }

// Value returns the controller value of a ctrl event.
func (e Event) Value() int { return e.Data2 }

// Program returns the program number of a program change.
func (e Event) Program() int { return e.Data2 }

// Clone returns a deep copy of e.
func (e Event) Clone() Event {
	if e.SysEx != nil {
		e.SysEx = slices.Clone(e.SysEx)
	}
	return e
}

// Equal reports whether two events are identical, including sysex payload.
func (e Event) Equal(o Event) bool {
	return e.Port == o.Port &&
		e.Channel == o.Channel &&
		e.Type == o.Type &&
		e.Data1 == o.Data1 &&
		e.Data2 == o.Data2 &&
		slices.Equal(e.SysEx, o.SysEx)
}

// String renders the event in the short form used by traces and the CLI.
func (e Event) String() string {
	switch e.Type {
	case EventNoteOn, EventNoteOff:
		return fmt.Sprintf("%s port=%d ch=%d note=%d vel=%d", e.Type, e.Port, e.Channel, e.Data1, e.Data2)
	case EventCtrl:
		return fmt.Sprintf("ctrl port=%d ch=%d ctrl=%d value=%d", e.Port, e.Channel, e.Data1, e.Data2)
	case EventProgram:
		return fmt.Sprintf("program port=%d ch=%d program=%d", e.Port, e.Channel, e.Data2)
	case EventPitchBend:
		return fmt.Sprintf("pitchbend port=%d ch=%d value=%d", e.Port, e.Channel, e.Data2)
	case EventAftertouch:
		return fmt.Sprintf("aftertouch port=%d ch=%d value=%d", e.Port, e.Channel, e.Data2)
	case EventPolyAftertouch:
		return fmt.Sprintf("poly_aftertouch port=%d ch=%d note=%d value=%d", e.Port, e.Channel, e.Data1, e.Data2)
	case EventSysEx:
		return fmt.Sprintf("sysex port=%d % X", e.Port, e.SysEx)
	default:
		return fmt.Sprintf("%s port=%d", e.Type, e.Port)
	}
}

// NoteOn builds a note-on event.
func NoteOn(port, channel, note, velocity int) Event {
	return Event{Port: port, Channel: channel, Type: EventNoteOn, Data1: note, Data2: velocity}
}

// NoteOff builds a note-off event.
func NoteOff(port, channel, note, velocity int) Event {
	return Event{Port: port, Channel: channel, Type: EventNoteOff, Data1: note, Data2: velocity}
}

// CtrlChange builds a control change event.
func CtrlChange(port, channel, ctrl, value int) Event {
	return Event{Port: port, Channel: channel, Type: EventCtrl, Data1: ctrl, Data2: value}
}

// ProgramChange builds a program change event.
func ProgramChange(port, channel, program int) Event {
	return Event{Port: port, Channel: channel, Type: EventProgram, Data2: program}
}

// SysExEvent builds a system exclusive event. data includes the F0/F7 framing.
func SysExEvent(port int, data []byte) Event {
	return Event{Port: port, Type: EventSysEx, SysEx: slices.Clone(data)}
}

// DummyEvent is the event fed to init patches.
func DummyEvent() Event {
	return Event{Type: EventDummy}
}
