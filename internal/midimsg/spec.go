package midimsg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/patchwire/internal/ir"
)

// EventSpec is the YAML form of an event used by event files and
// scenarios. Either Raw is set, or Type plus the fields of that type:
//
//	- {type: note_on, channel: 0, note: 60, velocity: 100}
//	- {type: ctrl, ctrl: 7, value: 64}
//	- {type: sysex, sysex: "F0 43 10 F7"}
//	- {raw: "90 3C 64", port: 1}
type EventSpec struct {
	Raw      string       `yaml:"raw,omitempty"`
	Type     ir.EventType `yaml:"type,omitempty"`
	Port     int          `yaml:"port,omitempty"`
	Channel  int          `yaml:"channel,omitempty"`
	Note     int          `yaml:"note,omitempty"`
	Velocity int          `yaml:"velocity,omitempty"`
	Ctrl     int          `yaml:"ctrl,omitempty"`
	Value    int          `yaml:"value,omitempty"`
	Program  int          `yaml:"program,omitempty"`
	SysEx    string       `yaml:"sysex,omitempty"`
}

// Event converts the spec to an ir.Event, validating it against the wire
// format.
func (s EventSpec) Event() (ir.Event, error) {
	if s.Raw != "" {
		raw, err := ParseHex(s.Raw)
		if err != nil {
			return ir.Event{}, err
		}
		return Decode(s.Port, raw)
	}

	var ev ir.Event
	switch s.Type {
	case ir.EventNoteOn:
		ev = ir.NoteOn(s.Port, s.Channel, s.Note, s.Velocity)
	case ir.EventNoteOff:
		ev = ir.NoteOff(s.Port, s.Channel, s.Note, s.Velocity)
	case ir.EventCtrl:
		ev = ir.CtrlChange(s.Port, s.Channel, s.Ctrl, s.Value)
	case ir.EventProgram:
		ev = ir.ProgramChange(s.Port, s.Channel, s.Program)
	case ir.EventPitchBend, ir.EventAftertouch:
		ev = ir.Event{Port: s.Port, Channel: s.Channel, Type: s.Type, Data2: s.Value}
	case ir.EventPolyAftertouch:
		ev = ir.Event{Port: s.Port, Channel: s.Channel, Type: s.Type, Data1: s.Note, Data2: s.Value}
	case ir.EventSysEx:
		data, err := ParseHex(s.SysEx)
		if err != nil {
			return ir.Event{}, err
		}
		ev = ir.SysExEvent(s.Port, frame(data))
	case "":
		return ir.Event{}, fmt.Errorf("event needs a type or raw bytes")
	default:
		return ir.Event{}, fmt.Errorf("unknown event type %q", s.Type)
	}

	if s.Port < 0 {
		return ir.Event{}, fmt.Errorf("%w: port %d", ErrOutOfRange, s.Port)
	}
	if _, err := Encode(ev); err != nil {
		return ir.Event{}, err
	}
	return ev, nil
}

// SpecOf returns the structured spec of an event.
func SpecOf(ev ir.Event) EventSpec {
	s := EventSpec{Type: ev.Type, Port: ev.Port, Channel: ev.Channel}
	switch ev.Type {
	case ir.EventNoteOn, ir.EventNoteOff:
		s.Note, s.Velocity = ev.Data1, ev.Data2
	case ir.EventCtrl:
		s.Ctrl, s.Value = ev.Data1, ev.Data2
	case ir.EventProgram:
		s.Program = ev.Data2
	case ir.EventPitchBend, ir.EventAftertouch:
		s.Value = ev.Data2
	case ir.EventPolyAftertouch:
		s.Note, s.Value = ev.Data1, ev.Data2
	case ir.EventSysEx:
		s.Channel = 0
		s.SysEx = FormatHex(ev.SysEx)
	}
	return s
}

// ParseEvents decodes a YAML list of event specs.
func ParseEvents(data []byte) ([]ir.Event, error) {
	var specs []EventSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse events: %w", err)
	}
	events := make([]ir.Event, 0, len(specs))
	for i, s := range specs {
		ev, err := s.Event()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// LoadEvents reads an event file.
func LoadEvents(path string) ([]ir.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return ParseEvents(data)
}

// MarshalEvents renders events as a YAML list of specs.
func MarshalEvents(events []ir.Event) ([]byte, error) {
	specs := make([]EventSpec, len(events))
	for i, ev := range events {
		specs[i] = SpecOf(ev)
	}
	return yaml.Marshal(specs)
}
