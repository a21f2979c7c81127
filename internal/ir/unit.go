package ir

import "slices"

// UnitKind names an atomic processing unit.
type UnitKind string

// Filters. Events whose type the filter does not inspect pass unchanged.
const (
	KindTypeFilter      UnitKind = "type_filter"
	KindPortFilter      UnitKind = "port_filter"
	KindChannelFilter   UnitKind = "channel_filter"
	KindKeyFilter       UnitKind = "key_filter"
	KindVelocityFilter  UnitKind = "velocity_filter"
	KindCtrlFilter      UnitKind = "ctrl_filter"
	KindCtrlValueFilter UnitKind = "ctrl_value_filter"
	KindProgramFilter   UnitKind = "program_filter"
	KindSysExFilter     UnitKind = "sysex_filter"
)

// Modifiers.
const (
	KindPort      UnitKind = "port"
	KindChannel   UnitKind = "channel"
	KindTranspose UnitKind = "transpose"
	KindVelocity  UnitKind = "velocity"
	KindCtrlMap   UnitKind = "ctrl_map"
	KindCtrlRange UnitKind = "ctrl_range"
)

// Generators.
const (
	KindCtrl        UnitKind = "ctrl"
	KindSceneSwitch UnitKind = "scene_switch"
)

// Everything else.
const (
	KindPass    UnitKind = "pass"
	KindDiscard UnitKind = "discard"
	KindProcess UnitKind = "process"
	KindCall    UnitKind = "call"
	KindSystem  UnitKind = "system"
)

var filterKinds = []UnitKind{
	KindTypeFilter,
	KindPortFilter,
	KindChannelFilter,
	KindKeyFilter,
	KindVelocityFilter,
	KindCtrlFilter,
	KindCtrlValueFilter,
	KindProgramFilter,
	KindSysExFilter,
}

var otherKinds = []UnitKind{
	KindPort,
	KindChannel,
	KindTranspose,
	KindVelocity,
	KindCtrlMap,
	KindCtrlRange,
	KindCtrl,
	KindSceneSwitch,
	KindPass,
	KindDiscard,
	KindProcess,
	KindCall,
	KindSystem,
}

// Valid reports whether k is a known unit kind.
func (k UnitKind) Valid() bool {
	return slices.Contains(filterKinds, k) || slices.Contains(otherKinds, k)
}

// IsFilter reports whether units of kind k are filters and can be negated.
func (k UnitKind) IsFilter() bool {
	return slices.Contains(filterKinds, k)
}

// UnitKinds returns all known kinds, filters first.
func UnitKinds() []UnitKind {
	return append(slices.Clone(filterKinds), otherKinds...)
}

// VelocityMode selects how a velocity unit combines its value with the
// incoming velocity.
type VelocityMode int

const (
	VelocityOffset   VelocityMode = 1
	VelocityMultiply VelocityMode = 2
	VelocityFixed    VelocityMode = 3
	VelocityGamma    VelocityMode = 4
	VelocityCurve    VelocityMode = 5
)

var velocityModeNames = map[VelocityMode]string{
	VelocityOffset:   "offset",
	VelocityMultiply: "multiply",
	VelocityFixed:    "fixed",
	VelocityGamma:    "gamma",
	VelocityCurve:    "curve",
}

func (m VelocityMode) String() string {
	if s, ok := velocityModeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseVelocityMode maps a mode name to its value.
func ParseVelocityMode(s string) (VelocityMode, bool) {
	for m, name := range velocityModeNames {
		if name == s {
			return m, true
		}
	}
	return 0, false
}

// Parameter references. Generator arguments below zero are resolved
// against the event being processed instead of being used literally.
const (
	ParamPort    = -1
	ParamChannel = -2
	ParamData1   = -3
	ParamData2   = -4
)

// Params holds the arguments of a unit. Which fields are meaningful
// depends on the unit kind; unused fields stay zero.
type Params struct {
	// Values is the membership set of set filters, or the positional
	// arguments of ctrl_map, ctrl_range and ctrl.
	Values []int `json:"values,omitempty"`

	// Lower/Upper bound range filters when Ranged is set: [Lower, Upper).
	Lower  int  `json:"lower,omitempty"`
	Upper  int  `json:"upper,omitempty"`
	Ranged bool `json:"ranged,omitempty"`

	// Amount is the single integer argument of port, channel, transpose
	// and scene_switch.
	Amount int `json:"amount,omitempty"`

	// Factor and Mode configure velocity units.
	Factor float64      `json:"factor,omitempty"`
	Mode   VelocityMode `json:"mode,omitempty"`

	// Types is the set matched by type_filter.
	Types []EventType `json:"types,omitempty"`

	// Data is the sysex prefix matched by sysex_filter.
	Data []byte `json:"data,omitempty"`

	// Handler names the registered function behind process and call units,
	// or holds the shell command of a system unit.
	Handler string `json:"handler,omitempty"`
}

// Unit is an atomic graph node. The graph compiler never looks inside it.
type Unit struct {
	Kind    UnitKind `json:"kind"`
	Params  Params   `json:"params"`
	Negated bool     `json:"negated,omitempty"`
}

func (Unit) exprNode() {}

// IsFilter reports whether u is a filter.
func (u Unit) IsFilter() bool {
	return u.Kind.IsFilter()
}

// Invert returns the logical complement of a filter. Inverting a
// non-filter yields a unit the compiler rejects.
func (u Unit) Invert() Unit {
	out := u.clone()
	out.Negated = !u.Negated
	return out
}

func (u Unit) clone() Unit {
	u.Params.Values = slices.Clone(u.Params.Values)
	u.Params.Types = slices.Clone(u.Params.Types)
	u.Params.Data = slices.Clone(u.Params.Data)
	return u
}
