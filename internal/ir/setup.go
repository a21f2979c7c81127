package ir

import "slices"

// Backend names the event backend a setup is configured for. Only the
// dummy backend is driven in-process; the others are recorded so config
// dependent behavior (warnings, port naming) matches the target.
type Backend string

const (
	BackendDummy  Backend = "dummy"
	BackendALSA   Backend = "alsa"
	BackendJack   Backend = "jack"
	BackendJackRT Backend = "jack-rt"
)

// Valid reports whether b is a known backend.
func (b Backend) Valid() bool {
	switch b {
	case BackendDummy, BackendALSA, BackendJack, BackendJackRT:
		return true
	}
	return false
}

// Config is the runtime configuration of a setup. It is passed explicitly
// to every component that needs it.
type Config struct {
	Backend      Backend  `json:"backend"`
	ClientName   string   `json:"client_name"`
	InPorts      int      `json:"in_ports"`
	OutPorts     int      `json:"out_ports"`
	InPortNames  []string `json:"in_port_names,omitempty"`
	OutPortNames []string `json:"out_port_names,omitempty"`
	Silent       bool     `json:"silent,omitempty"`
}

// DefaultConfig mirrors the defaults of a bare setup: dummy backend, one
// input and one output port.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendDummy,
		ClientName: "patchwire",
		InPorts:    1,
		OutPorts:   1,
	}
}

// PatchEntry is one numbered patch of a setup with its optional init patch.
type PatchEntry struct {
	Number int    `json:"number"`
	Init   *Patch `json:"init,omitempty"`
	Body   *Patch `json:"body"`
}

// Setup is a compiled set of patches plus the processing patches that
// surround them.
type Setup struct {
	Config       Config       `json:"config"`
	Patches      []PatchEntry `json:"patches"`
	Control      *Patch       `json:"control,omitempty"`
	Pre          *Patch       `json:"pre,omitempty"`
	Post         *Patch       `json:"post,omitempty"`
	DefaultPatch *int         `json:"default_patch,omitempty"`
}

// Lookup returns the entry with the given number.
func (s *Setup) Lookup(number int) (PatchEntry, bool) {
	i := slices.IndexFunc(s.Patches, func(e PatchEntry) bool { return e.Number == number })
	if i < 0 {
		return PatchEntry{}, false
	}
	return s.Patches[i], true
}

// Numbers returns the patch numbers in ascending order.
func (s *Setup) Numbers() []int {
	nums := make([]int, len(s.Patches))
	for i, e := range s.Patches {
		nums[i] = e.Number
	}
	slices.Sort(nums)
	return nums
}
