package harness

import "github.com/roach88/patchwire/internal/ir"

// StepResult is what one step produced.
type StepResult struct {
	Index int `json:"index"`

	// Seq is the trace seq of the step's input or switch, 0 when nothing
	// was recorded (a switch to the active or an unknown patch).
	Seq     int64           `json:"seq"`
	Outputs []ir.TraceEvent `json:"outputs"`
}

// Result is the outcome of a scenario.
type Result struct {
	Pass  bool   `json:"pass"`
	RunID string `json:"run_id"`

	// Startup holds the init outputs of the first active patch.
	Startup []ir.TraceEvent `json:"startup"`
	Steps   []StepResult    `json:"steps"`

	// Trace is every recorded event in seq order.
	Trace    []ir.TraceEvent  `json:"trace"`
	Switches []ir.PatchSwitch `json:"switches"`

	ActivePatch int      `json:"active_patch"`
	Errors      []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult(runID string) *Result {
	return &Result{
		Pass:     true,
		RunID:    runID,
		Startup:  []ir.TraceEvent{},
		Steps:    []StepResult{},
		Trace:    []ir.TraceEvent{},
		Switches: []ir.PatchSwitch{},
		Errors:   []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outputs returns every output of the run, startup included, in seq order.
func (r *Result) Outputs() []ir.TraceEvent {
	var out []ir.TraceEvent
	for _, ev := range r.Trace {
		if ev.Direction == ir.DirectionOut {
			out = append(out, ev)
		}
	}
	return out
}
