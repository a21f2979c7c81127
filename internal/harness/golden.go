package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/patchwire/internal/engine"
	"github.com/roach88/patchwire/internal/ir"
)

// TraceSnapshot is the golden form of a run: every traced event and patch
// switch, serialized as canonical JSON.
type TraceSnapshot struct {
	ScenarioName string
	RunID        string
	Trace        []ir.TraceEvent
	Switches     []ir.PatchSwitch
}

// Snapshot returns the golden form of r.
func (r *Result) Snapshot(name string) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: name,
		RunID:        r.RunID,
		Trace:        r.Trace,
		Switches:     r.Switches,
	}
}

// toCanonicalMap converts the snapshot to the value types ir.MarshalCanonical
// accepts.
func (s TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		trace[i] = map[string]any{
			"seq":       ev.Seq,
			"cause_seq": ev.CauseSeq,
			"direction": string(ev.Direction),
			"patch":     ev.Patch,
			"event":     ir.EventValue(ev.Event),
		}
	}
	switches := make([]any, len(s.Switches))
	for i, sw := range s.Switches {
		switches[i] = map[string]any{
			"seq":  sw.Seq,
			"from": sw.From,
			"to":   sw.To,
		}
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"run_id":        s.RunID,
		"trace":         trace,
		"switches":      switches,
	}
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/<scenario name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario, opts ...engine.Option) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), sc, opts...)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, sc.Name, result)
}

// AssertGolden compares the trace of a finished run with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := result.Snapshot(name).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
