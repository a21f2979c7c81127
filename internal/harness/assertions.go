package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/midimsg"
)

// AssertionError is a failed assertion with the outputs it was checked
// against.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Outputs  []ir.TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Outputs) > 0 {
		fmt.Fprintf(&buf, "\nOutputs:\n")
		for _, out := range e.Outputs {
			fmt.Fprintf(&buf, "  [%d] %s\n", out.Seq, out.Event)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against r and returns the
// failure messages.
func EvaluateAssertions(r *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(r, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertOutputContains:
		return assertOutputContains(r.Outputs(), a)
	case AssertOutputCount:
		return assertOutputCount(r.Outputs(), a)
	case AssertOutputOrder:
		return assertOutputOrder(r.Outputs(), a)
	case AssertNoOutput:
		return assertNoOutput(r, a)
	case AssertActivePatch:
		if r.ActivePatch != *a.Patch {
			return &AssertionError{
				Type:     AssertActivePatch,
				Expected: fmt.Sprintf("patch %d", *a.Patch),
				Actual:   fmt.Sprintf("patch %d", r.ActivePatch),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertOutputContains(outputs []ir.TraceEvent, a Assertion) error {
	want, err := a.Event.Event()
	if err != nil {
		return err
	}
	for _, out := range outputs {
		if want.Equal(out.Event) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertOutputContains,
		Expected: want.String(),
		Actual:   "not found in outputs",
		Outputs:  outputs,
	}
}

func assertOutputCount(outputs []ir.TraceEvent, a Assertion) error {
	count := len(outputs)
	what := "outputs"
	if a.Event != nil {
		want, err := a.Event.Event()
		if err != nil {
			return err
		}
		count = 0
		for _, out := range outputs {
			if want.Equal(out.Event) {
				count++
			}
		}
		what = "occurrences of " + want.String()
	}

	if count != *a.Count {
		return &AssertionError{
			Type:     AssertOutputCount,
			Expected: fmt.Sprintf("%d %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d", count),
			Outputs:  outputs,
		}
	}
	return nil
}

// assertOutputOrder checks that the events occur in order. Other outputs
// may come in between.
func assertOutputOrder(outputs []ir.TraceEvent, a Assertion) error {
	want, err := specEvents(a.Events)
	if err != nil {
		return err
	}

	next := 0
	for _, out := range outputs {
		if next < len(want) && want[next].Equal(out.Event) {
			next++
		}
	}
	if next == len(want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertOutputOrder,
		Expected: fmt.Sprintf("outputs in order: %s", describeEvents(want)),
		Actual:   fmt.Sprintf("%s not found after the first %d", want[next], next),
		Outputs:  outputs,
	}
}

func assertNoOutput(r *Result, a Assertion) error {
	outputs := r.Outputs()
	where := "the run"
	if a.Step != nil {
		outputs = r.Steps[*a.Step].Outputs
		where = fmt.Sprintf("step %d", *a.Step)
	}
	if len(outputs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertNoOutput,
		Expected: "no outputs from " + where,
		Actual:   fmt.Sprintf("%d outputs", len(outputs)),
		Outputs:  outputs,
	}
}

func specEvents(specs []midimsg.EventSpec) ([]ir.Event, error) {
	out := make([]ir.Event, len(specs))
	for i, s := range specs {
		ev, err := s.Event()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out[i] = ev
	}
	return out, nil
}

func describeEvents(events []ir.Event) string {
	parts := make([]string, len(events))
	for i, ev := range events {
		parts[i] = ev.String()
	}
	return "[" + strings.Join(parts, "; ") + "]"
}

func describe(trace []ir.TraceEvent) string {
	events := make([]ir.Event, len(trace))
	for i, t := range trace {
		events[i] = t.Event
	}
	return describeEvents(events)
}
