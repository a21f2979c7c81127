package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/patchwire/internal/midimsg"
)

// Scenario is one harness run: a patch directory, the steps fed to it and
// what must hold afterwards.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Patches is the CUE patch directory, relative to the scenario file.
	Patches string `yaml:"patches"`

	// RunID fixes the run ID recorded in the trace; see testutil.DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step sends one event or requests one patch switch.
type Step struct {
	Send   *midimsg.EventSpec `yaml:"send,omitempty"`
	Switch *int               `yaml:"switch,omitempty"`

	// Expect lists the outputs of this step in order. Nil skips the
	// check; an empty list expects no output.
	Expect []midimsg.EventSpec `yaml:"expect,omitempty"`
}

// Assertion checks the outputs or final state of a run.
type Assertion struct {
	Type string `yaml:"type"`

	// Event is matched by output_contains and narrows output_count.
	Event *midimsg.EventSpec `yaml:"event,omitempty"`

	// Events is the order checked by output_order.
	Events []midimsg.EventSpec `yaml:"events,omitempty"`

	// Count is required by output_count.
	Count *int `yaml:"count,omitempty"`

	// Step narrows no_output to one step (zero-based).
	Step *int `yaml:"step,omitempty"`

	// Patch is required by active_patch.
	Patch *int `yaml:"patch,omitempty"`
}

// Assertion type constants.
const (
	AssertOutputContains = "output_contains"
	AssertOutputCount    = "output_count"
	AssertOutputOrder    = "output_order"
	AssertNoOutput       = "no_output"
	AssertActivePatch    = "active_patch"
)

// LoadScenario reads a scenario file. Unknown fields are rejected, and the
// patch directory is resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if sc.Patches != "" && !filepath.IsAbs(sc.Patches) {
		sc.Patches = filepath.Join(filepath.Dir(path), sc.Patches)
	}

	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Patches == "" {
		return fmt.Errorf("patches directory is required")
	}
	if info, err := os.Stat(s.Patches); err != nil || !info.IsDir() {
		return fmt.Errorf("patches directory not found: %s", s.Patches)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if (step.Send == nil) == (step.Switch == nil) {
			return fmt.Errorf("steps[%d]: exactly one of send or switch is required", i)
		}
		if step.Send != nil {
			if _, err := step.Send.Event(); err != nil {
				return fmt.Errorf("steps[%d].send: %w", i, err)
			}
		}
		if err := checkSpecs(step.Expect); err != nil {
			return fmt.Errorf("steps[%d].expect: %w", i, err)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], len(s.Steps)); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, steps int) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertOutputContains:
		if a.Event == nil {
			return fmt.Errorf("assertions[%d]: event is required for output_contains", index)
		}
	case AssertOutputCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for output_count", index)
		}
	case AssertOutputOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("assertions[%d]: at least two events are required for output_order", index)
		}
	case AssertNoOutput:
		if a.Step != nil && (*a.Step < 0 || *a.Step >= steps) {
			return fmt.Errorf("assertions[%d]: step %d out of range", index, *a.Step)
		}
	case AssertActivePatch:
		if a.Patch == nil {
			return fmt.Errorf("assertions[%d]: patch is required for active_patch", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Event != nil {
		if err := checkSpecs([]midimsg.EventSpec{*a.Event}); err != nil {
			return fmt.Errorf("assertions[%d].event: %w", index, err)
		}
	}
	if err := checkSpecs(a.Events); err != nil {
		return fmt.Errorf("assertions[%d].events: %w", index, err)
	}
	return nil
}

func checkSpecs(specs []midimsg.EventSpec) error {
	for i, s := range specs {
		if _, err := s.Event(); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}
