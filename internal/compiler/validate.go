package compiler

import (
	"fmt"

	"github.com/roach88/patchwire/internal/ir"
)

// Validation error codes (E120-E129)
const (
	ErrUnsupportedIRType   = "E120" // unsupported IR type for validation
	ErrBadBookends         = "E121" // Input/Output missing or misplaced
	ErrDanglingEdge        = "E122" // edge to a missing module, into Input, or out of Output
	ErrInvalidUnit         = "E123" // unit module without a valid unit
	ErrNegatedNonFilter    = "E124" // only filters can be negated
	ErrUnknownDefaultPatch = "E125" // default_patch names no patch
	ErrDuplicatePatch      = "E126" // two patches share a number
	ErrPatchCycle          = "E127" // module graph has a cycle
	ErrUnreachableModule   = "E128" // unit not on any Input -> Output path
	ErrInvalidConfig       = "E129" // setup config out of range
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks compiled patches and setups.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch x := v.(type) {
	case *ir.Patch:
		return validatePatch(x, "patch")
	case ir.Patch:
		return validatePatch(&x, "patch")
	case *ir.Setup:
		return validateSetup(x)
	case ir.Setup:
		return validateSetup(&x)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validatePatch(p *ir.Patch, field string) []ValidationError {
	if p == nil {
		return []ValidationError{{Field: field, Message: "patch is nil", Code: ErrBadBookends}}
	}

	var errs []ValidationError
	n := len(p.Modules)

	// E121
	if n < 2 || p.Input != ir.InputID || p.Output != ir.OutputID ||
		p.Modules[ir.InputID].Kind != ir.ModuleInput || p.Modules[ir.OutputID].Kind != ir.ModuleOutput {
		return append(errs, ValidationError{
			Field:   field,
			Message: "patch must start with the Input (0) and Output (1) modules",
			Code:    ErrBadBookends,
		})
	}

	edgesOK := true
	for i, m := range p.Modules {
		mf := fmt.Sprintf("%s.modules[%d]", field, i)

		if m.ID != i {
			errs = append(errs, ValidationError{
				Field:   mf,
				Message: fmt.Sprintf("module id %d does not match its index", m.ID),
				Code:    ErrBadBookends,
			})
		}

		if i >= 2 {
			switch {
			case m.Kind != ir.ModuleUnit:
				errs = append(errs, ValidationError{Field: mf, Message: fmt.Sprintf("unexpected %s module", m.Kind), Code: ErrBadBookends})
			case m.Unit == nil || !m.Unit.Kind.Valid():
				errs = append(errs, ValidationError{Field: mf, Message: "unit module has no valid unit", Code: ErrInvalidUnit})
			case m.Unit.Negated && !m.Unit.IsFilter():
				errs = append(errs, ValidationError{
					Field:   mf,
					Message: fmt.Sprintf("%s is negated but is not a filter", m.Unit.Kind),
					Code:    ErrNegatedNonFilter,
				})
			}
		}

		if i == ir.OutputID && len(m.Next) > 0 {
			edgesOK = false
			errs = append(errs, ValidationError{Field: mf, Message: "output module has successors", Code: ErrDanglingEdge})
		}
		for _, next := range m.Next {
			if next < 0 || next >= n || next == ir.InputID {
				edgesOK = false
				errs = append(errs, ValidationError{
					Field:   mf,
					Message: fmt.Sprintf("edge to invalid module %d", next),
					Code:    ErrDanglingEdge,
				})
			}
		}
	}

	if !edgesOK {
		return errs
	}

	// E127
	for _, w := range AnalyzeCycles(p) {
		errs = append(errs, ValidationError{Field: field, Message: w.Message, Code: ErrPatchCycle})
	}

	// E128
	fromInput := reach(n, p.Input, func(id int) []int { return p.Modules[id].Next })
	preds := p.Predecessors()
	toOutput := reach(n, p.Output, func(id int) []int { return preds[id] })
	for i := 2; i < n; i++ {
		if !fromInput[i] || !toOutput[i] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.modules[%d]", field, i),
				Message: "unit is not on a path from Input to Output",
				Code:    ErrUnreachableModule,
			})
		}
	}

	return errs
}

// reach marks every node reachable from start along next.
func reach(n, start int, next func(int) []int) []bool {
	seen := make([]bool, n)
	stack := []int{start}
	seen[start] = true
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, w := range next(id) {
			if !seen[w] {
				seen[w] = true
				stack = append(stack, w)
			}
		}
	}
	return seen
}

func validateSetup(s *ir.Setup) []ValidationError {
	if s == nil {
		return []ValidationError{{Field: "setup", Message: "setup is nil", Code: ErrUnsupportedIRType}}
	}

	var errs []ValidationError

	// E129
	cfg := s.Config
	if !cfg.Backend.Valid() {
		errs = append(errs, ValidationError{Field: "setup.backend", Message: fmt.Sprintf("unknown backend %q", cfg.Backend), Code: ErrInvalidConfig})
	}
	if cfg.InPorts < 1 || cfg.OutPorts < 1 {
		errs = append(errs, ValidationError{Field: "setup.ports", Message: "at least one input and one output port are required", Code: ErrInvalidConfig})
	}
	if len(cfg.InPortNames) > 0 && len(cfg.InPortNames) != cfg.InPorts {
		errs = append(errs, ValidationError{Field: "setup.in_ports", Message: "port names do not match the port count", Code: ErrInvalidConfig})
	}
	if len(cfg.OutPortNames) > 0 && len(cfg.OutPortNames) != cfg.OutPorts {
		errs = append(errs, ValidationError{Field: "setup.out_ports", Message: "port names do not match the port count", Code: ErrInvalidConfig})
	}

	if len(s.Patches) == 0 {
		errs = append(errs, ValidationError{Field: "patch", Message: "at least one patch is required", Code: ErrInvalidConfig})
	}

	// E126
	seen := make(map[int]bool)
	for _, e := range s.Patches {
		field := fmt.Sprintf("patch.%d", e.Number)
		if seen[e.Number] {
			errs = append(errs, ValidationError{Field: field, Message: "duplicate patch number", Code: ErrDuplicatePatch})
		}
		seen[e.Number] = true

		errs = append(errs, validatePatch(e.Body, field)...)
		if e.Init != nil {
			errs = append(errs, validatePatch(e.Init, field+".init")...)
		}
	}

	// E125
	if s.DefaultPatch != nil && !seen[*s.DefaultPatch] {
		errs = append(errs, ValidationError{
			Field:   "setup.default_patch",
			Message: fmt.Sprintf("patch %d does not exist", *s.DefaultPatch),
			Code:    ErrUnknownDefaultPatch,
		})
	}

	for _, slot := range []struct {
		name  string
		patch *ir.Patch
	}{
		{"setup.control", s.Control},
		{"setup.preprocess", s.Pre},
		{"setup.postprocess", s.Post},
	} {
		if slot.patch != nil {
			errs = append(errs, validatePatch(slot.patch, slot.name)...)
		}
	}

	return errs
}
