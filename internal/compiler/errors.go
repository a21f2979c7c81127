package compiler

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Compile failures. Match them with errors.Is on the returned error.
var (
	// ErrInvalidExpression is returned for nodes that are not a Unit, Chain
	// or Fork, for unknown unit kinds, and for negated non-filter units.
	ErrInvalidExpression = errors.New("invalid expression")

	// ErrEmptyChainOperand is returned when a Chain's left operand has no
	// outputs or its right operand has no inputs.
	ErrEmptyChainOperand = errors.New("empty chain operand")

	// ErrDuplicateDispatchKey is returned when a dispatch table repeats a key.
	ErrDuplicateDispatchKey = errors.New("duplicate dispatch key")
)

// CompileError represents a compilation error with location context.
// Field is a path such as "patch.1.chain[2].fork[0]"; Pos is set when the
// expression was loaded from CUE.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
	Err     error
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func invalidExpr(field, format string, args ...any) error {
	return &CompileError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Err:     ErrInvalidExpression,
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := cueerrors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
			Err:     err,
		}
	}

	return err
}
