package cli

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"

	"github.com/roach88/patchwire/internal/compiler"
	"github.com/roach88/patchwire/internal/ir"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStore       = "E008" // Trace store error
	ErrCodeEvents      = "E009" // Event file or message error

	// Compile errors
	ErrCodeInvalidExpression = "E101"
	ErrCodeEmptyChainOperand = "E102"
	ErrCodeDuplicateKey      = "E103"

	// Runtime errors
	ErrCodeRuntime = "E201"
)

// LoadError is a failure to load a patch directory, before any patch was
// compiled.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// stageCodes maps loader stages to error codes.
var stageCodes = map[compiler.LoadStage]string{
	compiler.StageNotFound: ErrCodeNotFound,
	compiler.StageScan:     ErrCodeScanError,
	compiler.StageNoFiles:  ErrCodeNoFiles,
	compiler.StageLoad:     ErrCodeLoadFailed,
	compiler.StageBuild:    ErrCodeBuildFailed,
}

// LoadResult is a loaded and compiled patch directory.
type LoadResult struct {
	Setup     *ir.Setup
	FileCount int
}

// LoadSetup loads and compiles the CUE patch directory dir. Directory
// problems come back as *LoadError; compile problems as the
// *compiler.CompileError the compiler reported.
func LoadSetup(dir string) (*LoadResult, error) {
	d, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, toLoadError(err)
	}
	setup, err := compiler.CompileSetup(d.Value)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Setup: setup, FileCount: d.FileCount}, nil
}

func toLoadError(err error) error {
	var dirErr *compiler.DirError
	if !errors.As(err, &dirErr) {
		return &LoadError{Code: ErrCodeGeneric, Message: err.Error(), Err: err}
	}
	le := &LoadError{
		Code:    stageCodes[dirErr.Stage],
		Message: dirErr.Error(),
		Err:     err,
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		le.Pos = compileErr.Pos
	}
	return le
}

// errorCode returns the CLI error code and message for err.
func errorCode(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compileCode(compileErr), compileErr.Error()
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return ErrCodeGeneric, exitErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// compileCode maps a compile error to its code by the sentinel it wraps.
func compileCode(err *compiler.CompileError) string {
	switch {
	case errors.Is(err, compiler.ErrEmptyChainOperand):
		return ErrCodeEmptyChainOperand
	case errors.Is(err, compiler.ErrDuplicateDispatchKey):
		return ErrCodeDuplicateKey
	case errors.Is(err, compiler.ErrInvalidExpression):
		return ErrCodeInvalidExpression
	case err.Field == "cue":
		return ErrCodeBuildFailed
	default:
		return ErrCodeGeneric
	}
}

// lineOf returns the CUE line of err, or 0.
func lineOf(err error) int {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) && compileErr.Pos.IsValid() {
		return compileErr.Pos.Line()
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
		return loadErr.Pos.Line()
	}
	return 0
}
