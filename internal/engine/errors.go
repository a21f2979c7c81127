package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while a setup processes events.
//
// Runtime errors include:
//   - Unknown patch: a switch names a patch the setup does not have
//   - Missing handler: a process or call unit names an unregistered handler
//   - Invalid event: the event cannot be processed (unknown type)
//   - Handler failed: a transform, observer or system command returned an error
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Handler names the handler or command involved, if any.
	Handler string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	ErrCodeUnknownPatch   RuntimeErrorCode = "UNKNOWN_PATCH"
	ErrCodeMissingHandler RuntimeErrorCode = "MISSING_HANDLER"
	ErrCodeInvalidEvent   RuntimeErrorCode = "INVALID_EVENT"
	ErrCodeHandlerFailed  RuntimeErrorCode = "HANDLER_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Handler != "" {
		msg += fmt.Sprintf(" (handler=%s)", e.Handler)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// IsUnknownPatch returns true if the error is an unknown patch error.
// Uses errors.As to handle wrapped errors.
func IsUnknownPatch(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownPatch
	}
	return false
}

// IsMissingHandler returns true if the error is a missing handler error.
func IsMissingHandler(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeMissingHandler
	}
	return false
}

// NewUnknownPatchError creates a RuntimeError for a switch to patch n.
func NewUnknownPatchError(n int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownPatch,
		Message: fmt.Sprintf("no patch numbered %d", n),
		Details: map[string]string{"patch": fmt.Sprintf("%d", n)},
	}
}

// NewMissingHandlerError creates a RuntimeError for an unregistered handler.
func NewMissingHandlerError(kind, name string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeMissingHandler,
		Message: fmt.Sprintf("%s unit names an unregistered handler", kind),
		Handler: name,
	}
}

// NewInvalidEventError creates a RuntimeError for an event that cannot be processed.
func NewInvalidEventError(format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidEvent,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewHandlerError wraps the failure of a handler or command.
func NewHandlerError(name string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeHandlerFailed,
		Message: "handler returned an error",
		Handler: name,
		Err:     err,
	}
}
