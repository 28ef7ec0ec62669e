// Package engine defines the error vocabulary shared by the executor,
// the processors, and the scheduler. Errors carry a stable code for
// operators and a fatality flag the executor uses to pick between the
// retry path and terminal failure.
package engine

import (
	"errors"
	"fmt"
)

// Code is a stable, external-facing error identifier.
type Code string

const (
	CodeWorkflowNotFound      Code = "WORKFLOW_NOT_FOUND"
	CodeWorkflowDisabled      Code = "WORKFLOW_DISABLED"
	CodeNoTriggerNode         Code = "NO_TRIGGER_NODE"
	CodeNodeNotFound          Code = "NODE_NOT_FOUND"
	CodeUnknownNodeType       Code = "UNKNOWN_NODE_TYPE"
	CodeProviderNotConfigured Code = "PROVIDER_NOT_CONFIGURED"
	CodeTemplateNotFound      Code = "TEMPLATE_NOT_FOUND"
	CodeContactUpdateFailed   Code = "CONTACT_UPDATE_FAILED"
	CodeCircularSubWorkflow   Code = "CIRCULAR_SUB_WORKFLOW"
	CodeAttemptsExhausted     Code = "ATTEMPTS_EXHAUSTED"
	CodeCycleLimitExceeded    Code = "CYCLE_LIMIT_EXCEEDED"
)

// Error is an engine failure with a stable code. Fatal errors fail the
// execution immediately; non-fatal ones go through the retry path.
type Error struct {
	Code    Code
	Message string
	Fatal   bool
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Newf builds a retryable engine error.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Fatalf builds a fatal engine error.
func Fatalf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Fatal: true}
}

// Wrap attaches a code to an underlying error, keeping it retryable.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf extracts the engine code from an error chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsFatal reports whether the error chain carries a fatal engine error.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal
	}
	return false
}
