// Package agent implements the outer generate-deliver-build-verify cycle that
// turns a natural-language infrastructure request into a deployed result.
package agent

import (
	"errors"
	"fmt"
)

// FailureClass classifies why a cycle (or the whole run) failed. The class
// decides how the orchestrator feeds the failure into the next cycle's prompt.
type FailureClass string

const (
	// FailureClassGeneration indicates the generation service call failed or
	// returned an unusable structure.
	FailureClassGeneration FailureClass = "generation"

	// FailureClassValidation indicates the generated file set was missing
	// required artifacts or contained malformed structured config.
	FailureClassValidation FailureClass = "validation"

	// FailureClassPhase indicates a pipeline phase exited non-zero after all
	// remedies and pass retries were exhausted.
	FailureClassPhase FailureClass = "phase"

	// FailureClassConnectivity indicates a transport-level failure talking to
	// the execution target. Never retried in place; retried at cycle level.
	FailureClassConnectivity FailureClass = "connectivity"

	// FailureClassUnknown covers anything uncaught within a cycle.
	FailureClassUnknown FailureClass = "unknown"
)

// CycleError is a classified failure with context about where it occurred.
type CycleError struct {
	// Class is the failure classification.
	Class FailureClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Phase names the pipeline phase that failed, for phase failures.
	Phase string `json:"phase,omitempty"`

	// Output is the captured command output, for phase failures.
	Output string `json:"output,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	msg := e.Message
	if e.Phase != "" {
		msg = fmt.Sprintf("%s (phase=%s)", msg, e.Phase)
	}
	if cause := e.unwrapMessage(); cause != "" {
		msg = fmt.Sprintf("%s: %s", msg, cause)
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *CycleError) Unwrap() error {
	return e.Err
}

func (e *CycleError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// NewGenerationError creates a generation failure.
func NewGenerationError(message string, err error) *CycleError {
	return &CycleError{Class: FailureClassGeneration, Message: message, Err: err}
}

// NewValidationError creates a validation failure.
func NewValidationError(message string, err error) *CycleError {
	return &CycleError{Class: FailureClassValidation, Message: message, Err: err}
}

// NewPhaseError creates a phase failure carrying the terminal phase name and
// its captured output.
func NewPhaseError(phase, output string, err error) *CycleError {
	return &CycleError{
		Class:   FailureClassPhase,
		Message: "pipeline phase failed",
		Phase:   phase,
		Output:  output,
		Err:     err,
	}
}

// NewConnectivityError creates a connectivity failure.
func NewConnectivityError(message string, err error) *CycleError {
	return &CycleError{Class: FailureClassConnectivity, Message: message, Err: err}
}

// NewUnknownError wraps an uncaught error.
func NewUnknownError(err error) *CycleError {
	return &CycleError{Class: FailureClassUnknown, Message: "unexpected failure", Err: err}
}

// ClassOf returns the failure class of err, or FailureClassUnknown if err is
// not a CycleError.
func ClassOf(err error) FailureClass {
	var e *CycleError
	if errors.As(err, &e) {
		return e.Class
	}
	return FailureClassUnknown
}

// IsGenerationFailure returns true if the error is a generation failure.
func IsGenerationFailure(err error) bool {
	return ClassOf(err) == FailureClassGeneration
}

// IsValidationFailure returns true if the error is a validation failure.
func IsValidationFailure(err error) bool {
	return ClassOf(err) == FailureClassValidation
}

// IsPhaseFailure returns true if the error is a phase failure.
func IsPhaseFailure(err error) bool {
	return ClassOf(err) == FailureClassPhase
}

// IsConnectivityFailure returns true if the error is a connectivity failure.
func IsConnectivityFailure(err error) bool {
	var e *CycleError
	if errors.As(err, &e) {
		return e.Class == FailureClassConnectivity
	}
	return false
}
