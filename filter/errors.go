package filter

import (
	"errors"
	"fmt"
)

// Error types for filter operations
type (
	// CompilationError indicates a rule expression could not be compiled
	CompilationError struct {
		Expression string
		Reason     string
		Err        error
	}

	// EvaluationError indicates a rule could not be evaluated for a service
	EvaluationError struct {
		Expression string
		Service    string
		Err        error
	}
)

func (e *CompilationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compilation error in '%s': %s: %v", e.Expression, e.Reason, e.Err)
	}
	return fmt.Sprintf("compilation error in '%s': %s", e.Expression, e.Reason)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error for rule '%s' on service '%s': %v", e.Expression, e.Service, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// ErrStateUnavailable is returned when the service control state could not be read.
var ErrStateUnavailable = errors.New("service control state unavailable")
