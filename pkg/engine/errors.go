package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies processing failures.
type ErrorKind string

const (
	// KindConfiguration is a bad or missing step or workflow. Fatal.
	KindConfiguration ErrorKind = "ConfigurationError"
	// KindDataNotFound is a missing business record. Fatal.
	KindDataNotFound ErrorKind = "DataNotFoundError"
	// KindActionExecution is a failed action. Retried per step policy, then fatal.
	KindActionExecution ErrorKind = "ActionExecutionError"
	// KindScheduling is a failed enqueue or resume. Redriven by the queue.
	KindScheduling ErrorKind = "SchedulingError"
	// KindLogging is a failed execution log write. Swallowed.
	KindLogging ErrorKind = "LoggingError"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrDataNotFound    = errors.New("data not found")
	ErrActionExecution = errors.New("action execution error")
	ErrScheduling      = errors.New("scheduling error")
	ErrLogging         = errors.New("logging error")

	// ErrExecutionLeased is returned while another delivery holds the execution.
	ErrExecutionLeased = errors.New("execution is leased by another delivery")
)

var kindErrors = map[ErrorKind]error{
	KindConfiguration:   ErrConfiguration,
	KindDataNotFound:    ErrDataNotFound,
	KindActionExecution: ErrActionExecution,
	KindScheduling:      ErrScheduling,
	KindLogging:         ErrLogging,
}

// Error is a processing failure with the execution and step it happened on.
type Error struct {
	Kind        ErrorKind
	Op          string
	ExecutionID string
	StepID      string
	Err         error
}

func (e *Error) Error() string {
	if e.StepID == "" {
		return fmt.Sprintf("%s: %s failed for execution %s: %v", e.Kind, e.Op, e.ExecutionID, e.Err)
	}

	return fmt.Sprintf("%s: %s failed for execution %s at step %s: %v", e.Kind, e.Op, e.ExecutionID, e.StepID, e.Err)
}

// ErrorKind names the kind on tracing spans.
func (e *Error) ErrorKind() string {
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel (ErrConfiguration, ErrDataNotFound, ...) as well as the wrapped error.
func (e *Error) Is(target error) bool {
	if sentinel, ok := kindErrors[e.Kind]; ok && target == sentinel {
		return true
	}

	return errors.Is(e.Err, target)
}

// Fatal reports whether the error ends the execution.
func (e *Error) Fatal() bool {
	return e.Kind == KindConfiguration || e.Kind == KindDataNotFound || e.Kind == KindActionExecution
}

func newError(kind ErrorKind, op, executionID, stepID string, err error) *Error {
	return &Error{Kind: kind, Op: op, ExecutionID: executionID, StepID: stepID, Err: err}
}
