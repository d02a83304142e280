// Package services implements the workflow lifecycle and enrollment operations behind the API.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/petflow/pkg/persistence"
	"github.com/dukex/petflow/pkg/trigger"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInvalidStatus         = errors.New("invalid workflow status")
	ErrTenantRequired        = errors.New("tenant ID is required")
	ErrInvalidEntryCondition = errors.New("invalid entry condition")
	ErrInvalidSteps          = errors.New("invalid workflow steps")
	ErrInvalidActionConfig   = errors.New("invalid action configuration")
	ErrEventNameRequired     = errors.New("event name is required")

	// Business Logic Conflicts (409 Conflict).
	ErrCannotActivate     = errors.New("workflow cannot be activated")
	ErrNotWaitingForEvent = errors.New("execution is not waiting for an event")
	ErrWorkflowNotActive  = trigger.ErrWorkflowNotActive
	ErrExecutionNotLive   = trigger.ErrExecutionNotLive

	// Not Found (404).
	ErrWorkflowNotFound  = persistence.ErrWorkflowNotFound
	ErrExecutionNotFound = persistence.ErrExecutionNotFound
	ErrRecordNotFound    = persistence.ErrRecordNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrTenantRequired) ||
		errors.Is(err, ErrInvalidEntryCondition) ||
		errors.Is(err, ErrInvalidSteps) ||
		errors.Is(err, ErrInvalidActionConfig) ||
		errors.Is(err, ErrEventNameRequired)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotActivate) ||
		errors.Is(err, ErrNotWaitingForEvent) ||
		errors.Is(err, ErrWorkflowNotActive) ||
		errors.Is(err, ErrExecutionNotLive) ||
		errors.Is(err, persistence.ErrExecutionConflict)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
