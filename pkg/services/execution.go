package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/dukex/petflow/pkg/queue"
	"github.com/dukex/petflow/pkg/trigger"
)

const (
	defaultExecutionLimit = 50
	maxExecutionLimit     = 500
)

// Enroller enrolls records by hand and cancels executions.
type Enroller interface {
	EnrollManually(ctx context.Context, tenantID, workflowID, recordID, enrolledBy string) (trigger.EnrollmentResult, error)
	CancelExecution(ctx context.Context, tenantID, executionID, cancelledBy string) (*models.WorkflowExecution, error)
}

type Execution struct {
	persistence persistence.Persistence
	enroller    Enroller
	queue       queue.Queue
}

// NewExecution creates a new execution service.
func NewExecution(persistence persistence.Persistence, enroller Enroller, q queue.Queue) *Execution {
	return &Execution{
		persistence: persistence,
		enroller:    enroller,
		queue:       q,
	}
}

// Enroll enrolls one record into a workflow on behalf of a user.
func (e *Execution) Enroll(ctx context.Context, tenantID, workflowID, recordID, enrolledBy string) (trigger.EnrollmentResult, error) {
	if strings.TrimSpace(recordID) == "" {
		return trigger.EnrollmentResult{}, NewValidationError("Enroll", "RECORD_ID_REQUIRED", "record_id is required", ErrInvalidRequest)
	}

	return e.enroller.EnrollManually(ctx, tenantID, workflowID, recordID, enrolledBy)
}

// ListByWorkflow returns the most recent executions of a workflow.
func (e *Execution) ListByWorkflow(ctx context.Context, tenantID, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	_, err := e.persistence.WorkflowRepository().GetByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultExecutionLimit
	}

	if limit > maxExecutionLimit {
		limit = maxExecutionLimit
	}

	executions, err := e.persistence.ExecutionRepository().ListByWorkflow(ctx, tenantID, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

// FetchByID retrieves an execution by its ID.
func (e *Execution) FetchByID(ctx context.Context, tenantID, id string) (*models.WorkflowExecution, error) {
	return e.persistence.ExecutionRepository().GetByID(ctx, tenantID, id)
}

// Logs returns the audit trail of an execution, oldest first.
func (e *Execution) Logs(ctx context.Context, tenantID, id string) ([]*models.WorkflowExecutionLog, error) {
	_, err := e.FetchByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	logs, err := e.persistence.ExecutionLogRepository().ListByExecution(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}

	return logs, nil
}

// Cancel stops a running or waiting execution.
func (e *Execution) Cancel(ctx context.Context, tenantID, id, cancelledBy string) (*models.WorkflowExecution, error) {
	return e.enroller.CancelExecution(ctx, tenantID, id, cancelledBy)
}

// DeliverEvent resumes an execution parked at an until_event wait. The step processor checks
// the event name against the wait, so a mismatching event is accepted here and ignored there.
func (e *Execution) DeliverEvent(ctx context.Context, tenantID, id string, event models.ExternalEvent) error {
	event.Name = strings.TrimSpace(event.Name)
	if event.Name == "" {
		return NewValidationError("DeliverEvent", "EVENT_NAME_REQUIRED", "event name is required", ErrEventNameRequired)
	}

	execution, err := e.FetchByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionStatusWaiting || execution.Metadata.WaitingForEvent == "" {
		return &ServiceError{
			Op:      "DeliverEvent",
			Code:    "NOT_WAITING_FOR_EVENT",
			Message: fmt.Sprintf("execution %s is %s and not waiting for an event", id, execution.Status),
			Err:     ErrNotWaitingForEvent,
		}
	}

	err = e.queue.Enqueue(ctx, models.StepMessage{
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		TenantID:    execution.TenantID,
		StepID:      execution.CurrentStepID,
		Event:       &event,
	})
	if err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}

	return nil
}
