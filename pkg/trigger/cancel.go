package trigger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/petflow/pkg/engine"
	"github.com/dukex/petflow/pkg/metrics"
	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence"
)

const cancelAttempts = 3

var ErrExecutionNotLive = errors.New("execution is not running or waiting")

// Unenroll cancels the live execution of a record in a workflow. It reports false when the
// record had none.
func (e *Evaluator) Unenroll(ctx context.Context, tenantID, workflowID, recordID, cancelledBy string) (bool, error) {
	live, err := e.deps.Executions.FindLive(ctx, tenantID, workflowID, recordID)
	if err != nil {
		return false, fmt.Errorf("failed to look up live execution: %w", err)
	}

	if live == nil {
		return false, nil
	}

	return e.cancel(ctx, live, cancelledBy, models.ReasonUnenrolled, models.LogUnenrolled)
}

// CancelExecution cancels one execution by id.
func (e *Evaluator) CancelExecution(ctx context.Context, tenantID, executionID, cancelledBy string) (*models.WorkflowExecution, error) {
	execution, err := e.deps.Executions.GetByID(ctx, tenantID, executionID)
	if err != nil {
		return nil, err
	}

	cancelled, err := e.cancel(ctx, execution, cancelledBy, models.ReasonCancelled, models.LogCancelled)
	if err != nil {
		return nil, err
	}

	if !cancelled {
		return execution, fmt.Errorf("execution %s is %s: %w", executionID, execution.Status, ErrExecutionNotLive)
	}

	return execution, nil
}

// CancelWorkflow cancels every live execution of a workflow and returns how many it cancelled.
func (e *Evaluator) CancelWorkflow(ctx context.Context, tenantID, workflowID, cancelledBy string) (int, error) {
	live, err := e.deps.Executions.ListLiveByWorkflow(ctx, tenantID, workflowID)
	if err != nil {
		return 0, fmt.Errorf("failed to list live executions: %w", err)
	}

	count := 0

	for _, execution := range live {
		cancelled, err := e.cancel(ctx, execution, cancelledBy, models.ReasonCancelled, models.LogCancelled)
		if err != nil {
			return count, err
		}

		if cancelled {
			count++
		}
	}

	return count, nil
}

func (e *Evaluator) unenrollOthers(ctx context.Context, workflow *models.Workflow, recordID string) error {
	live, err := e.deps.Executions.ListLiveByRecord(ctx, workflow.TenantID, workflow.ObjectType, recordID)
	if err != nil {
		return fmt.Errorf("failed to list live executions of record: %w", err)
	}

	for _, execution := range live {
		if execution.WorkflowID == workflow.ID {
			continue
		}

		_, err = e.cancel(ctx, execution, "workflow:"+workflow.ID, models.ReasonUnenrolled, models.LogUnenrolled)
		if err != nil {
			return err
		}
	}

	return nil
}

// cancel moves a live execution to cancelled. A concurrent update is retried against the
// reloaded execution; one that finished in the meantime is left alone and reported as false.
func (e *Evaluator) cancel(
	ctx context.Context,
	execution *models.WorkflowExecution,
	cancelledBy, reason string,
	event models.LogEventType,
) (bool, error) {
	for attempt := 0; attempt < cancelAttempts; attempt++ {
		if !execution.Status.IsLive() {
			return false, nil
		}

		ended := e.now().UTC()

		execution.Status = models.ExecutionStatusCancelled
		execution.EndedAt = &ended
		execution.ScheduledAt = nil
		execution.LeaseUntil = nil
		execution.DispatchPending = false
		execution.Metadata.CompletionReason = reason
		execution.Metadata.CancelledBy = cancelledBy
		execution.Metadata.WaitingForEvent = ""

		err := e.deps.Executions.Update(ctx, execution)
		if err == nil {
			e.logbook.Write(ctx, execution, engine.Entry{
				StepID:   execution.CurrentStepID,
				Event:    event,
				Message:  "Execution cancelled",
				Metadata: map[string]any{"cancelled_by": cancelledBy, "reason": reason},
			})
			metrics.RecordExecutionFinished(string(execution.Status), reason)

			e.logger.InfoContext(ctx, "Execution cancelled",
				"tenant_id", execution.TenantID,
				"workflow_id", execution.WorkflowID,
				"execution_id", execution.ID,
				"cancelled_by", cancelledBy)

			return true, nil
		}

		if !errors.Is(err, persistence.ErrExecutionConflict) {
			return false, fmt.Errorf("failed to cancel execution %s: %w", execution.ID, err)
		}

		reloaded, err := e.deps.Executions.GetByID(ctx, execution.TenantID, execution.ID)
		if err != nil {
			return false, fmt.Errorf("failed to reload execution %s: %w", execution.ID, err)
		}

		*execution = *reloaded
	}

	return false, fmt.Errorf("failed to cancel execution %s: %w", execution.ID, persistence.ErrExecutionConflict)
}
