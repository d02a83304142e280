package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/google/uuid"
)

const executionsDir = "executions"

// ExecutionRepository handles workflow execution file operations.
type ExecutionRepository struct {
	store *store
}

// Create writes a new execution unless the (workflow, record) pair already has a live one.
func (er *ExecutionRepository) Create(_ context.Context, execution *models.WorkflowExecution) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	if execution.Status.IsLive() {
		live, err := er.find(func(e *models.WorkflowExecution) bool {
			return e.WorkflowID == execution.WorkflowID && e.RecordID == execution.RecordID && e.Status.IsLive()
		})
		if err != nil {
			return err
		}

		if len(live) > 0 {
			return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyActive)
		}
	}

	now := time.Now().UTC()

	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	if execution.EnrolledAt.IsZero() {
		execution.EnrolledAt = now
	}

	execution.UpdatedAt = now
	execution.Version = 1

	return er.store.write(executionsDir, execution.ID, execution)
}

// GetByID returns an execution of the tenant.
func (er *ExecutionRepository) GetByID(_ context.Context, tenantID, id string) (*models.WorkflowExecution, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	return er.get(tenantID, id, "GetByID")
}

func (er *ExecutionRepository) get(tenantID, id, op string) (*models.WorkflowExecution, error) {
	var execution models.WorkflowExecution

	err := er.store.read(executionsDir, id, &execution)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewExecutionError(op, id, persistence.ErrExecutionNotFound)
		}

		return nil, err
	}

	if execution.TenantID != tenantID {
		return nil, persistence.NewExecutionError(op, id, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

// Update writes the execution when the stored version matches execution.Version.
func (er *ExecutionRepository) Update(_ context.Context, execution *models.WorkflowExecution) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	current, err := er.get(execution.TenantID, execution.ID, "Update")
	if err != nil {
		return err
	}

	if current.Version != execution.Version {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionConflict)
	}

	updated := *execution
	updated.Version++
	updated.UpdatedAt = time.Now().UTC()

	err = er.store.write(executionsDir, execution.ID, &updated)
	if err != nil {
		return err
	}

	execution.Version = updated.Version
	execution.UpdatedAt = updated.UpdatedAt

	return nil
}

// FindLive returns the running or waiting execution of a (workflow, record) pair, or nil.
func (er *ExecutionRepository) FindLive(_ context.Context, tenantID, workflowID, recordID string) (*models.WorkflowExecution, error) {
	executions, err := er.list(func(e *models.WorkflowExecution) bool {
		return e.TenantID == tenantID && e.WorkflowID == workflowID && e.RecordID == recordID && e.Status.IsLive()
	})
	if err != nil || len(executions) == 0 {
		return nil, err
	}

	return executions[0], nil
}

// LatestForRecord returns the most recent execution of a (workflow, record) pair, or nil.
func (er *ExecutionRepository) LatestForRecord(_ context.Context, tenantID, workflowID, recordID string) (*models.WorkflowExecution, error) {
	executions, err := er.list(func(e *models.WorkflowExecution) bool {
		return e.TenantID == tenantID && e.WorkflowID == workflowID && e.RecordID == recordID
	})
	if err != nil || len(executions) == 0 {
		return nil, err
	}

	return executions[len(executions)-1], nil
}

// ListLiveByRecord returns every running or waiting execution of a record across workflows.
func (er *ExecutionRepository) ListLiveByRecord(
	_ context.Context,
	tenantID string,
	recordType models.RecordType,
	recordID string,
) ([]*models.WorkflowExecution, error) {
	return er.list(func(e *models.WorkflowExecution) bool {
		return e.TenantID == tenantID && e.RecordType == recordType && e.RecordID == recordID && e.Status.IsLive()
	})
}

// ListLiveByWorkflow returns every running or waiting execution of a workflow.
func (er *ExecutionRepository) ListLiveByWorkflow(_ context.Context, tenantID, workflowID string) ([]*models.WorkflowExecution, error) {
	return er.list(func(e *models.WorkflowExecution) bool {
		return e.TenantID == tenantID && e.WorkflowID == workflowID && e.Status.IsLive()
	})
}

// ListByWorkflow returns the newest executions of a workflow.
func (er *ExecutionRepository) ListByWorkflow(
	_ context.Context,
	tenantID, workflowID string,
	limit int,
) ([]*models.WorkflowExecution, error) {
	executions, err := er.list(func(e *models.WorkflowExecution) bool {
		return e.TenantID == tenantID && e.WorkflowID == workflowID
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].EnrolledAt.After(executions[j].EnrolledAt)
	})

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	if len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

// list returns matching executions ordered by enrollment time.
func (er *ExecutionRepository) list(keep func(*models.WorkflowExecution) bool) ([]*models.WorkflowExecution, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	return er.find(keep)
}

func (er *ExecutionRepository) find(keep func(*models.WorkflowExecution) bool) ([]*models.WorkflowExecution, error) {
	executions := make([]*models.WorkflowExecution, 0)

	err := each(er.store, executionsDir, func(e *models.WorkflowExecution) error {
		if keep(e) {
			executions = append(executions, e)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(executions, func(i, j int) bool {
		if executions[i].EnrolledAt.Equal(executions[j].EnrolledAt) {
			return executions[i].ID < executions[j].ID
		}

		return executions[i].EnrolledAt.Before(executions[j].EnrolledAt)
	})

	return executions, nil
}
