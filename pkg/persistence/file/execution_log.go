package file

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/google/uuid"
)

const executionLogsDir = "execution_logs"

// ExecutionLogRepository keeps one JSON array of log entries per execution.
type ExecutionLogRepository struct {
	store *store
}

// Append adds an entry to the execution's log file.
func (lr *ExecutionLogRepository) Append(_ context.Context, entry *models.WorkflowExecutionLog) error {
	lr.store.mu.Lock()
	defer lr.store.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	entries, err := lr.read(entry.ExecutionID)
	if err != nil {
		return err
	}

	entries = append(entries, entry)

	return lr.store.write(executionLogsDir, entry.ExecutionID, entries)
}

// ListByExecution returns an execution's log in insertion order.
func (lr *ExecutionLogRepository) ListByExecution(_ context.Context, tenantID, executionID string) ([]*models.WorkflowExecutionLog, error) {
	lr.store.mu.RLock()
	defer lr.store.mu.RUnlock()

	entries, err := lr.read(executionID)
	if err != nil {
		return nil, err
	}

	result := make([]*models.WorkflowExecutionLog, 0, len(entries))

	for _, entry := range entries {
		if entry.TenantID == tenantID {
			result = append(result, entry)
		}
	}

	return result, nil
}

func (lr *ExecutionLogRepository) read(executionID string) ([]*models.WorkflowExecutionLog, error) {
	var entries []*models.WorkflowExecutionLog

	err := lr.store.read(executionLogsDir, executionID, &entries)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return entries, nil
}
