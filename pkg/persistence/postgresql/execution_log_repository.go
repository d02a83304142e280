package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/google/uuid"
)

// ExecutionLogRepository handles the execution audit trail.
type ExecutionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(db *sql.DB, logger *slog.Logger) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db, logger: logger}
}

// Append inserts a log entry.
func (r *ExecutionLogRepository) Append(ctx context.Context, entry *models.WorkflowExecutionLog) error {
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate log ID: %w", err)
		}

		entry.ID = id.String()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var metadataJSON []byte

	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal log metadata: %w", err)
		}

		metadataJSON = encoded
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_execution_logs (id, execution_id, tenant_id, step_id, event_type, status,
			message, error, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID,
		entry.ExecutionID,
		entry.TenantID,
		entry.StepID,
		entry.EventType,
		entry.Status,
		entry.Message,
		entry.Error,
		metadataJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}

	return nil
}

// ListByExecution returns an execution's log in insertion order.
func (r *ExecutionLogRepository) ListByExecution(
	ctx context.Context,
	tenantID, executionID string,
) ([]*models.WorkflowExecutionLog, error) {
	if uuid.Validate(executionID) != nil {
		return []*models.WorkflowExecutionLog{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, tenant_id, step_id, event_type, status, message, error, metadata, created_at
		FROM workflow_execution_logs
		WHERE tenant_id = $1 AND execution_id = $2
		ORDER BY created_at, id
	`, tenantID, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	entries := make([]*models.WorkflowExecutionLog, 0)

	for rows.Next() {
		var (
			entry        models.WorkflowExecutionLog
			metadataJSON []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.ExecutionID,
			&entry.TenantID,
			&entry.StepID,
			&entry.EventType,
			&entry.Status,
			&entry.Message,
			&entry.Error,
			&metadataJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		if len(metadataJSON) > 0 {
			err = json.Unmarshal(metadataJSON, &entry.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal log metadata: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return entries, nil
}
