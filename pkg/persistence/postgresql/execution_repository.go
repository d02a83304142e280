package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/google/uuid"
)

const executionColumns = `
	id
  , tenant_id
  , workflow_id
  , workflow_revision
  , record_id
  , record_type
  , status
  , current_step_id
  , previous_step_id
  , scheduled_at
  , metadata
  , version
  , lease_until
  , dispatch_pending
  , enrolled_at
  , updated_at
  , ended_at
`

// ExecutionRepository handles workflow execution database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts a new execution. The partial unique index on live executions turns a
// concurrent duplicate enrollment into ErrExecutionAlreadyActive.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
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

	metadataJSON, err := json.Marshal(execution.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal execution metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		execution.ID,
		execution.TenantID,
		execution.WorkflowID,
		execution.WorkflowRevision,
		execution.RecordID,
		execution.RecordType,
		execution.Status,
		nullString(execution.CurrentStepID),
		nullString(execution.PreviousStepID),
		execution.ScheduledAt,
		metadataJSON,
		execution.Version,
		execution.LeaseUntil,
		execution.DispatchPending,
		execution.EnrolledAt,
		execution.UpdatedAt,
		execution.EndedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyActive)
		}

		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// GetByID returns an execution of the tenant.
func (r *ExecutionRepository) GetByID(ctx context.Context, tenantID, id string) (*models.WorkflowExecution, error) {
	if uuid.Validate(id) != nil {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// Update writes the execution when the stored version matches execution.Version.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	metadataJSON, err := json.Marshal(execution.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal execution metadata: %w", err)
	}

	updatedAt := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_executions SET
			status = $3,
			current_step_id = $4,
			previous_step_id = $5,
			scheduled_at = $6,
			metadata = $7,
			lease_until = $8,
			dispatch_pending = $9,
			updated_at = $10,
			ended_at = $11,
			version = version + 1
		WHERE tenant_id = $1 AND id = $2 AND version = $12
	`,
		execution.TenantID,
		execution.ID,
		execution.Status,
		nullString(execution.CurrentStepID),
		nullString(execution.PreviousStepID),
		execution.ScheduledAt,
		metadataJSON,
		execution.LeaseUntil,
		execution.DispatchPending,
		updatedAt,
		execution.EndedAt,
		execution.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionConflict)
	}

	execution.Version++
	execution.UpdatedAt = updatedAt

	return nil
}

// FindLive returns the running or waiting execution of a (workflow, record) pair, or nil.
func (r *ExecutionRepository) FindLive(ctx context.Context, tenantID, workflowID, recordID string) (*models.WorkflowExecution, error) {
	return r.first(ctx, `SELECT `+executionColumns+` FROM workflow_executions
		WHERE tenant_id = $1 AND workflow_id = $2 AND record_id = $3 AND status IN ('running', 'waiting')
		LIMIT 1`, tenantID, workflowID, recordID)
}

// LatestForRecord returns the most recent execution of a (workflow, record) pair, or nil.
func (r *ExecutionRepository) LatestForRecord(ctx context.Context, tenantID, workflowID, recordID string) (*models.WorkflowExecution, error) {
	return r.first(ctx, `SELECT `+executionColumns+` FROM workflow_executions
		WHERE tenant_id = $1 AND workflow_id = $2 AND record_id = $3
		ORDER BY enrolled_at DESC
		LIMIT 1`, tenantID, workflowID, recordID)
}

// ListLiveByRecord returns every running or waiting execution of a record across workflows.
func (r *ExecutionRepository) ListLiveByRecord(
	ctx context.Context,
	tenantID string,
	recordType models.RecordType,
	recordID string,
) ([]*models.WorkflowExecution, error) {
	return r.query(ctx, `SELECT `+executionColumns+` FROM workflow_executions
		WHERE tenant_id = $1 AND record_type = $2 AND record_id = $3 AND status IN ('running', 'waiting')
		ORDER BY enrolled_at`, tenantID, recordType, recordID)
}

// ListLiveByWorkflow returns every running or waiting execution of a workflow.
func (r *ExecutionRepository) ListLiveByWorkflow(ctx context.Context, tenantID, workflowID string) ([]*models.WorkflowExecution, error) {
	return r.query(ctx, `SELECT `+executionColumns+` FROM workflow_executions
		WHERE tenant_id = $1 AND workflow_id = $2 AND status IN ('running', 'waiting')
		ORDER BY enrolled_at`, tenantID, workflowID)
}

// ListByWorkflow returns the newest executions of a workflow.
func (r *ExecutionRepository) ListByWorkflow(
	ctx context.Context,
	tenantID, workflowID string,
	limit int,
) ([]*models.WorkflowExecution, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	return r.query(ctx, `SELECT `+executionColumns+` FROM workflow_executions
		WHERE tenant_id = $1 AND workflow_id = $2
		ORDER BY enrolled_at DESC
		LIMIT $3`, tenantID, workflowID, limit)
}

func (r *ExecutionRepository) first(ctx context.Context, query string, args ...any) (*models.WorkflowExecution, error) {
	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) scanExecution(row scanner) (*models.WorkflowExecution, error) {
	var (
		execution             models.WorkflowExecution
		currentStep, prevStep sql.NullString
		metadataJSON          []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.TenantID,
		&execution.WorkflowID,
		&execution.WorkflowRevision,
		&execution.RecordID,
		&execution.RecordType,
		&execution.Status,
		&currentStep,
		&prevStep,
		&execution.ScheduledAt,
		&metadataJSON,
		&execution.Version,
		&execution.LeaseUntil,
		&execution.DispatchPending,
		&execution.EnrolledAt,
		&execution.UpdatedAt,
		&execution.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.CurrentStepID = currentStep.String
	execution.PreviousStepID = prevStep.String

	err = json.Unmarshal(metadataJSON, &execution.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution metadata: %w", err)
	}

	return &execution, nil
}
