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

const workflowColumns = `
	id
  , tenant_id
  , name
  , description
  , object_type
  , status
  , entry_condition
  , settings
  , start_step_id
  , revision
  , last_triggered_at
  , created_at
  , updated_at
  , deleted_at
`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetByID returns a non-deleted workflow of the tenant.
func (r *WorkflowRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	if uuid.Validate(id) != nil {
		return nil, persistence.NewWorkflowError("GetByID", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", tenantID, id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadSteps(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// List returns the tenant's workflows, newest first.
func (r *WorkflowRepository) List(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	return r.query(ctx, `SELECT `+workflowColumns+` FROM workflows
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`, tenantID)
}

// ListAll returns every workflow across tenants.
func (r *WorkflowRepository) ListAll(ctx context.Context) ([]*models.Workflow, error) {
	return r.query(ctx, `SELECT `+workflowColumns+` FROM workflows
		WHERE deleted_at IS NULL
		ORDER BY created_at`)
}

// ListActiveByObjectType returns the tenant's active workflows targeting objectType.
func (r *WorkflowRepository) ListActiveByObjectType(
	ctx context.Context,
	tenantID string,
	objectType models.RecordType,
) ([]*models.Workflow, error) {
	return r.query(ctx, `SELECT `+workflowColumns+` FROM workflows
		WHERE tenant_id = $1 AND object_type = $2 AND status = 'active' AND deleted_at IS NULL
		ORDER BY created_at`, tenantID, objectType)
}

// ListActiveScheduled returns the active workflows with a scheduled trigger, across tenants.
func (r *WorkflowRepository) ListActiveScheduled(ctx context.Context) ([]*models.Workflow, error) {
	return r.query(ctx, `SELECT `+workflowColumns+` FROM workflows
		WHERE status = 'active' AND deleted_at IS NULL AND entry_condition->>'triggerType' = 'scheduled'
		ORDER BY created_at`)
}

// Save upserts a workflow and replaces its steps.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	entryJSON, err := json.Marshal(workflow.EntryCondition)
	if err != nil {
		return fmt.Errorf("failed to marshal entry condition: %w", err)
	}

	settingsJSON, err := json.Marshal(workflow.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, tenant_id, name, description, object_type, status, entry_condition,
			settings, start_step_id, revision, last_triggered_at, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			object_type = EXCLUDED.object_type,
			status = EXCLUDED.status,
			entry_condition = EXCLUDED.entry_condition,
			settings = EXCLUDED.settings,
			start_step_id = EXCLUDED.start_step_id,
			revision = EXCLUDED.revision,
			last_triggered_at = EXCLUDED.last_triggered_at,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
		WHERE workflows.tenant_id = EXCLUDED.tenant_id
	`,
		workflow.ID,
		workflow.TenantID,
		workflow.Name,
		workflow.Description,
		workflow.ObjectType,
		workflow.Status,
		entryJSON,
		settingsJSON,
		nullString(workflow.StartStepID),
		workflow.Revision,
		workflow.LastTriggeredAt,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_steps WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing steps: %w", err)
	}

	err = r.saveSteps(ctx, tx, workflow)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflows SET deleted_at = NOW(), updated_at = NOW() WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("Delete", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// MarkTriggered stamps last_triggered_at without touching the rest of the definition.
func (r *WorkflowRepository) MarkTriggered(ctx context.Context, tenantID, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflows SET last_triggered_at = $3 WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark workflow triggered: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("MarkTriggered", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// SaveRevision stores an immutable step graph snapshot. Saving the same revision twice is a no-op.
func (r *WorkflowRepository) SaveRevision(ctx context.Context, revision *models.WorkflowRevision) error {
	stepsJSON, err := json.Marshal(revision.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal revision steps: %w", err)
	}

	if revision.CreatedAt.IsZero() {
		revision.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_revisions (workflow_id, tenant_id, revision, start_step_id, steps, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workflow_id, revision) DO NOTHING
	`,
		revision.WorkflowID,
		revision.TenantID,
		revision.Revision,
		nullString(revision.StartStepID),
		stepsJSON,
		revision.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow revision: %w", err)
	}

	return nil
}

// GetRevision loads the snapshot of a workflow revision.
func (r *WorkflowRepository) GetRevision(
	ctx context.Context,
	tenantID, workflowID string,
	revision int,
) (*models.WorkflowRevision, error) {
	var (
		snapshot  models.WorkflowRevision
		startStep sql.NullString
		stepsJSON []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT workflow_id, tenant_id, revision, start_step_id, steps, created_at
		FROM workflow_revisions
		WHERE tenant_id = $1 AND workflow_id = $2 AND revision = $3
	`, tenantID, workflowID, revision).Scan(
		&snapshot.WorkflowID,
		&snapshot.TenantID,
		&snapshot.Revision,
		&startStep,
		&stepsJSON,
		&snapshot.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetRevision", tenantID, workflowID, persistence.ErrRevisionNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow revision: %w", err)
	}

	snapshot.StartStepID = startStep.String

	err = json.Unmarshal(stepsJSON, &snapshot.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal revision steps: %w", err)
	}

	return &snapshot, nil
}

func (r *WorkflowRepository) query(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		err = r.loadSteps(ctx, workflow)
		if err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow     models.Workflow
		entryJSON    []byte
		settingsJSON []byte
		startStep    sql.NullString
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.TenantID,
		&workflow.Name,
		&workflow.Description,
		&workflow.ObjectType,
		&workflow.Status,
		&entryJSON,
		&settingsJSON,
		&startStep,
		&workflow.Revision,
		&workflow.LastTriggeredAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.StartStepID = startStep.String

	err = json.Unmarshal(entryJSON, &workflow.EntryCondition)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry condition: %w", err)
	}

	err = json.Unmarshal(settingsJSON, &workflow.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) loadSteps(ctx context.Context, workflow *models.Workflow) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, step_type, action_type, config, next_step_id, condition, branches
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow steps: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.WorkflowStep, 0)

	for rows.Next() {
		var (
			step                    models.WorkflowStep
			actionType, nextStepID  sql.NullString
			configJSON, conditionJS []byte
			branchesJSON            []byte
		)

		err := rows.Scan(
			&step.ID,
			&step.Name,
			&step.StepType,
			&actionType,
			&configJSON,
			&nextStepID,
			&conditionJS,
			&branchesJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		step.WorkflowID = workflow.ID
		step.ActionType = actionType.String
		step.NextStepID = nextStepID.String

		if len(configJSON) > 0 {
			step.Config = json.RawMessage(configJSON)
		}

		if len(conditionJS) > 0 && string(conditionJS) != "null" {
			err = json.Unmarshal(conditionJS, &step.Condition)
			if err != nil {
				return fmt.Errorf("failed to unmarshal step condition: %w", err)
			}
		}

		if len(branchesJSON) > 0 {
			err = json.Unmarshal(branchesJSON, &step.Branches)
			if err != nil {
				return fmt.Errorf("failed to unmarshal step branches: %w", err)
			}
		}

		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	workflow.Steps = steps

	return nil
}

func (r *WorkflowRepository) saveSteps(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	for position, step := range workflow.Steps {
		step.WorkflowID = workflow.ID

		var conditionJSON, branchesJSON []byte

		if step.Condition != nil {
			encoded, err := json.Marshal(step.Condition)
			if err != nil {
				return fmt.Errorf("failed to marshal step condition: %w", err)
			}

			conditionJSON = encoded
		}

		if len(step.Branches) > 0 {
			encoded, err := json.Marshal(step.Branches)
			if err != nil {
				return fmt.Errorf("failed to marshal step branches: %w", err)
			}

			branchesJSON = encoded
		}

		var configJSON []byte
		if len(step.Config) > 0 {
			configJSON = step.Config
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (workflow_id, id, position, name, step_type, action_type, config,
				next_step_id, condition, branches)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			workflow.ID,
			step.ID,
			position,
			step.Name,
			step.StepType,
			nullString(step.ActionType),
			configJSON,
			nullString(step.NextStepID),
			conditionJSON,
			branchesJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to save step %s: %w", step.ID, err)
		}
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
