package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/petflow/pkg/condition"
	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// ConfigValidator checks an action step config at save time.
type ConfigValidator interface {
	ValidateConfig(ctx context.Context, actionType string, config json.RawMessage) error
}

// WorkflowCanceller cancels the in-flight executions of a workflow.
type WorkflowCanceller interface {
	CancelWorkflow(ctx context.Context, tenantID, workflowID, cancelledBy string) (int, error)
}

type Workflow struct {
	persistence persistence.Persistence
	actions     ConfigValidator
	canceller   WorkflowCanceller
	validate    *validator.Validate
	now         func() time.Time
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, actions ConfigValidator, canceller WorkflowCanceller) *Workflow {
	return &Workflow{
		persistence: persistence,
		actions:     actions,
		canceller:   canceller,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         time.Now,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateWorkflowRequest is the definition of a new workflow. Steps are saved separately.
type CreateWorkflowRequest struct {
	Name           string                `json:"name"            validate:"required,min=3"`
	Description    string                `json:"description"`
	ObjectType     models.RecordType     `json:"object_type"     validate:"required"`
	EntryCondition models.EntryCondition `json:"entry_condition"`
	Settings       models.Settings       `json:"settings"`
}

// UpdateWorkflowRequest changes the definition of a workflow. Nil fields are left alone.
type UpdateWorkflowRequest struct {
	Name           *string                `json:"name,omitempty"            validate:"omitempty,min=3"`
	Description    *string                `json:"description,omitempty"`
	EntryCondition *models.EntryCondition `json:"entry_condition,omitempty"`
	Settings       *models.Settings       `json:"settings,omitempty"`
}

// SaveStepsRequest replaces the step graph of a workflow.
type SaveStepsRequest struct {
	StartStepID string                 `json:"start_step_id"`
	Steps       []*models.WorkflowStep `json:"steps"`
}

// List returns the workflows of a tenant, optionally filtered by status.
func (w *Workflow) List(ctx context.Context, tenantID string, status *models.WorkflowStatus) ([]*models.Workflow, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrTenantRequired
	}

	if status != nil && !validStatus(*status) {
		return nil, NewValidationError("List", "INVALID_STATUS", fmt.Sprintf("invalid status '%s'", *status), ErrInvalidStatus)
	}

	workflows, err := w.persistence.WorkflowRepository().List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	if status == nil {
		return workflows, nil
	}

	filtered := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if workflow.Status == *status {
			filtered = append(filtered, workflow)
		}
	}

	return filtered, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create stores a new draft workflow.
func (w *Workflow) Create(ctx context.Context, tenantID string, req CreateWorkflowRequest) (*models.Workflow, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrTenantRequired
	}

	err := w.validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("Create", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	if !req.ObjectType.Valid() {
		return nil, NewValidationError("Create", "INVALID_OBJECT_TYPE",
			fmt.Sprintf("unknown object type '%s'", req.ObjectType), ErrInvalidRequest)
	}

	err = w.validateEntryCondition(req.EntryCondition, req.Settings)
	if err != nil {
		return nil, err
	}

	workflow := &models.Workflow{
		TenantID:       tenantID,
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		ObjectType:     req.ObjectType,
		Status:         models.WorkflowStatusDraft,
		EntryCondition: req.EntryCondition,
		Settings:       req.Settings,
		Steps:          []*models.WorkflowStep{},
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update changes name, description, entry condition or settings. These are read live by running
// executions, so they do not bump the revision.
func (w *Workflow) Update(ctx context.Context, tenantID, id string, req UpdateWorkflowRequest) (*models.Workflow, error) {
	err := w.validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("Update", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	workflow, err := w.FetchByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		workflow.Name = strings.TrimSpace(*req.Name)
	}

	if req.Description != nil {
		workflow.Description = *req.Description
	}

	if req.EntryCondition != nil {
		workflow.EntryCondition = *req.EntryCondition
	}

	if req.Settings != nil {
		workflow.Settings = *req.Settings
	}

	err = w.validateEntryCondition(workflow.EntryCondition, workflow.Settings)
	if err != nil {
		return nil, err
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// SaveSteps validates and stores a new step graph under the next revision. Executions already
// running keep following the revision they enrolled under.
func (w *Workflow) SaveSteps(ctx context.Context, tenantID, id string, req SaveStepsRequest) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	graph := models.NewStepGraph(req.StartStepID, req.Steps)

	err = w.validateSteps(ctx, graph)
	if err != nil {
		return nil, err
	}

	workflow.StartStepID = graph.Start()
	workflow.Steps = graph.Steps()
	workflow.Revision++

	repo := w.persistence.WorkflowRepository()

	err = repo.Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save steps: %w", err)
	}

	err = repo.SaveRevision(ctx, &models.WorkflowRevision{
		WorkflowID:  workflow.ID,
		TenantID:    workflow.TenantID,
		Revision:    workflow.Revision,
		StartStepID: workflow.StartStepID,
		Steps:       workflow.Steps,
		CreatedAt:   w.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save revision %d: %w", workflow.Revision, err)
	}

	return workflow, nil
}

// Activate starts enrolling records. The workflow needs a valid step graph and entry condition.
func (w *Workflow) Activate(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if workflow.Revision == 0 || len(workflow.Steps) == 0 {
		return nil, &ServiceError{Op: "Activate", Code: "NO_STEPS", Message: "workflow has no steps", Err: ErrCannotActivate}
	}

	err = w.validateEntryCondition(workflow.EntryCondition, workflow.Settings)
	if err == nil {
		err = w.validateSteps(ctx, workflow.Graph())
	}

	if err != nil {
		return nil, &ServiceError{Op: "Activate", Code: "INVALID_WORKFLOW", Message: err.Error(), Err: errors.Join(ErrCannotActivate, err)}
	}

	return w.setStatus(ctx, workflow, models.WorkflowStatusActive)
}

// Pause stops enrolling records. In-flight executions keep running.
func (w *Workflow) Pause(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	return w.setStatus(ctx, workflow, models.WorkflowStatusPaused)
}

func (w *Workflow) setStatus(ctx context.Context, workflow *models.Workflow, status models.WorkflowStatus) (*models.Workflow, error) {
	if workflow.Status == status {
		return workflow, nil
	}

	workflow.Status = status

	err := w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to set workflow status to %s: %w", status, err)
	}

	return workflow, nil
}

// Delete soft-deletes a workflow and cancels its live executions.
func (w *Workflow) Delete(ctx context.Context, tenantID, id string, deletedBy string) (int, error) {
	_, err := w.FetchByID(ctx, tenantID, id)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	if w.canceller != nil {
		cancelled, err = w.canceller.CancelWorkflow(ctx, tenantID, id, deletedBy)
		if err != nil {
			return cancelled, fmt.Errorf("failed to cancel executions: %w", err)
		}
	}

	err = w.persistence.WorkflowRepository().Delete(ctx, tenantID, id)
	if err != nil {
		return cancelled, fmt.Errorf("failed to delete workflow: %w", err)
	}

	return cancelled, nil
}

// WorkflowValidation is the result of validating one stored workflow.
type WorkflowValidation struct {
	TenantID   string
	WorkflowID string
	Name       string
	Status     models.WorkflowStatus
	Err        error
}

// ValidateAll checks the entry condition and step graph of every stored workflow.
func (w *Workflow) ValidateAll(ctx context.Context) ([]WorkflowValidation, error) {
	workflows, err := w.persistence.WorkflowRepository().ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	results := make([]WorkflowValidation, 0, len(workflows))

	for _, workflow := range workflows {
		err := w.validateEntryCondition(workflow.EntryCondition, workflow.Settings)
		if err == nil && len(workflow.Steps) > 0 {
			err = w.validateSteps(ctx, workflow.Graph())
		}

		results = append(results, WorkflowValidation{
			TenantID:   workflow.TenantID,
			WorkflowID: workflow.ID,
			Name:       workflow.Name,
			Status:     workflow.Status,
			Err:        err,
		})
	}

	return results, nil
}

func (w *Workflow) validateEntryCondition(entry models.EntryCondition, settings models.Settings) error {
	invalid := func(message string) error {
		return NewValidationError("validateEntryCondition", "INVALID_ENTRY_CONDITION", message, ErrInvalidEntryCondition)
	}

	err := w.validate.Struct(entry)
	if err != nil {
		return invalid(err.Error())
	}

	err = w.validate.Struct(settings)
	if err != nil {
		return invalid(err.Error())
	}

	if entry.TriggerType == models.TriggerScheduled {
		if entry.Schedule == nil {
			return invalid("scheduled trigger requires a schedule")
		}

		err = entry.Schedule.Validate()
		if err != nil {
			return invalid(err.Error())
		}
	}

	unknown := condition.UnknownOperators(entry.Filters)
	if settings.GoalConfig != nil {
		unknown = append(unknown, condition.UnknownOperators(settings.GoalConfig.Conditions)...)
	}

	if len(unknown) > 0 {
		return invalid("unknown operators: " + strings.Join(unknown, ", "))
	}

	return nil
}

// validateSteps checks the graph shape, every step's fields, action configs, wait configs and
// condition operators, and reports all problems at once.
func (w *Workflow) validateSteps(ctx context.Context, graph *models.StepGraph) error {
	var problems []string

	err := graph.Validate()
	if err != nil {
		var graphErr *models.GraphError
		if errors.As(err, &graphErr) {
			problems = append(problems, graphErr.Problems...)
		} else {
			problems = append(problems, err.Error())
		}
	}

	for _, step := range graph.Steps() {
		problems = append(problems, w.validateStep(ctx, step)...)
	}

	if len(problems) > 0 {
		return NewValidationError("validateSteps", "INVALID_STEPS", strings.Join(problems, "; "), ErrInvalidSteps)
	}

	return nil
}

func (w *Workflow) validateStep(ctx context.Context, step *models.WorkflowStep) []string {
	var problems []string

	err := w.validate.Struct(step)
	if err != nil {
		problems = append(problems, fmt.Sprintf("step %q: %v", step.ID, err))
	}

	switch step.StepType {
	case models.StepTypeAction:
		if w.actions != nil && step.ActionType != "" {
			err = w.actions.ValidateConfig(ctx, step.ActionType, step.Config)
			if err != nil {
				problems = append(problems, fmt.Sprintf("step %q: %v", step.ID, err))
			}
		}
	case models.StepTypeWait:
		cfg, err := step.WaitConfig()
		if err == nil {
			_, _, err = cfg.ResumeAt(w.now())
		}

		if err != nil {
			problems = append(problems, fmt.Sprintf("step %q: %v", step.ID, err))
		}
	case models.StepTypeGate:
		if step.Condition == nil {
			problems = append(problems, fmt.Sprintf("gate step %q has no condition", step.ID))
		} else if unknown := condition.UnknownGroupOperators(*step.Condition); len(unknown) > 0 {
			problems = append(problems, fmt.Sprintf("step %q: unknown operators: %s", step.ID, strings.Join(unknown, ", ")))
		}
	case models.StepTypeDeterminator:
		for _, branch := range step.Branches {
			if unknown := condition.UnknownGroupOperators(branch.Condition); len(unknown) > 0 {
				problems = append(problems, fmt.Sprintf("step %q branch %q: unknown operators: %s",
					step.ID, branch.ID, strings.Join(unknown, ", ")))
			}
		}
	}

	return problems
}

func validStatus(status models.WorkflowStatus) bool {
	switch status {
	case models.WorkflowStatusDraft, models.WorkflowStatusActive, models.WorkflowStatusPaused:
		return true
	default:
		return false
	}
}
