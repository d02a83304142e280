package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/google/uuid"
)

const (
	workflowsDir = "workflows"
	revisionsDir = "workflow_revisions"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	store *store
}

// NewWorkflowRepository creates a new workflow repository rooted at root.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{store: &store{root: root}}
}

// GetByID retrieves a non-deleted workflow of the tenant.
func (wr *WorkflowRepository) GetByID(_ context.Context, tenantID, id string) (*models.Workflow, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	return wr.get(tenantID, id, "GetByID")
}

func (wr *WorkflowRepository) get(tenantID, id, op string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := wr.store.read(workflowsDir, id, &workflow)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewWorkflowError(op, tenantID, id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", id, err)
	}

	if workflow.TenantID != tenantID || workflow.DeletedAt != nil {
		return nil, persistence.NewWorkflowError(op, tenantID, id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

// List returns the tenant's workflows, newest first.
func (wr *WorkflowRepository) List(_ context.Context, tenantID string) ([]*models.Workflow, error) {
	workflows, err := wr.filter(func(w *models.Workflow) bool { return w.TenantID == tenantID })
	if err != nil {
		return nil, err
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// ListAll returns every workflow across tenants.
func (wr *WorkflowRepository) ListAll(_ context.Context) ([]*models.Workflow, error) {
	return wr.filter(func(*models.Workflow) bool { return true })
}

// ListActiveByObjectType returns the tenant's active workflows targeting objectType.
func (wr *WorkflowRepository) ListActiveByObjectType(
	_ context.Context,
	tenantID string,
	objectType models.RecordType,
) ([]*models.Workflow, error) {
	return wr.filter(func(w *models.Workflow) bool {
		return w.TenantID == tenantID && w.ObjectType == objectType && w.IsActive()
	})
}

// ListActiveScheduled returns the active workflows with a scheduled trigger, across tenants.
func (wr *WorkflowRepository) ListActiveScheduled(_ context.Context) ([]*models.Workflow, error) {
	return wr.filter(func(w *models.Workflow) bool {
		return w.IsActive() && w.EntryCondition.TriggerType == models.TriggerScheduled
	})
}

func (wr *WorkflowRepository) filter(keep func(*models.Workflow) bool) ([]*models.Workflow, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	workflows := make([]*models.Workflow, 0)

	err := each(wr.store, workflowsDir, func(w *models.Workflow) error {
		if w.DeletedAt == nil && keep(w) {
			workflows = append(workflows, w)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// Save writes a workflow to the file system.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

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

	for _, step := range workflow.Steps {
		step.WorkflowID = workflow.ID
	}

	return wr.store.write(workflowsDir, workflow.ID, workflow)
}

// Delete soft deletes a workflow.
func (wr *WorkflowRepository) Delete(_ context.Context, tenantID, id string) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	workflow, err := wr.get(tenantID, id, "Delete")
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now
	workflow.UpdatedAt = now

	return wr.store.write(workflowsDir, id, workflow)
}

// MarkTriggered stamps last_triggered_at.
func (wr *WorkflowRepository) MarkTriggered(_ context.Context, tenantID, id string, at time.Time) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	workflow, err := wr.get(tenantID, id, "MarkTriggered")
	if err != nil {
		return err
	}

	at = at.UTC()
	workflow.LastTriggeredAt = &at

	return wr.store.write(workflowsDir, id, workflow)
}

// SaveRevision stores an immutable step graph snapshot. Saving the same revision twice is a no-op.
func (wr *WorkflowRepository) SaveRevision(_ context.Context, revision *models.WorkflowRevision) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	id := revisionID(revision.WorkflowID, revision.Revision)

	var existing models.WorkflowRevision

	err := wr.store.read(revisionsDir, id, &existing)
	if err == nil {
		return nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if revision.CreatedAt.IsZero() {
		revision.CreatedAt = time.Now().UTC()
	}

	return wr.store.write(revisionsDir, id, revision)
}

// GetRevision loads the snapshot of a workflow revision.
func (wr *WorkflowRepository) GetRevision(
	_ context.Context,
	tenantID, workflowID string,
	revision int,
) (*models.WorkflowRevision, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	var snapshot models.WorkflowRevision

	err := wr.store.read(revisionsDir, revisionID(workflowID, revision), &snapshot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewWorkflowError("GetRevision", tenantID, workflowID, persistence.ErrRevisionNotFound)
		}

		return nil, err
	}

	if snapshot.TenantID != tenantID {
		return nil, persistence.NewWorkflowError("GetRevision", tenantID, workflowID, persistence.ErrRevisionNotFound)
	}

	return &snapshot, nil
}

func revisionID(workflowID string, revision int) string {
	return workflowID + "-r" + strconv.Itoa(revision)
}
