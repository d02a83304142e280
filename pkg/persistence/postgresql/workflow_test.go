package postgresql_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWorkflow(tenantID string) *models.Workflow {
	return &models.Workflow{
		TenantID:   tenantID,
		Name:       "Vaccination reminder",
		ObjectType: models.RecordTypePet,
		Status:     models.WorkflowStatusActive,
		EntryCondition: models.EntryCondition{
			TriggerType: models.TriggerRecordCreated,
			Filters: models.SingleGroup(models.ConditionGroup{Conditions: []models.Condition{
				{Field: "species", Operator: "is_equal_to_any", Values: []any{"dog"}},
			}}),
		},
		Settings:    models.Settings{ReenrollmentDelayDays: 3},
		StartStepID: "email",
		Revision:    1,
		Steps: []*models.WorkflowStep{
			{ID: "email", StepType: models.StepTypeAction, ActionType: "send_email", Config: json.RawMessage(`{"to":"a@b.c"}`), NextStepID: "split"},
			{ID: "split", StepType: models.StepTypeDeterminator, Branches: []models.Branch{
				{ID: "b1", Condition: models.ConditionGroup{Conditions: []models.Condition{{Field: "age", Operator: "is_greater_than", Value: 5.0}}}, NextStepID: "end"},
				{ID: "else", IsElse: true},
			}},
			{ID: "end", StepType: models.StepTypeTerminus},
		},
	}
}

func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	workflow := sampleWorkflow("tenant-a")
	require.NoError(t, repo.Save(ctx, workflow))
	require.NotEmpty(t, workflow.ID)

	loaded, err := repo.GetByID(ctx, "tenant-a", workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Equal(t, models.TriggerRecordCreated, loaded.EntryCondition.TriggerType)
	assert.Equal(t, 3, loaded.Settings.ReenrollmentDelayDays)
	require.Len(t, loaded.Steps, 3)
	assert.Equal(t, "email", loaded.Steps[0].ID)
	assert.JSONEq(t, `{"to":"a@b.c"}`, string(loaded.Steps[0].Config))
	assert.Len(t, loaded.Steps[1].Branches, 2)
	assert.True(t, loaded.Steps[1].Branches[1].IsElse)
	require.NoError(t, loaded.Graph().Validate())

	_, err = repo.GetByID(ctx, "tenant-b", workflow.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err), "other tenants must not see the workflow")
}

func TestWorkflowRepository_ActiveListsAndDelete(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	active := sampleWorkflow("tenant-a")
	require.NoError(t, repo.Save(ctx, active))

	paused := sampleWorkflow("tenant-a")
	paused.Status = models.WorkflowStatusPaused
	require.NoError(t, repo.Save(ctx, paused))

	scheduled := sampleWorkflow("tenant-b")
	scheduled.EntryCondition = models.EntryCondition{
		TriggerType: models.TriggerScheduled,
		Schedule:    &models.Schedule{Frequency: models.FrequencyDaily, Time: "09:00"},
	}
	require.NoError(t, repo.Save(ctx, scheduled))

	pets, err := repo.ListActiveByObjectType(ctx, "tenant-a", models.RecordTypePet)
	require.NoError(t, err)
	require.Len(t, pets, 1)
	assert.Equal(t, active.ID, pets[0].ID)

	sched, err := repo.ListActiveScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, sched, 1)
	assert.Equal(t, scheduled.ID, sched[0].ID)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.MarkTriggered(ctx, "tenant-b", scheduled.ID, now))

	reloaded, err := repo.GetByID(ctx, "tenant-b", scheduled.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastTriggeredAt)
	assert.True(t, now.Equal(*reloaded.LastTriggeredAt))

	require.NoError(t, repo.Delete(ctx, "tenant-a", active.ID))

	_, err = repo.GetByID(ctx, "tenant-a", active.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = repo.Delete(ctx, "tenant-a", active.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_Revisions(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	workflow := sampleWorkflow("tenant-a")
	require.NoError(t, repo.Save(ctx, workflow))

	snapshot := &models.WorkflowRevision{
		WorkflowID:  workflow.ID,
		TenantID:    workflow.TenantID,
		Revision:    1,
		StartStepID: workflow.StartStepID,
		Steps:       workflow.Steps,
	}
	require.NoError(t, repo.SaveRevision(ctx, snapshot))
	require.NoError(t, repo.SaveRevision(ctx, snapshot), "saving a revision twice is a no-op")

	loaded, err := repo.GetRevision(ctx, "tenant-a", workflow.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "email", loaded.StartStepID)
	assert.Len(t, loaded.Steps, 3)

	_, err = repo.GetRevision(ctx, "tenant-a", workflow.ID, 2)
	assert.ErrorIs(t, err, persistence.ErrRevisionNotFound)
}

func TestExecutionRepository_LiveUniquenessAndCAS(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := sampleWorkflow("tenant-a")
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	repo := p.ExecutionRepository()
	recordID := uuid.NewString()

	execution := &models.WorkflowExecution{
		TenantID:         "tenant-a",
		WorkflowID:       workflow.ID,
		WorkflowRevision: 1,
		RecordID:         recordID,
		RecordType:       models.RecordTypePet,
		Status:           models.ExecutionStatusRunning,
		CurrentStepID:    "email",
	}
	require.NoError(t, repo.Create(ctx, execution))
	assert.Equal(t, int64(1), execution.Version)

	duplicate := *execution
	duplicate.ID = ""
	err := repo.Create(ctx, &duplicate)
	assert.ErrorIs(t, err, persistence.ErrExecutionAlreadyActive)

	live, err := repo.FindLive(ctx, "tenant-a", workflow.ID, recordID)
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, execution.ID, live.ID)

	stale := *live

	live.Metadata.IncrementRetry("email")
	live.Status = models.ExecutionStatusWaiting
	require.NoError(t, repo.Update(ctx, live))
	assert.Equal(t, int64(2), live.Version)

	stale.Status = models.ExecutionStatusFailed
	err = repo.Update(ctx, &stale)
	assert.True(t, persistence.IsExecutionConflict(err))

	loaded, err := repo.GetByID(ctx, "tenant-a", execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, loaded.Status)
	assert.Equal(t, 1, loaded.Metadata.RetryCount("email"))

	byRecord, err := repo.ListLiveByRecord(ctx, "tenant-a", models.RecordTypePet, recordID)
	require.NoError(t, err)
	assert.Len(t, byRecord, 1)

	now := time.Now().UTC()
	loaded.Status = models.ExecutionStatusCompleted
	loaded.EndedAt = &now
	require.NoError(t, repo.Update(ctx, loaded))

	live, err = repo.FindLive(ctx, "tenant-a", workflow.ID, recordID)
	require.NoError(t, err)
	assert.Nil(t, live)

	again := &models.WorkflowExecution{
		TenantID:   "tenant-a",
		WorkflowID: workflow.ID,
		RecordID:   recordID,
		RecordType: models.RecordTypePet,
		Status:     models.ExecutionStatusRunning,
	}
	require.NoError(t, repo.Create(ctx, again), "a finished execution frees the slot")

	latest, err := repo.LatestForRecord(ctx, "tenant-a", workflow.ID, recordID)
	require.NoError(t, err)
	assert.Equal(t, again.ID, latest.ID)

	all, err := repo.ListByWorkflow(ctx, "tenant-a", workflow.ID, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.GetByID(ctx, "tenant-b", execution.ID)
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionLogRepository_AppendAndList(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := sampleWorkflow("tenant-a")
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	execution := &models.WorkflowExecution{
		TenantID:   "tenant-a",
		WorkflowID: workflow.ID,
		RecordID:   uuid.NewString(),
		RecordType: models.RecordTypePet,
		Status:     models.ExecutionStatusRunning,
	}
	require.NoError(t, p.ExecutionRepository().Create(ctx, execution))

	step := "email"
	repo := p.ExecutionLogRepository()

	require.NoError(t, repo.Append(ctx, &models.WorkflowExecutionLog{
		ExecutionID: execution.ID, TenantID: "tenant-a", EventType: models.LogEnrolled, Status: models.ExecutionStatusRunning,
	}))
	require.NoError(t, repo.Append(ctx, &models.WorkflowExecutionLog{
		ExecutionID: execution.ID, TenantID: "tenant-a", StepID: &step, EventType: models.LogActionStarted,
		Status: models.ExecutionStatusRunning, Metadata: map[string]any{"actionType": "send_email"},
	}))

	entries, err := repo.ListByExecution(ctx, "tenant-a", execution.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.LogEnrolled, entries[0].EventType)
	assert.Nil(t, entries[0].StepID)
	require.NotNil(t, entries[1].StepID)
	assert.Equal(t, "email", *entries[1].StepID)
	assert.Equal(t, "send_email", entries[1].Metadata["actionType"])

	other, err := repo.ListByExecution(ctx, "tenant-b", execution.ID)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRecordRepository_CreateGetUpdate(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.RecordRepository()

	created, err := repo.CreateRecord(ctx, "tenant-a", models.RecordTypePet, models.Record{
		"name":    "Rex",
		"species": "dog",
		"owner":   map[string]any{"email": "owner@example.com"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID())

	require.NoError(t, repo.UpdateField(ctx, "tenant-a", models.RecordTypePet, created.ID(), "owner.email", "new@example.com"))
	require.NoError(t, repo.UpdateField(ctx, "tenant-a", models.RecordTypePet, created.ID(), "vaccinated", true))

	loaded, err := repo.GetRecord(ctx, "tenant-a", models.RecordTypePet, created.ID())
	require.NoError(t, err)
	assert.Equal(t, "Rex", loaded["name"])
	assert.Equal(t, true, loaded["vaccinated"])
	assert.Equal(t, "new@example.com", loaded["owner"].(map[string]any)["email"])

	_, err = repo.GetRecord(ctx, "tenant-b", models.RecordTypePet, created.ID())
	assert.True(t, persistence.IsRecordNotFound(err))

	err = repo.UpdateField(ctx, "tenant-a", models.RecordTypePet, uuid.NewString(), "name", "x")
	assert.True(t, persistence.IsRecordNotFound(err))

	_, err = repo.GetRecord(ctx, "tenant-a", models.RecordType("horse"), created.ID())
	assert.ErrorIs(t, err, persistence.ErrUnknownRecordType)

	list, err := repo.ListRecords(ctx, "tenant-a", models.RecordTypePet, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
