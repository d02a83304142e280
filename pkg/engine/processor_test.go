package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence/file"
	"github.com/dukex/petflow/pkg/protocol"
	"github.com/dukex/petflow/pkg/queue"
	"github.com/dukex/petflow/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenant = "tenant-a"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// scriptedActions fails an action type once per queued error, then succeeds.
type scriptedActions struct {
	mu      sync.Mutex
	script  map[string][]error
	calls   map[string]int
	panicOn string
}

func newScriptedActions() *scriptedActions {
	return &scriptedActions{script: map[string][]error{}, calls: map[string]int{}}
}

func (s *scriptedActions) failNext(actionType string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.script[actionType] = append(s.script[actionType], errs...)
}

func (s *scriptedActions) ExecuteAction(
	_ context.Context,
	actionType string,
	_ json.RawMessage,
	actionCtx protocol.ActionContext,
) protocol.ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[actionType]++

	if actionType == s.panicOn {
		panic("action exploded")
	}

	if queued := s.script[actionType]; len(queued) > 0 {
		s.script[actionType] = queued[1:]

		return protocol.ActionResult{Success: false, Error: queued[0].Error()}
	}

	return protocol.ActionResult{Success: true, Result: map[string]any{"record_id": actionCtx.RecordID}}
}

func (s *scriptedActions) Calls(actionType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[actionType]
}

// flakyQueue fails the first n enqueues.
type flakyQueue struct {
	*queue.MemoryQueue

	failures int
}

func (q *flakyQueue) Enqueue(ctx context.Context, msg models.StepMessage) error {
	if q.failures > 0 {
		q.failures--

		return errors.New("broker unavailable")
	}

	return q.MemoryQueue.Enqueue(ctx, msg)
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	store     *file.Persistence
	queue     *queue.MemoryQueue
	scheduler *scheduler.MemoryStore
	actions   *scriptedActions
	clock     *fakeClock
	processor *Processor
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:         t,
		ctx:       context.Background(),
		store:     file.NewPersistence("file://" + t.TempDir()),
		queue:     queue.NewMemoryQueue(),
		scheduler: scheduler.NewMemoryStore(),
		actions:   newScriptedActions(),
		clock:     &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}

	h.build(h.queue)

	return h
}

func (h *harness) build(q queue.Queue) {
	h.processor = NewProcessor(Dependencies{
		Workflows:  h.store.WorkflowRepository(),
		Executions: h.store.ExecutionRepository(),
		Logs:       h.store.ExecutionLogRepository(),
		Records:    h.store.RecordRepository(),
		Actions:    h.actions,
		Queue:      q,
		Scheduler:  h.scheduler,
	}, quietLogger(), WithClock(h.clock.Now))
}

func (h *harness) saveWorkflow(start string, settings models.Settings, steps ...*models.WorkflowStep) *models.Workflow {
	h.t.Helper()

	workflow := &models.Workflow{
		TenantID:       tenant,
		Name:           "Checkup reminder",
		ObjectType:     models.RecordTypePet,
		Status:         models.WorkflowStatusActive,
		EntryCondition: models.EntryCondition{TriggerType: models.TriggerRecordCreated},
		Settings:       settings,
		StartStepID:    start,
		Steps:          steps,
		Revision:       1,
	}

	repo := h.store.WorkflowRepository()
	require.NoError(h.t, repo.Save(h.ctx, workflow))
	require.NoError(h.t, repo.SaveRevision(h.ctx, &models.WorkflowRevision{
		WorkflowID:  workflow.ID,
		TenantID:    tenant,
		Revision:    workflow.Revision,
		StartStepID: start,
		Steps:       steps,
	}))

	return workflow
}

func (h *harness) createPet(fields models.Record) models.Record {
	h.t.Helper()

	pet, err := h.store.RecordRepository().CreateRecord(h.ctx, tenant, models.RecordTypePet, fields)
	require.NoError(h.t, err)

	return pet
}

func (h *harness) enroll(workflow *models.Workflow, recordID string) *models.WorkflowExecution {
	h.t.Helper()

	execution := &models.WorkflowExecution{
		TenantID:         tenant,
		WorkflowID:       workflow.ID,
		WorkflowRevision: workflow.Revision,
		RecordID:         recordID,
		RecordType:       workflow.ObjectType,
		Status:           models.ExecutionStatusRunning,
		CurrentStepID:    workflow.StartStepID,
		EnrolledAt:       h.clock.Now(),
	}
	require.NoError(h.t, h.store.ExecutionRepository().Create(h.ctx, execution))
	require.NoError(h.t, h.queue.Enqueue(h.ctx, models.StepMessage{
		ExecutionID: execution.ID,
		WorkflowID:  workflow.ID,
		TenantID:    tenant,
		StepID:      workflow.StartStepID,
	}))

	return execution
}

// drain processes queued messages until the queue is empty.
func (h *harness) drain() []Result {
	h.t.Helper()

	var results []Result

	for i := 0; i < 100; i++ {
		msg, ok := h.queue.Pop()
		if !ok {
			return results
		}

		results = append(results, h.processor.ProcessStepMessage(h.ctx, msg))
	}

	h.t.Fatal("queue did not drain")

	return nil
}

// resumeDue moves scheduled messages that are due into the queue, as the scheduler poller does.
func (h *harness) resumeDue() int {
	h.t.Helper()

	due, err := h.scheduler.Due(h.ctx, h.clock.Now(), 0)
	require.NoError(h.t, err)

	for _, msg := range due {
		require.NoError(h.t, h.queue.Enqueue(h.ctx, msg))
	}

	return len(due)
}

func (h *harness) execution(id string) *models.WorkflowExecution {
	h.t.Helper()

	execution, err := h.store.ExecutionRepository().GetByID(h.ctx, tenant, id)
	require.NoError(h.t, err)

	return execution
}

func (h *harness) logs(id string) []*models.WorkflowExecutionLog {
	h.t.Helper()

	logs, err := h.store.ExecutionLogRepository().ListByExecution(h.ctx, tenant, id)
	require.NoError(h.t, err)

	return logs
}

func (h *harness) events(id string) []models.LogEventType {
	logs := h.logs(id)
	types := make([]models.LogEventType, 0, len(logs))

	for _, entry := range logs {
		types = append(types, entry.EventType)
	}

	return types
}

func speciesIs(species string) *models.ConditionGroup {
	return &models.ConditionGroup{Conditions: []models.Condition{
		{Field: "species", Operator: "is_equal_to_any", Values: []any{species}},
	}}
}

func TestProcessor_EndToEndDogAndCat(t *testing.T) {
	h := newHarness(t)

	workflow := h.saveWorkflow("email", models.Settings{},
		&models.WorkflowStep{ID: "email", StepType: models.StepTypeAction, ActionType: "send_email",
			Config: json.RawMessage(`{"to":"{{ .record.owner_email }}","subject":"Hi","body":"Checkup time"}`), NextStepID: "wait_1d"},
		&models.WorkflowStep{ID: "wait_1d", StepType: models.StepTypeWait,
			Config: json.RawMessage(`{"waitType":"delay","value":1,"unit":"days"}`), NextStepID: "dogs_only"},
		&models.WorkflowStep{ID: "dogs_only", StepType: models.StepTypeGate, Condition: speciesIs("dog"), NextStepID: "done"},
		&models.WorkflowStep{ID: "done", StepType: models.StepTypeTerminus},
	)

	dog := h.enroll(workflow, h.createPet(models.Record{"name": "Rex", "species": "dog"}).ID())
	cat := h.enroll(workflow, h.createPet(models.Record{"name": "Tom", "species": "Cat"}).ID())

	h.drain()

	assert.Equal(t, 2, h.actions.Calls("send_email"))

	for _, id := range []string{dog.ID, cat.ID} {
		parked := h.execution(id)
		assert.Equal(t, models.ExecutionStatusWaiting, parked.Status)
		assert.Equal(t, "wait_1d", parked.CurrentStepID)
		require.NotNil(t, parked.ScheduledAt)
		assert.Equal(t, h.clock.Now().Add(24*time.Hour), parked.ScheduledAt.UTC())
		assert.Nil(t, parked.LeaseUntil)
	}

	assert.Equal(t, 2, h.scheduler.Len())

	// An early redelivery is put back on the schedule.
	h.clock.Advance(time.Hour)

	early := h.processor.ProcessStepMessage(h.ctx, models.StepMessage{
		ExecutionID: dog.ID, WorkflowID: workflow.ID, TenantID: tenant, StepID: "wait_1d",
	})
	assert.Equal(t, StatusSkipped, early.Status)
	assert.Equal(t, "rescheduled", early.Reason)
	assert.Equal(t, 0, h.resumeDue())

	h.clock.Advance(23 * time.Hour)
	assert.Equal(t, 2, h.resumeDue())
	h.drain()

	finishedDog := h.execution(dog.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, finishedDog.Status)
	assert.Equal(t, models.ReasonTerminus, finishedDog.Metadata.CompletionReason)
	assert.Equal(t, []models.LogEventType{
		models.LogStepStarted, models.LogActionStarted, models.LogActionCompleted, models.LogStepAdvanced,
		models.LogStepStarted, models.LogWaitStarted,
		models.LogWaitResumed, models.LogStepAdvanced,
		models.LogStepStarted, models.LogGatePassed, models.LogStepAdvanced,
		models.LogStepStarted, models.LogTerminusReached, models.LogCompleted,
	}, h.events(dog.ID))

	finishedCat := h.execution(cat.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, finishedCat.Status)
	assert.Equal(t, models.ReasonGateBlocked, finishedCat.Metadata.CompletionReason)
	assert.Equal(t, "dogs_only", finishedCat.CurrentStepID)
	assert.NotContains(t, h.events(cat.ID), models.LogTerminusReached)
	assert.Contains(t, h.events(cat.ID), models.LogGateBlocked)

	assert.Equal(t, 2, h.actions.Calls("send_email"), "actions never rerun after the wait")
	assert.Equal(t, 0, h.queue.Len())
}

func TestProcessor_RetryWithExponentialBackoff(t *testing.T) {
	h := newHarness(t)

	workflow := h.saveWorkflow("webhook", models.Settings{},
		&models.WorkflowStep{ID: "webhook", StepType: models.StepTypeAction, ActionType: "webhook",
			Config: json.RawMessage(`{"url":"https://crm.test","retryCount":2}`), NextStepID: "done"},
		&models.WorkflowStep{ID: "done", StepType: models.StepTypeTerminus},
	)
	h.actions.failNext("webhook", errors.New("502"), errors.New("503"))

	execution := h.enroll(workflow, h.createPet(models.Record{"name": "Rex"}).ID())
	start := h.clock.Now()

	h.drain()

	parked := h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusWaiting, parked.Status)
	assert.Equal(t, start.Add(2*time.Minute), parked.ScheduledAt.UTC())
	assert.Equal(t, 1, parked.Metadata.RetryCount("webhook"))

	h.clock.Advance(2 * time.Minute)
	require.Equal(t, 1, h.resumeDue())
	h.drain()

	parked = h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusWaiting, parked.Status)
	assert.Equal(t, start.Add(6*time.Minute), parked.ScheduledAt.UTC())

	h.clock.Advance(4 * time.Minute)
	require.Equal(t, 1, h.resumeDue())
	h.drain()

	finished := h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, finished.Status)
	assert.Empty(t, finished.Metadata.RetryCounts)
	assert.Equal(t, 3, h.actions.Calls("webhook"))

	var delays []any

	for _, entry := range h.logs(execution.ID) {
		if entry.EventType == models.LogRetryScheduled {
			delays = append(delays, entry.Metadata["delay_minutes"])
		}
	}

	assert.Equal(t, []any{float64(2), float64(4)}, delays)
}

func TestRetryDelayIsCapped(t *testing.T) {
	assert.Equal(t, 2*time.Minute, retryDelay(1))
	assert.Equal(t, 1024*time.Minute, retryDelay(10))
	assert.Equal(t, time.Duration(1<<20)*time.Minute, retryDelay(20))

	for _, retry := range []int{21, 28, 40, 63, 200} {
		delay := retryDelay(retry)
		assert.Equal(t, retryDelay(20), delay, "retry %d", retry)
		assert.Positive(t, delay, "retry %d", retry)
	}
}

func TestProcessor_RetriesExhausted(t *testing.T) {
	tests := []struct {
		name            string
		config          string
		wantStatus      models.ExecutionStatus
		wantReason      string
		wantTerminusRun bool
	}{
		{
			name:       "fails the execution",
			config:     `{"retryCount":0}`,
			wantStatus: models.ExecutionStatusFailed,
		},
		{
			name:            "continueOnError advances",
			config:          `{"continueOnError":true}`,
			wantStatus:      models.ExecutionStatusCompleted,
			wantReason:      models.ReasonTerminus,
			wantTerminusRun: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			workflow := h.saveWorkflow("task", models.Settings{},
				&models.WorkflowStep{ID: "task", StepType: models.StepTypeAction, ActionType: "create_task",
					Config: json.RawMessage(tt.config), NextStepID: "done"},
				&models.WorkflowStep{ID: "done", StepType: models.StepTypeTerminus},
			)
			h.actions.failNext("create_task", errors.New("task service down"))

			execution := h.enroll(workflow, h.createPet(models.Record{"name": "Rex"}).ID())
			h.drain()

			finished := h.execution(execution.ID)
			assert.Equal(t, tt.wantStatus, finished.Status)
			assert.Equal(t, tt.wantTerminusRun, finished.CurrentStepID == "done")
			assert.Equal(t, 0, h.scheduler.Len())

			if tt.wantStatus == models.ExecutionStatusFailed {
				assert.Equal(t, string(KindActionExecution), finished.Metadata.ErrorKind)
				assert.Equal(t, "task service down", finished.Metadata.Error)
				assert.NotNil(t, finished.EndedAt)
			} else {
				assert.Equal(t, tt.wantReason, finished.Metadata.CompletionReason)
			}
		})
	}
}

func TestProcessor_DeterminatorSelectsFirstMatchingBranch(t *testing.T) {
	h := newHarness(t)

	workflow := h.saveWorkflow("decide", models.Settings{},
		&models.WorkflowStep{ID: "decide", StepType: models.StepTypeDeterminator, Branches: []models.Branch{
			{ID: "A", Condition: *speciesIs("cat"), NextStepID: "a_end"},
			{ID: "B", Condition: *speciesIs("dog"), NextStepID: "b_end"},
			{ID: "C", Condition: *speciesIs("dog"), NextStepID: "c_end"},
			{ID: "fallback", IsElse: true, NextStepID: "else_end"},
		}},
		&models.WorkflowStep{ID: "a_end", StepType: models.StepTypeTerminus},
		&models.WorkflowStep{ID: "b_end", StepType: models.StepTypeTerminus},
		&models.WorkflowStep{ID: "c_end", StepType: models.StepTypeTerminus},
		&models.WorkflowStep{ID: "else_end", StepType: models.StepTypeTerminus},
	)

	execution := h.enroll(workflow, h.createPet(models.Record{"species": "dog"}).ID())

	msg, ok := h.queue.Pop()
	require.True(t, ok)

	result := h.processor.ProcessStepMessage(h.ctx, msg)
	require.True(t, result.Success())

	assert.Equal(t, []models.StepMessage{{
		ExecutionID: execution.ID, WorkflowID: workflow.ID, TenantID: tenant, StepID: "b_end",
	}}, h.queue.Messages())

	events := h.events(execution.ID)
	assert.Equal(t, []models.LogEventType{
		models.LogStepStarted, models.LogBranchEvaluation, models.LogBranchSelected, models.LogStepAdvanced,
	}, events)

	selected := h.logs(execution.ID)[2]
	assert.Equal(t, "B", selected.Metadata["branch_id"])
}

func TestProcessor_DeterminatorFallsBackToElse(t *testing.T) {
	h := newHarness(t)

	workflow := h.saveWorkflow("decide", models.Settings{},
		&models.WorkflowStep{ID: "decide", StepType: models.StepTypeDeterminator, Branches: []models.Branch{
			{ID: "fallback", IsElse: true, NextStepID: "else_end"},
			{ID: "A", Condition: *speciesIs("cat"), NextStepID: "a_end"},
		}},
		&models.WorkflowStep{ID: "a_end", StepType: models.StepTypeTerminus},
		&models.WorkflowStep{ID: "else_end", StepType: models.StepTypeTerminus},
	)

	execution := h.enroll(workflow, h.createPet(models.Record{"species": "parrot"}).ID())
	h.drain()

	finished := h.execution(execution.ID)
	assert.Equal(t, "else_end", finished.CurrentStepID)
	assert.Equal(t, models.ReasonTerminus, finished.Metadata.CompletionReason)
}

func TestProcessor_GateBlockedEnqueuesNothing(t *testing.T) {
	h := newHarness(t)

	workflow := h.saveWorkflow("dogs_only", models.Settings{},
		&models.WorkflowStep{ID: "dogs_only", StepType: models.StepTypeGate, Condition: speciesIs("dog"), NextStepID: "done"},
		&models.WorkflowStep{ID: "done", StepType: models.StepTypeTerminus},
	)

	execution := h.enroll(workflow, h.createPet(models.Record{"species": "cat"}).ID())

	msg, _ := h.queue.Pop()
	result := h.processor.ProcessStepMessage(h.ctx, msg)

	assert.Equal(t, StatusProcessed, result.Status)
	assert.Equal(t, models.ExecutionStatusCompleted, result.ExecutionStatus)
	assert.Equal(t, models.ReasonGateBlocked, result.Reason)
	assert.Equal(t, 0, h.queue.Len())
	assert.Equal(t, 0, h.scheduler.Len())
	assert.Equal(t, models.ExecutionStatusCompleted, h.execution(execution.ID).Status)
}

func TestProcessor_GoalReachedShortCircuits(t *testing.T) {
	h := newHarness(t)

	settings := models.Settings{GoalConfig: &models.GoalConfig{
		Enabled: true,
		Conditions: models.ConditionConfig{Groups: []models.ConditionGroup{{Conditions: []models.Condition{
			{Field: "vaccinationStatus", Operator: "is_any_of", Values: []any{"up_to_date"}},
		}}}},
	}}

	workflow := h.saveWorkflow("email", settings,
		&models.WorkflowStep{ID: "email", StepType: models.StepTypeAction, ActionType: "send_email", NextStepID: "done"},
		&models.WorkflowStep{ID: "done", StepType: models.StepTypeTerminus},
	)

	execution := h.enroll(workflow, h.createPet(models.Record{"vaccination_status": "up_to_date"}).ID())
	h.drain()

	finished := h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, finished.Status)
	assert.Equal(t, models.ReasonGoalReached, finished.Metadata.CompletionReason)
	assert.Equal(t, 0, h.actions.Calls("send_email"))
	assert.Equal(t, []models.LogEventType{models.LogGoalReached, models.LogCompleted}, h.events(execution.ID))
}

func TestProcessor_FatalErrors(t *testing.T) {
	h := newHarness(t)

	workflow := h.saveWorkflow("done", models.Settings{},
		&models.WorkflowStep{ID: "done", StepType: models.StepTypeTerminus},
	)
	pet := h.createPet(models.Record{"name": "Rex"})

	missingRecord := h.enroll(workflow, "00000000-0000-0000-0000-000000000000")
	h.drain()

	failed := h.execution(missingRecord.ID)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	assert.Equal(t, string(KindDataNotFound), failed.Metadata.ErrorKind)
	assert.Equal(t, []models.LogEventType{models.LogFailed}, h.events(missingRecord.ID))

	missingStep := h.enroll(workflow, pet.ID())
	msg, _ := h.queue.Pop()
	msg.StepID = ""

	ghost := h.execution(missingStep.ID)
	ghost.CurrentStepID = "ghost"
	require.NoError(t, h.store.ExecutionRepository().Update(h.ctx, ghost))

	result := h.processor.ProcessStepMessage(h.ctx, msg)
	assert.True(t, result.Success(), "fatal errors are not redelivered")
	require.ErrorIs(t, result.Err, ErrConfiguration)

	failed = h.execution(missingStep.ID)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	assert.Equal(t, string(KindConfiguration), failed.Metadata.ErrorKind)
}

func TestProcessor_TerminalAndStaleMessagesAreNoops(t *testing.T) {
	h := newHarness(t)

	workflow := h.saveWorkflow("first", models.Settings{},
		&models.WorkflowStep{ID: "first", StepType: models.StepTypeAction, ActionType: "log", NextStepID: "second"},
		&models.WorkflowStep{ID: "second", StepType: models.StepTypeAction, ActionType: "log"},
	)

	execution := h.enroll(workflow, h.createPet(models.Record{}).ID())
	h.drain()
	require.Equal(t, models.ExecutionStatusCompleted, h.execution(execution.ID).Status)

	replay := h.processor.ProcessStepMessage(h.ctx, models.StepMessage{
		ExecutionID: execution.ID, WorkflowID: workflow.ID, TenantID: tenant, StepID: "first",
	})
	assert.Equal(t, StatusSkipped, replay.Status)
	assert.Equal(t, "terminal", replay.Reason)
	assert.Equal(t, 2, h.actions.Calls("log"))

	other := h.processor.ProcessStepMessage(h.ctx, models.StepMessage{
		ExecutionID: execution.ID, WorkflowID: workflow.ID, TenantID: "tenant-b", StepID: "first",
	})
	assert.Equal(t, "execution_not_found", other.Reason, "executions are only visible to their tenant")
}

func TestProcessor_RecoversLostEnqueue(t *testing.T) {
	h := newHarness(t)

	flaky := &flakyQueue{MemoryQueue: h.queue, failures: 1}
	h.build(flaky)

	workflow := h.saveWorkflow("first", models.Settings{},
		&models.WorkflowStep{ID: "first", StepType: models.StepTypeAction, ActionType: "log", NextStepID: "second"},
		&models.WorkflowStep{ID: "second", StepType: models.StepTypeTerminus},
	)

	execution := h.enroll(workflow, h.createPet(models.Record{}).ID())
	msg, _ := h.queue.Pop()

	first := h.processor.ProcessStepMessage(h.ctx, msg)
	assert.False(t, first.Success())
	require.ErrorIs(t, first.Err, ErrScheduling)

	advanced := h.execution(execution.ID)
	assert.Equal(t, "second", advanced.CurrentStepID)
	assert.True(t, advanced.DispatchPending)
	assert.Equal(t, 0, h.queue.Len())

	redelivered := h.processor.ProcessStepMessage(h.ctx, msg)
	assert.Equal(t, StatusSkipped, redelivered.Status)
	assert.Equal(t, "redispatched", redelivered.Reason)
	assert.Equal(t, 1, h.actions.Calls("log"), "the action is not repeated")

	h.drain()
	assert.Equal(t, models.ExecutionStatusCompleted, h.execution(execution.ID).Status)
	assert.False(t, h.execution(execution.ID).DispatchPending)
}

func TestProcessor_LeaseBlocksConcurrentDelivery(t *testing.T) {
	h := newHarness(t)

	workflow := h.saveWorkflow("first", models.Settings{},
		&models.WorkflowStep{ID: "first", StepType: models.StepTypeAction, ActionType: "log"},
	)

	execution := h.enroll(workflow, h.createPet(models.Record{}).ID())

	held := h.execution(execution.ID)
	lease := h.clock.Now().Add(time.Minute)
	held.LeaseUntil = &lease
	require.NoError(t, h.store.ExecutionRepository().Update(h.ctx, held))

	msg, _ := h.queue.Pop()

	blocked := h.processor.ProcessStepMessage(h.ctx, msg)
	assert.False(t, blocked.Success())
	require.ErrorIs(t, blocked.Err, ErrExecutionLeased)
	assert.Equal(t, 0, h.actions.Calls("log"))

	h.clock.Advance(2 * time.Minute)

	expired := h.processor.ProcessStepMessage(h.ctx, msg)
	assert.True(t, expired.Success())
	assert.Equal(t, models.ExecutionStatusCompleted, expired.ExecutionStatus)
}

func TestProcessor_UntilEventWait(t *testing.T) {
	h := newHarness(t)

	workflow := h.saveWorkflow("await", models.Settings{},
		&models.WorkflowStep{ID: "await", StepType: models.StepTypeWait,
			Config: json.RawMessage(`{"waitType":"until_event","event":"vaccination_recorded"}`), NextStepID: "done"},
		&models.WorkflowStep{ID: "done", StepType: models.StepTypeTerminus},
	)

	execution := h.enroll(workflow, h.createPet(models.Record{}).ID())
	h.drain()

	parked := h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusWaiting, parked.Status)
	assert.Nil(t, parked.ScheduledAt)
	assert.Equal(t, "vaccination_recorded", parked.Metadata.WaitingForEvent)
	assert.Equal(t, 0, h.scheduler.Len())

	msg := models.StepMessage{ExecutionID: execution.ID, WorkflowID: workflow.ID, TenantID: tenant, StepID: "await"}

	noEvent := h.processor.ProcessStepMessage(h.ctx, msg)
	assert.Equal(t, "awaiting_event", noEvent.Reason)

	msg.Event = &models.ExternalEvent{Name: "appointment_booked"}
	wrongEvent := h.processor.ProcessStepMessage(h.ctx, msg)
	assert.Equal(t, "event_mismatch", wrongEvent.Reason)

	msg.Event = &models.ExternalEvent{Name: "vaccination_recorded", Payload: map[string]any{"vaccine": "rabies"}}
	resumed := h.processor.ProcessStepMessage(h.ctx, msg)
	assert.Equal(t, StatusProcessed, resumed.Status)

	h.drain()

	finished := h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, finished.Status)
	assert.Empty(t, finished.Metadata.WaitingForEvent)
	assert.Contains(t, h.events(execution.ID), models.LogWaitResumed)
}

func TestProcessor_RunsPinnedRevision(t *testing.T) {
	h := newHarness(t)

	workflow := h.saveWorkflow("legacy", models.Settings{},
		&models.WorkflowStep{ID: "legacy", StepType: models.StepTypeAction, ActionType: "log", NextStepID: "done"},
		&models.WorkflowStep{ID: "done", StepType: models.StepTypeTerminus},
	)

	execution := h.enroll(workflow, h.createPet(models.Record{}).ID())

	workflow.Revision = 2
	workflow.StartStepID = "fresh"
	workflow.Steps = []*models.WorkflowStep{{ID: "fresh", StepType: models.StepTypeTerminus}}

	repo := h.store.WorkflowRepository()
	require.NoError(t, repo.Save(h.ctx, workflow))
	require.NoError(t, repo.SaveRevision(h.ctx, &models.WorkflowRevision{
		WorkflowID: workflow.ID, TenantID: tenant, Revision: 2, StartStepID: "fresh", Steps: workflow.Steps,
	}))

	h.drain()

	finished := h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, finished.Status)
	assert.Equal(t, "done", finished.CurrentStepID)
	assert.Equal(t, 1, h.actions.Calls("log"))
}

func TestProcessor_PanicLeavesExecutionUntouched(t *testing.T) {
	h := newHarness(t)
	h.actions.panicOn = "webhook"

	workflow := h.saveWorkflow("hook", models.Settings{},
		&models.WorkflowStep{ID: "hook", StepType: models.StepTypeAction, ActionType: "webhook"},
	)

	execution := h.enroll(workflow, h.createPet(models.Record{}).ID())
	msg, _ := h.queue.Pop()

	result := h.processor.ProcessStepMessage(h.ctx, msg)
	assert.False(t, result.Success())
	require.ErrorContains(t, result.Err, "action exploded")

	after := h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusRunning, after.Status)
	assert.Equal(t, "hook", after.CurrentStepID)
	assert.Nil(t, after.LeaseUntil, "the lease is released so a redelivery can run")
	assert.Contains(t, h.events(execution.ID), models.LogError)
}
