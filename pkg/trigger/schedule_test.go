package trigger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/petflow/pkg/mocks"
	"github.com/dukex/petflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func scheduled(schedule *models.Schedule, filters models.ConditionConfig) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.EntryCondition = models.EntryCondition{
			TriggerType: models.TriggerScheduled,
			Filters:     filters,
			Schedule:    schedule,
		}
	}
}

func TestScheduledPass(t *testing.T) {
	f := newFixture(t)

	daily := f.workflow(scheduled(&models.Schedule{Frequency: models.FrequencyDaily, Time: "09:00"}, speciesFilter("dog")))

	dow := 3
	f.workflow(scheduled(&models.Schedule{Frequency: models.FrequencyWeekly, Time: "09:00", DayOfWeek: &dow}, models.ConditionConfig{}))

	rex := f.pet(models.Record{"name": "Rex", "species": "dog"})
	f.pet(models.Record{"name": "Tom", "species": "cat"})
	fido := f.pet(models.Record{"name": "Fido", "species": "dog"})

	// 2026-05-04 is a Monday, so only the daily workflow is due.
	early := time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)
	results, err := f.evaluator.ScheduledPass(f.ctx, early)
	require.NoError(t, err)
	assert.Empty(t, results)

	due := time.Date(2026, 5, 4, 9, 0, 30, 0, time.UTC)
	f.clock.now = due

	results, err = f.evaluator.ScheduledPass(f.ctx, due)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, result := range results {
		assert.Equal(t, daily.ID, result.WorkflowID)
		assert.True(t, result.Enrolled)
	}

	enrolled := map[string]bool{}

	for _, msg := range f.queue.Messages() {
		execution, err := f.store.ExecutionRepository().GetByID(f.ctx, tenant, msg.ExecutionID)
		require.NoError(t, err)
		assert.Equal(t, "schedule", execution.Metadata.EnrolledBy)

		enrolled[execution.RecordID] = true
	}

	assert.Equal(t, map[string]bool{rex.ID(): true, fido.ID(): true}, enrolled)

	stamped, err := f.store.WorkflowRepository().GetByID(f.ctx, tenant, daily.ID)
	require.NoError(t, err)
	require.NotNil(t, stamped.LastTriggeredAt)
	assert.Equal(t, due, stamped.LastTriggeredAt.UTC())

	again, err := f.evaluator.ScheduledPass(f.ctx, due.Add(30*time.Second))
	require.NoError(t, err)
	assert.Empty(t, again, "a schedule fires at most once per day")
}

func TestScheduledPass_BoundsRecordScan(t *testing.T) {
	f := newFixture(t)
	f.evaluator.maxScheduledRecords = 2

	f.workflow(scheduled(&models.Schedule{Frequency: models.FrequencyDaily, Time: "09:00"}, models.ConditionConfig{}))

	for _, name := range []string{"Rex", "Tom", "Fido"} {
		f.pet(models.Record{"name": name})
	}

	results, err := f.evaluator.ScheduledPass(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestScheduledPass_RecordListFailureLeavesWorkflowUnstamped(t *testing.T) {
	f := newFixture(t)

	workflow := f.workflow(scheduled(&models.Schedule{Frequency: models.FrequencyDaily, Time: "09:00"}, models.ConditionConfig{}))

	records := &mocks.MockRecordRepository{}
	records.On("ListRecords", mock.Anything, tenant, workflow.ObjectType, mock.Anything).
		Return(nil, errors.New("connection refused")).Once()

	f.evaluator = NewEvaluator(Dependencies{
		Workflows:  f.store.WorkflowRepository(),
		Executions: f.store.ExecutionRepository(),
		Logs:       f.store.ExecutionLogRepository(),
		Records:    records,
		Queue:      f.queue,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(f.clock.Now))

	results, err := f.evaluator.ScheduledPass(f.ctx, f.clock.Now())
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection refused")
	assert.Empty(t, results)
	assert.Equal(t, 0, f.queue.Len())

	stored, err := f.store.WorkflowRepository().GetByID(f.ctx, tenant, workflow.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastTriggeredAt, "a failed scan must be retried on the next tick")

	records.AssertExpectations(t)
}

func TestScheduledPass_SkipsInvalidSchedule(t *testing.T) {
	f := newFixture(t)

	f.workflow(scheduled(&models.Schedule{Frequency: models.FrequencyWeekly, Time: "09:00"}, models.ConditionConfig{}))
	f.pet(models.Record{"name": "Rex"})

	results, err := f.evaluator.ScheduledPass(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestScheduledTickUsesEvaluatorClock(t *testing.T) {
	f := newFixture(t)

	f.workflow(scheduled(&models.Schedule{Frequency: models.FrequencyDaily, Time: "09:00"}, models.ConditionConfig{}))
	f.pet(models.Record{"name": "Rex", "species": "dog"})

	f.clock.now = time.Date(2026, 5, 4, 9, 0, 10, 0, time.UTC)
	f.evaluator.scheduledTick(f.ctx)

	assert.Equal(t, 1, f.queue.Len())
}

func TestRunScheduledStopsWithContext(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	require.NoError(t, f.evaluator.RunScheduled(ctx))
}
