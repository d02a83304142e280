package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

var errListRecords = errors.New("failed to list records")

// ScheduledPass enrolls the records of every scheduled workflow that is due at now.
// A workflow is stamped as triggered once its records were listed, even if some failed to
// enroll. A workflow whose records could not be listed stays unstamped and is retried on the
// next tick inside the window.
func (e *Evaluator) ScheduledPass(ctx context.Context, now time.Time) ([]EnrollmentResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "trigger.scheduled_pass")
	defer span.End()

	workflows, err := e.deps.Workflows.ListActiveScheduled(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to list scheduled workflows: %w", err)
	}

	var (
		results []EnrollmentResult
		errs    []error
	)

	for _, workflow := range workflows {
		logger := e.logger.With("tenant_id", workflow.TenantID, "workflow_id", workflow.ID)

		schedule := workflow.EntryCondition.Schedule
		if !workflow.IsActive() || workflow.EntryCondition.TriggerType != models.TriggerScheduled || schedule == nil {
			continue
		}

		due, err := schedule.IsDue(now, workflow.LastTriggeredAt)
		if err != nil {
			logger.WarnContext(ctx, "Skipping workflow with invalid schedule", "error", err)

			continue
		}

		if !due {
			continue
		}

		enrolled, err := e.scanWorkflow(ctx, workflow)
		results = append(results, enrolled...)

		if err != nil {
			errs = append(errs, fmt.Errorf("workflow %s: %w", workflow.ID, err))

			if errors.Is(err, errListRecords) {
				continue
			}
		}

		err = e.deps.Workflows.MarkTriggered(ctx, workflow.TenantID, workflow.ID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("workflow %s: failed to stamp last trigger: %w", workflow.ID, err))

			continue
		}

		logger.InfoContext(ctx, "Scheduled pass finished", "records", len(enrolled), "enrolled", countEnrolled(enrolled))
	}

	err = errors.Join(errs...)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return results, err
}

func (e *Evaluator) scanWorkflow(ctx context.Context, workflow *models.Workflow) ([]EnrollmentResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "trigger.scan_workflow",
		attribute.String(otelhelper.TenantIDKey, workflow.TenantID),
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
	)
	defer span.End()

	records, err := e.deps.Records.ListRecords(ctx, workflow.TenantID, workflow.ObjectType, e.maxScheduledRecords)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("%w of type %s: %w", errListRecords, workflow.ObjectType, err)
	}

	results := make([]EnrollmentResult, 0, len(records))

	var errs []error

	for _, record := range records {
		recordID := record.ID()
		if recordID == "" {
			continue
		}

		if !e.conditions.Evaluate(workflow.EntryCondition.Filters, enrich(record, workflow.ObjectType, recordID)) {
			continue
		}

		result, err := e.enroll(ctx, workflow, recordID, "schedule", string(models.TriggerScheduled))
		if err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", recordID, err))

			continue
		}

		results = append(results, result)
	}

	return results, errors.Join(errs...)
}

func countEnrolled(results []EnrollmentResult) int {
	n := 0

	for _, result := range results {
		if result.Enrolled {
			n++
		}
	}

	return n
}
