// Package trigger decides which records enroll into which workflows.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/dukex/petflow/pkg/condition"
	"github.com/dukex/petflow/pkg/engine"
	"github.com/dukex/petflow/pkg/metrics"
	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/otelhelper"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/dukex/petflow/pkg/queue"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Skip reasons reported in EnrollmentResult.Reason.
const (
	ReasonEnrolled            = "enrolled"
	ReasonRedispatched        = "redispatched"
	ReasonTriggerMismatch     = "trigger_mismatch"
	ReasonFilterMismatch      = "filter_mismatch"
	ReasonAlreadyEnrolled     = "already_enrolled"
	ReasonReenrollmentBlocked = "reenrollment_blocked"
	ReasonNoStartStep         = "no_start_step"
)

// DefaultMaxScheduledRecords bounds the records a scheduled pass scans per workflow.
const DefaultMaxScheduledRecords = 500

var ErrWorkflowNotActive = errors.New("workflow is not active")

// RecordEvent is a record mutation as seen by the trigger evaluator.
type RecordEvent struct {
	TenantID       string
	RecordType     models.RecordType
	RecordID       string
	EventType      models.RecordEventType
	Record         models.Record
	PreviousRecord models.Record
	ChangedFields  []string
}

// EnrollmentResult is the outcome of evaluating one workflow for one record.
type EnrollmentResult struct {
	WorkflowID  string `json:"workflow_id"`
	Enrolled    bool   `json:"enrolled"`
	ExecutionID string `json:"execution_id,omitempty"`
	Reason      string `json:"reason"`
}

// Dependencies are the collaborators of an Evaluator.
type Dependencies struct {
	Workflows  persistence.WorkflowRepository
	Executions persistence.ExecutionRepository
	Logs       persistence.ExecutionLogRepository
	Records    persistence.RecordStore
	Queue      queue.Queue
}

type Evaluator struct {
	deps                Dependencies
	logbook             *engine.Logbook
	conditions          *condition.Evaluator
	tracer              trace.Tracer
	logger              *slog.Logger
	now                 func() time.Time
	maxScheduledRecords int
}

type Option func(*Evaluator)

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Evaluator) {
		e.tracer = tracer
	}
}

func WithMaxScheduledRecords(limit int) Option {
	return func(e *Evaluator) {
		if limit > 0 {
			e.maxScheduledRecords = limit
		}
	}
}

func NewEvaluator(deps Dependencies, logger *slog.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		deps:                deps,
		logger:              logger.With("module", "trigger_evaluator"),
		now:                 time.Now,
		tracer:              otelhelper.NoopTracer(),
		maxScheduledRecords: DefaultMaxScheduledRecords,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logbook = engine.NewLogbook(deps.Logs, e.logger, e.now)
	e.conditions = &condition.Evaluator{
		Now: e.now,
		OnUnknownOperator: func(cond models.Condition) {
			e.logger.Warn("Unknown condition operator evaluated as false", "operator", cond.Operator, "field", cond.Field)
		},
	}

	return e
}

// EvaluateTriggers runs every active workflow of the record's type against a record mutation.
// Workflows are evaluated independently: a failure on one is reported in the returned error
// and does not stop the others.
func (e *Evaluator) EvaluateTriggers(ctx context.Context, event RecordEvent) ([]EnrollmentResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "trigger.evaluate",
		attribute.String(otelhelper.TenantIDKey, event.TenantID),
		attribute.String(otelhelper.RecordTypeKey, string(event.RecordType)),
		attribute.String(otelhelper.RecordIDKey, event.RecordID),
		attribute.String(otelhelper.EventTypeKey, string(event.EventType)),
	)
	defer span.End()

	logger := e.logger.With("tenant_id", event.TenantID, "record_type", event.RecordType, "record_id", event.RecordID)

	workflows, err := e.deps.Workflows.ListActiveByObjectType(ctx, event.TenantID, event.RecordType)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	changed := event.ChangedFields
	if len(changed) == 0 && event.PreviousRecord != nil {
		changed = ChangedFields(event.PreviousRecord, event.Record)
	}

	record := enrich(event.Record, event.RecordType, event.RecordID)
	results := make([]EnrollmentResult, 0, len(workflows))

	var errs []error

	for _, workflow := range workflows {
		if !workflow.IsActive() || workflow.ObjectType != event.RecordType {
			continue
		}

		if !matchesTrigger(workflow.EntryCondition, event.EventType, changed) {
			results = append(results, e.skip(workflow, ReasonTriggerMismatch))

			continue
		}

		if !e.conditions.Evaluate(workflow.EntryCondition.Filters, record) {
			results = append(results, e.skip(workflow, ReasonFilterMismatch))

			continue
		}

		result, err := e.enroll(ctx, workflow, event.RecordID, "trigger:"+string(event.EventType), string(event.EventType))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to enroll record", "workflow_id", workflow.ID, "error", err)
			errs = append(errs, fmt.Errorf("workflow %s: %w", workflow.ID, err))

			continue
		}

		results = append(results, result)
	}

	err = errors.Join(errs...)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return results, err
}

// EnrollManually enrolls a record into a workflow regardless of its trigger type and filters.
func (e *Evaluator) EnrollManually(ctx context.Context, tenantID, workflowID, recordID, enrolledBy string) (EnrollmentResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "trigger.enroll_manually",
		attribute.String(otelhelper.TenantIDKey, tenantID),
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.RecordIDKey, recordID),
	)
	defer span.End()

	workflow, err := e.deps.Workflows.GetByID(ctx, tenantID, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return EnrollmentResult{}, err
	}

	if !workflow.IsActive() {
		return EnrollmentResult{WorkflowID: workflowID}, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotActive)
	}

	_, err = e.deps.Records.GetRecord(ctx, tenantID, workflow.ObjectType, recordID)
	if err != nil {
		otelhelper.SetError(span, err)

		return EnrollmentResult{WorkflowID: workflowID}, err
	}

	result, err := e.enroll(ctx, workflow, recordID, enrolledBy, string(models.TriggerManual))
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return result, err
}

// enroll runs the idempotency, re-enrollment and unenroll-others gates, then creates the
// execution and enqueues its entry step.
func (e *Evaluator) enroll(ctx context.Context, workflow *models.Workflow, recordID, enrolledBy, triggerEvent string) (EnrollmentResult, error) {
	now := e.now().UTC()
	logger := e.logger.With("tenant_id", workflow.TenantID, "workflow_id", workflow.ID, "record_id", recordID)

	live, err := e.deps.Executions.FindLive(ctx, workflow.TenantID, workflow.ID, recordID)
	if err != nil {
		return EnrollmentResult{}, fmt.Errorf("failed to look up live execution: %w", err)
	}

	if live != nil {
		if awaitingFirstDispatch(live, now) {
			err = e.deps.Queue.Enqueue(ctx, entryMessage(live))
			if err != nil {
				return EnrollmentResult{}, err
			}

			logger.InfoContext(ctx, "Re-dispatched entry step of undispatched execution", "execution_id", live.ID)

			return EnrollmentResult{WorkflowID: workflow.ID, ExecutionID: live.ID, Reason: ReasonRedispatched}, nil
		}

		return e.skip(workflow, ReasonAlreadyEnrolled), nil
	}

	if !workflow.Settings.AllowReenrollment {
		latest, err := e.deps.Executions.LatestForRecord(ctx, workflow.TenantID, workflow.ID, recordID)
		if err != nil {
			return EnrollmentResult{}, fmt.Errorf("failed to look up previous execution: %w", err)
		}

		if latest != nil && !reenrollmentDelayElapsed(workflow.Settings, latest.EnrolledAt, now) {
			return e.skip(workflow, ReasonReenrollmentBlocked), nil
		}
	}

	if workflow.StartStepID == "" {
		logger.WarnContext(ctx, "Active workflow has no start step")

		return e.skip(workflow, ReasonNoStartStep), nil
	}

	if workflow.Settings.UnenrollFromOtherWorkflows {
		err = e.unenrollOthers(ctx, workflow, recordID)
		if err != nil {
			return EnrollmentResult{}, err
		}
	}

	execution := &models.WorkflowExecution{
		TenantID:         workflow.TenantID,
		WorkflowID:       workflow.ID,
		WorkflowRevision: workflow.Revision,
		RecordID:         recordID,
		RecordType:       workflow.ObjectType,
		Status:           models.ExecutionStatusRunning,
		CurrentStepID:    workflow.StartStepID,
		DispatchPending:  true,
		EnrolledAt:       now,
		Metadata: models.ExecutionMetadata{
			EnrolledBy:   enrolledBy,
			TriggerEvent: triggerEvent,
		},
	}

	err = e.deps.Executions.Create(ctx, execution)
	if err != nil {
		if errors.Is(err, persistence.ErrExecutionAlreadyActive) {
			return e.skip(workflow, ReasonAlreadyEnrolled), nil
		}

		return EnrollmentResult{}, fmt.Errorf("failed to create execution: %w", err)
	}

	e.logbook.Write(ctx, execution, engine.Entry{
		StepID:  execution.CurrentStepID,
		Event:   models.LogEnrolled,
		Message: "Record enrolled",
		Metadata: map[string]any{
			"enrolled_by":   enrolledBy,
			"trigger_event": triggerEvent,
			"revision":      execution.WorkflowRevision,
		},
	})

	err = e.deps.Queue.Enqueue(ctx, entryMessage(execution))
	if err != nil {
		return EnrollmentResult{}, fmt.Errorf("execution %s created but not dispatched: %w", execution.ID, err)
	}

	metrics.RecordEnrollment(ReasonEnrolled)
	logger.InfoContext(ctx, "Record enrolled", "execution_id", execution.ID, "enrolled_by", enrolledBy)

	return EnrollmentResult{WorkflowID: workflow.ID, Enrolled: true, ExecutionID: execution.ID, Reason: ReasonEnrolled}, nil
}

func (e *Evaluator) skip(workflow *models.Workflow, reason string) EnrollmentResult {
	metrics.RecordEnrollment(reason)

	return EnrollmentResult{WorkflowID: workflow.ID, Reason: reason}
}

// awaitingFirstDispatch reports whether the execution was created but its entry step may never
// have been enqueued. The processor clears DispatchPending when it claims the execution.
func awaitingFirstDispatch(execution *models.WorkflowExecution, now time.Time) bool {
	return execution.Status == models.ExecutionStatusRunning &&
		execution.DispatchPending &&
		execution.PreviousStepID == "" &&
		!execution.LeaseActive(now)
}

func reenrollmentDelayElapsed(settings models.Settings, lastEnrolledAt, now time.Time) bool {
	if settings.ReenrollmentDelayDays <= 0 {
		return false
	}

	return !now.Before(lastEnrolledAt.AddDate(0, 0, settings.ReenrollmentDelayDays))
}

func matchesTrigger(entry models.EntryCondition, eventType models.RecordEventType, changed []string) bool {
	switch entry.TriggerType {
	case models.TriggerRecordCreated:
		return eventType == models.RecordEventCreated
	case models.TriggerRecordUpdated:
		return eventType == models.RecordEventUpdated
	case models.TriggerRecordCreatedOrUpdated:
		return eventType == models.RecordEventCreated || eventType == models.RecordEventUpdated
	case models.TriggerFieldChanged:
		if eventType != models.RecordEventUpdated {
			return false
		}

		return len(entry.WatchedFields) == 0 || intersects(entry.WatchedFields, changed)
	default:
		return false
	}
}

// intersects compares field names ignoring case and the snake_case/camelCase spelling.
func intersects(watched, changed []string) bool {
	set := make(map[string]struct{}, len(changed))
	for _, field := range changed {
		set[fieldKey(field)] = struct{}{}
	}

	for _, field := range watched {
		if _, ok := set[fieldKey(field)]; ok {
			return true
		}
	}

	return false
}

func fieldKey(field string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(field), "_", ""))
}

// ChangedFields lists the top-level keys whose values differ between two versions of a record.
func ChangedFields(previous, current models.Record) []string {
	var changed []string

	for key, value := range current {
		old, ok := previous[key]
		if !ok || !reflect.DeepEqual(old, value) {
			changed = append(changed, key)
		}
	}

	for key := range previous {
		if _, ok := current[key]; !ok {
			changed = append(changed, key)
		}
	}

	sort.Strings(changed)

	return changed
}

func enrich(record models.Record, recordType models.RecordType, recordID string) models.Record {
	enriched := record.WithType(recordType)
	if enriched.ID() == "" && recordID != "" {
		enriched["id"] = recordID
	}

	return enriched
}

func entryMessage(execution *models.WorkflowExecution) models.StepMessage {
	return models.StepMessage{
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		TenantID:    execution.TenantID,
		StepID:      execution.CurrentStepID,
	}
}
