// Package engine advances workflow executions one step per queue message.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/petflow/pkg/condition"
	"github.com/dukex/petflow/pkg/eventbus"
	"github.com/dukex/petflow/pkg/events"
	"github.com/dukex/petflow/pkg/metrics"
	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/otelhelper"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/dukex/petflow/pkg/protocol"
	"github.com/dukex/petflow/pkg/queue"
	"github.com/dukex/petflow/pkg/scheduler"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultLease is how long a delivery holds an execution while it processes a step.
	DefaultLease = 5 * time.Minute

	// Scheduled resumes arriving this early are still honoured.
	resumeTolerance = models.MinWaitDelay

	// Retries past this exponent keep the 2^20 minute delay.
	maxBackoffExponent = 20
)

// Status is the outcome of processing one message.
type Status string

const (
	StatusProcessed Status = "processed" // A transition was persisted
	StatusSkipped   Status = "skipped"   // Nothing to do: stale, terminal or not yet due
	StatusFailed    Status = "failed"    // Must be redelivered by the queue
)

// Result describes what ProcessStepMessage did.
type Result struct {
	Status          Status
	ExecutionStatus models.ExecutionStatus
	Reason          string
	Err             error
}

// Success is false only when the message has to be redelivered.
func (r Result) Success() bool {
	return r.Status != StatusFailed
}

// Dependencies are the collaborators of a Processor.
type Dependencies struct {
	Workflows  persistence.WorkflowRepository
	Executions persistence.ExecutionRepository
	Logs       persistence.ExecutionLogRepository
	Records    persistence.RecordStore
	Actions    protocol.ActionExecutor
	Queue      queue.Queue
	Scheduler  scheduler.Scheduler
	// Publisher receives execution.finished events. Optional.
	Publisher eventbus.EventPublisher
}

// Processor is the execution state machine.
type Processor struct {
	deps      Dependencies
	logbook   *Logbook
	evaluator *condition.Evaluator
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
	lease     time.Duration
}

type Option func(*Processor)

// WithClock replaces time.Now for scheduling, leases, logs and relative date conditions.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

func WithLease(lease time.Duration) Option {
	return func(p *Processor) {
		p.lease = lease
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Processor) {
		p.tracer = tracer
	}
}

func NewProcessor(deps Dependencies, logger *slog.Logger, opts ...Option) *Processor {
	p := &Processor{
		deps:   deps,
		logger: logger.With("module", "step_processor"),
		now:    time.Now,
		lease:  DefaultLease,
		tracer: otelhelper.NoopTracer(),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.logbook = NewLogbook(deps.Logs, p.logger, p.now)
	p.evaluator = &condition.Evaluator{
		Now: p.now,
		OnUnknownOperator: func(cond models.Condition) {
			p.logger.Warn("Unknown condition operator evaluated as false", "operator", cond.Operator, "field", cond.Field)
		},
	}

	return p
}

// run is the state of one message being processed.
type run struct {
	msg       models.StepMessage
	now       time.Time
	logger    *slog.Logger
	execution *models.WorkflowExecution
	workflow  *models.Workflow
	step      *models.WorkflowStep
	record    models.Record
	claimed   bool
	resumed   bool
}

// ProcessStepMessage processes exactly one step of one execution.
func (p *Processor) ProcessStepMessage(ctx context.Context, msg models.StepMessage) (result Result) {
	started := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "engine.process_step",
		attribute.String(otelhelper.TenantIDKey, msg.TenantID),
		attribute.String(otelhelper.WorkflowIDKey, msg.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, msg.ExecutionID),
		attribute.String(otelhelper.StepIDKey, msg.StepID),
	)
	defer span.End()

	r := &run{
		msg: msg,
		now: p.now().UTC(),
		logger: p.logger.With(
			"tenant_id", msg.TenantID,
			"workflow_id", msg.WorkflowID,
			"execution_id", msg.ExecutionID,
		),
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			result = p.recoverPanic(ctx, r, recovered)
		}

		stepType := "none"
		if r.step != nil {
			stepType = string(r.step.StepType)
			span.SetAttributes(attribute.String(otelhelper.StepTypeKey, stepType))
		}

		if result.Err != nil {
			otelhelper.SetError(span, result.Err)
		}

		metrics.RecordStep(stepType, string(result.Status), time.Since(started))
	}()

	return p.process(ctx, r)
}

func (p *Processor) recoverPanic(ctx context.Context, r *run, recovered any) Result {
	err := fmt.Errorf("step processing panicked: %v", recovered)

	r.logger.ErrorContext(ctx, "Step processing panicked", "step_id", r.msg.StepID)

	if r.execution != nil {
		stepID := r.msg.StepID
		if r.step != nil {
			stepID = r.step.ID
		}

		p.logbook.Write(ctx, r.execution, Entry{StepID: stepID, Event: models.LogError, Message: "Step processing panicked", Err: err})
		p.release(ctx, r)
	}

	return Result{Status: StatusFailed, Err: err}
}

func (p *Processor) process(ctx context.Context, r *run) Result {
	execution, err := p.deps.Executions.GetByID(ctx, r.msg.TenantID, r.msg.ExecutionID)
	if err != nil {
		if errors.Is(err, persistence.ErrExecutionNotFound) {
			r.logger.WarnContext(ctx, "Dropping message for unknown execution")

			return Result{Status: StatusSkipped, Reason: "execution_not_found"}
		}

		return redrive(err)
	}

	r.execution = execution

	if execution.WorkflowID != r.msg.WorkflowID {
		r.logger.WarnContext(ctx, "Dropping message whose workflow does not match the execution")

		return p.skipped(r, "workflow_mismatch")
	}

	if execution.Status.IsTerminal() {
		r.logger.DebugContext(ctx, "Execution already finished, ignoring message", "status", execution.Status)

		return p.skipped(r, "terminal")
	}

	targetID := r.msg.StepID
	if targetID == "" {
		targetID = execution.CurrentStepID
	}

	if targetID != execution.CurrentStepID {
		return p.stale(ctx, r, targetID)
	}

	if execution.LeaseActive(r.now) {
		return redrive(ErrExecutionLeased)
	}

	graph, err := p.loadGraph(ctx, r)
	if err != nil {
		return p.failOrRedrive(ctx, r, err)
	}

	if targetID == "" {
		return p.complete(ctx, r, models.ReasonCompleted)
	}

	step, ok := graph.Step(targetID)
	if !ok {
		return p.fail(ctx, r, newError(KindConfiguration, "ResolveStep", execution.ID, targetID,
			fmt.Errorf("step %s does not exist in revision %d", targetID, execution.WorkflowRevision)))
	}

	r.step = step
	r.logger = r.logger.With("step_id", step.ID, "step_type", step.StepType)

	err = p.loadRecord(ctx, r)
	if err != nil {
		return p.failOrRedrive(ctx, r, err)
	}

	if execution.Status == models.ExecutionStatusWaiting {
		result, handled := p.checkResume(ctx, r)
		if handled {
			return result
		}
	}

	goal := r.workflow.Settings.GoalConfig
	if r.workflow.Settings.GoalEnabled() && !goal.Conditions.IsEmpty() && p.evaluator.Evaluate(goal.Conditions, r.record) {
		p.write(ctx, r, models.LogGoalReached, "Goal conditions met", nil, nil)

		return p.complete(ctx, r, models.ReasonGoalReached)
	}

	err = p.claim(ctx, r)
	if err != nil {
		return redrive(err)
	}

	return p.dispatch(ctx, r)
}

// loadGraph returns the step graph of the revision the execution enrolled under.
func (p *Processor) loadGraph(ctx context.Context, r *run) (*models.StepGraph, error) {
	execution := r.execution

	workflow, err := p.deps.Workflows.GetByID(ctx, execution.TenantID, execution.WorkflowID)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return nil, newError(KindConfiguration, "LoadWorkflow", execution.ID, "", err)
		}

		return nil, err
	}

	r.workflow = workflow

	revision, err := p.deps.Workflows.GetRevision(ctx, execution.TenantID, execution.WorkflowID, execution.WorkflowRevision)
	if err == nil {
		return revision.Graph(), nil
	}

	if !errors.Is(err, persistence.ErrRevisionNotFound) {
		return nil, err
	}

	if execution.WorkflowRevision == workflow.Revision {
		return workflow.Graph(), nil
	}

	return nil, newError(KindConfiguration, "LoadRevision", execution.ID, "", err)
}

func (p *Processor) loadRecord(ctx context.Context, r *run) error {
	execution := r.execution

	record, err := p.deps.Records.GetRecord(ctx, execution.TenantID, execution.RecordType, execution.RecordID)
	if err != nil {
		switch {
		case errors.Is(err, persistence.ErrRecordNotFound):
			return newError(KindDataNotFound, "LoadRecord", execution.ID, r.step.ID, err)
		case errors.Is(err, persistence.ErrUnknownRecordType):
			return newError(KindConfiguration, "LoadRecord", execution.ID, r.step.ID, err)
		default:
			return err
		}
	}

	r.record = record.WithType(execution.RecordType)

	return nil
}

// checkResume decides whether a message may resume a waiting execution. When handled is
// true the returned result ends processing.
func (p *Processor) checkResume(ctx context.Context, r *run) (Result, bool) {
	execution := r.execution

	if r.step.StepType == models.StepTypeWait {
		cfg, err := r.step.WaitConfig()
		if err != nil {
			return p.fail(ctx, r, newError(KindConfiguration, "WaitConfig", execution.ID, r.step.ID, err)), true
		}

		if cfg.WaitType == models.WaitTypeUntilEvent {
			if r.msg.Event == nil {
				return p.skipped(r, "awaiting_event"), true
			}

			if cfg.Event != "" && !strings.EqualFold(strings.TrimSpace(r.msg.Event.Name), cfg.Event) {
				r.logger.InfoContext(ctx, "Ignoring event that the wait is not waiting for", "event", r.msg.Event.Name)

				return p.skipped(r, "event_mismatch"), true
			}

			r.resumed = true

			return Result{}, false
		}
	}

	if execution.ScheduledAt != nil && execution.ScheduledAt.After(r.now.Add(resumeTolerance)) {
		msg := p.message(r, r.step.ID)

		err := p.deps.Scheduler.ScheduleResume(ctx, msg, *execution.ScheduledAt)
		if err != nil {
			return redrive(newError(KindScheduling, "ScheduleResume", execution.ID, r.step.ID, err)), true
		}

		r.logger.DebugContext(ctx, "Early delivery rescheduled", "scheduled_at", execution.ScheduledAt)

		return p.skipped(r, "rescheduled"), true
	}

	r.resumed = r.step.StepType == models.StepTypeWait

	return Result{}, false
}

// stale handles a message for a step the execution is no longer at. If the step is the one
// just left and the follow-up message may have been lost, the current step is dispatched again.
func (p *Processor) stale(ctx context.Context, r *run, targetID string) Result {
	execution := r.execution

	if targetID != "" &&
		targetID == execution.PreviousStepID &&
		execution.DispatchPending &&
		execution.Status == models.ExecutionStatusRunning &&
		!execution.LeaseActive(r.now) {
		err := p.deps.Queue.Enqueue(ctx, p.message(r, execution.CurrentStepID))
		if err != nil {
			return redrive(newError(KindScheduling, "Enqueue", execution.ID, execution.CurrentStepID, err))
		}

		r.logger.InfoContext(ctx, "Re-dispatched current step after redelivery of the previous one",
			"previous_step_id", targetID, "current_step_id", execution.CurrentStepID)

		return p.skipped(r, "redispatched")
	}

	r.logger.DebugContext(ctx, "Ignoring stale step message", "message_step_id", targetID, "current_step_id", execution.CurrentStepID)

	return p.skipped(r, "stale_step")
}

// claim takes the lease on the execution. Losing the compare-and-swap means another delivery won.
func (p *Processor) claim(ctx context.Context, r *run) error {
	lease := r.now.Add(p.lease)

	r.execution.LeaseUntil = &lease
	r.execution.DispatchPending = false

	err := p.deps.Executions.Update(ctx, r.execution)
	if err != nil {
		return fmt.Errorf("failed to claim execution: %w", err)
	}

	r.claimed = true

	return nil
}

// release drops the lease so a redelivery can proceed without waiting for it to expire.
func (p *Processor) release(ctx context.Context, r *run) {
	if !r.claimed {
		return
	}

	r.execution.LeaseUntil = nil

	err := p.deps.Executions.Update(ctx, r.execution)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to release execution lease", "error", err)
	}

	r.claimed = false
}

func (p *Processor) dispatch(ctx context.Context, r *run) Result {
	step := r.step

	if r.resumed {
		metadata := map[string]any{}
		if r.msg.Event != nil {
			metadata["event"] = r.msg.Event.Name
			metadata["payload"] = r.msg.Event.Payload
		}

		r.execution.Metadata.WaitingForEvent = ""
		p.write(ctx, r, models.LogWaitResumed, "Wait finished", nil, metadata)

		return p.advance(ctx, r, step.NextStepID)
	}

	p.write(ctx, r, models.LogStepStarted, "Step started", nil, map[string]any{
		"step_type": step.StepType,
		"name":      step.Name,
	})

	switch step.StepType {
	case models.StepTypeAction:
		return p.runAction(ctx, r)
	case models.StepTypeWait:
		return p.startWait(ctx, r)
	case models.StepTypeDeterminator:
		return p.determine(ctx, r)
	case models.StepTypeGate:
		return p.gate(ctx, r)
	case models.StepTypeTerminus:
		p.write(ctx, r, models.LogTerminusReached, "Terminus reached", nil, nil)

		return p.complete(ctx, r, models.ReasonTerminus)
	default:
		return p.fail(ctx, r, newError(KindConfiguration, "Dispatch", r.execution.ID, step.ID,
			fmt.Errorf("unknown step type %q", step.StepType)))
	}
}

func (p *Processor) runAction(ctx context.Context, r *run) Result {
	step := r.step
	execution := r.execution
	settings := step.ActionSettings()
	attempt := execution.Metadata.RetryCount(step.ID) + 1

	p.write(ctx, r, models.LogActionStarted, "Action started", nil, map[string]any{
		"action_type": step.ActionType,
		"attempt":     attempt,
	})

	actionCtx, span := otelhelper.StartSpan(ctx, p.tracer, "engine.execute_action",
		attribute.String(otelhelper.ActionTypeKey, step.ActionType),
		attribute.String(otelhelper.StepIDKey, step.ID),
	)

	result := p.deps.Actions.ExecuteAction(actionCtx, step.ActionType, step.Config, protocol.ActionContext{
		TenantID:    execution.TenantID,
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
		StepID:      step.ID,
		RecordType:  execution.RecordType,
		RecordID:    execution.RecordID,
		Record:      r.record,
		Logger:      r.logger,
	})

	if !result.Success {
		otelhelper.SetError(span, errors.New(result.Error))
	}

	span.End()
	metrics.RecordAction(step.ActionType, result.Success)

	if result.Success {
		execution.Metadata.ResetRetry(step.ID)
		p.write(ctx, r, models.LogActionCompleted, "Action completed", nil, map[string]any{
			"action_type": step.ActionType,
			"attempt":     attempt,
			"result":      result.Result,
		})

		return p.advance(ctx, r, step.NextStepID)
	}

	actionErr := errors.New(result.Error)
	p.write(ctx, r, models.LogActionFailed, "Action failed", actionErr, map[string]any{
		"action_type": step.ActionType,
		"attempt":     attempt,
		"result":      result.Result,
	})

	if execution.Metadata.RetryCount(step.ID) < settings.RetryCount {
		return p.scheduleRetry(ctx, r, settings)
	}

	execution.Metadata.ResetRetry(step.ID)

	if settings.ContinueOnError {
		r.logger.InfoContext(ctx, "Retries exhausted, continuing to the next step")

		return p.advance(ctx, r, step.NextStepID)
	}

	return p.fail(ctx, r, newError(KindActionExecution, "ExecuteAction", execution.ID, step.ID, actionErr))
}

// scheduleRetry parks the execution for 2^n minutes, n being the retry number.
func (p *Processor) scheduleRetry(ctx context.Context, r *run, settings models.ActionSettings) Result {
	step := r.step
	execution := r.execution

	retry := execution.Metadata.RetryCount(step.ID) + 1
	delay := retryDelay(retry)
	resumeAt := r.now.Add(delay)

	err := p.deps.Scheduler.ScheduleResume(ctx, p.message(r, step.ID), resumeAt)
	if err != nil {
		p.release(ctx, r)

		return redrive(newError(KindScheduling, "ScheduleResume", execution.ID, step.ID, err))
	}

	execution.Metadata.IncrementRetry(step.ID)
	execution.Status = models.ExecutionStatusWaiting
	execution.ScheduledAt = &resumeAt

	result, ok := p.save(ctx, r)
	if !ok {
		return result
	}

	metrics.RecordRetryScheduled(step.ActionType)
	p.write(ctx, r, models.LogRetryScheduled, fmt.Sprintf("Retry %d of %d scheduled", retry, settings.RetryCount), nil, map[string]any{
		"retry":         retry,
		"max_retries":   settings.RetryCount,
		"delay_minutes": int(delay / time.Minute),
		"scheduled_at":  resumeAt,
	})

	return Result{Status: StatusProcessed, ExecutionStatus: execution.Status, Reason: "retry_scheduled"}
}

func retryDelay(retry int) time.Duration {
	exponent := min(max(retry, 0), maxBackoffExponent)

	return time.Duration(1<<exponent) * time.Minute
}

func (p *Processor) startWait(ctx context.Context, r *run) Result {
	step := r.step
	execution := r.execution

	cfg, err := step.WaitConfig()
	if err != nil {
		return p.fail(ctx, r, newError(KindConfiguration, "WaitConfig", execution.ID, step.ID, err))
	}

	resumeAt, timed, err := cfg.ResumeAt(r.now)
	if err != nil {
		return p.fail(ctx, r, newError(KindConfiguration, "WaitConfig", execution.ID, step.ID, err))
	}

	metadata := map[string]any{"wait_type": cfg.WaitType}

	if timed && !resumeAt.After(r.now) {
		metadata["resume_at"] = resumeAt
		p.write(ctx, r, models.LogWaitStarted, "Wait already elapsed", nil, metadata)

		return p.advance(ctx, r, step.NextStepID)
	}

	if timed {
		err = p.deps.Scheduler.ScheduleResume(ctx, p.message(r, step.ID), resumeAt)
		if err != nil {
			p.release(ctx, r)

			return redrive(newError(KindScheduling, "ScheduleResume", execution.ID, step.ID, err))
		}

		execution.ScheduledAt = &resumeAt
		metadata["resume_at"] = resumeAt
	} else {
		execution.ScheduledAt = nil
		execution.Metadata.WaitingForEvent = cfg.Event
		metadata["event"] = cfg.Event
	}

	execution.Status = models.ExecutionStatusWaiting

	result, ok := p.save(ctx, r)
	if !ok {
		return result
	}

	p.write(ctx, r, models.LogWaitStarted, "Waiting", nil, metadata)

	return Result{Status: StatusProcessed, ExecutionStatus: execution.Status, Reason: "waiting"}
}

func (p *Processor) determine(ctx context.Context, r *run) Result {
	step := r.step

	var selected *models.Branch

	evaluations := make([]map[string]any, 0, len(step.Branches))

	for i := range step.Branches {
		branch := &step.Branches[i]
		if branch.IsElse {
			continue
		}

		matched := p.evaluator.EvaluateGroup(branch.Condition, r.record)
		evaluations = append(evaluations, map[string]any{
			"branch_id": branch.ID,
			"name":      branch.Name,
			"matched":   matched,
		})

		if matched && selected == nil {
			selected = branch
		}
	}

	if selected == nil {
		selected = step.ElseBranch()
	}

	p.write(ctx, r, models.LogBranchEvaluation, "Branches evaluated", nil, map[string]any{"evaluations": evaluations})

	if selected == nil {
		return p.complete(ctx, r, models.ReasonNoBranch)
	}

	p.write(ctx, r, models.LogBranchSelected, "Branch selected", nil, map[string]any{
		"branch_id":    selected.ID,
		"name":         selected.Name,
		"is_else":      selected.IsElse,
		"next_step_id": selected.NextStepID,
	})

	return p.advance(ctx, r, selected.NextStepID)
}

func (p *Processor) gate(ctx context.Context, r *run) Result {
	step := r.step

	if step.Condition != nil && !p.evaluator.EvaluateGroup(*step.Condition, r.record) {
		p.write(ctx, r, models.LogGateBlocked, "Gate conditions not met", nil, nil)

		return p.complete(ctx, r, models.ReasonGateBlocked)
	}

	p.write(ctx, r, models.LogGatePassed, "Gate conditions met", nil, nil)

	return p.advance(ctx, r, step.NextStepID)
}

// advance moves the execution to next and enqueues it. The execution is saved with
// DispatchPending set before the enqueue, so a lost enqueue is recovered on redelivery.
func (p *Processor) advance(ctx context.Context, r *run, next string) Result {
	if next == "" {
		return p.complete(ctx, r, models.ReasonCompleted)
	}

	execution := r.execution
	from := execution.CurrentStepID

	execution.PreviousStepID = from
	execution.CurrentStepID = next
	execution.Status = models.ExecutionStatusRunning
	execution.ScheduledAt = nil
	execution.DispatchPending = true

	result, ok := p.save(ctx, r)
	if !ok {
		return result
	}

	p.write(ctx, r, models.LogStepAdvanced, "Advanced to "+next, nil, map[string]any{"from": from, "to": next})

	err := p.deps.Queue.Enqueue(ctx, p.message(r, next))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to enqueue next step", "next_step_id", next)

		return redrive(newError(KindScheduling, "Enqueue", execution.ID, next, err))
	}

	return Result{Status: StatusProcessed, ExecutionStatus: execution.Status, Reason: "advanced"}
}

func (p *Processor) complete(ctx context.Context, r *run, reason string) Result {
	execution := r.execution
	ended := r.now

	execution.Status = models.ExecutionStatusCompleted
	execution.EndedAt = &ended
	execution.ScheduledAt = nil
	execution.DispatchPending = false
	execution.Metadata.CompletionReason = reason
	execution.Metadata.WaitingForEvent = ""

	result, ok := p.save(ctx, r)
	if !ok {
		return result
	}

	stepID := ""
	if r.step != nil {
		stepID = r.step.ID
	}

	p.logbook.Write(ctx, execution, Entry{
		StepID:   stepID,
		Event:    models.LogCompleted,
		Message:  "Execution completed",
		Metadata: map[string]any{"reason": reason},
	})
	p.finished(ctx, r, reason, nil)

	r.logger.InfoContext(ctx, "Execution completed", "reason", reason)

	return Result{Status: StatusProcessed, ExecutionStatus: execution.Status, Reason: reason}
}

// fail ends the execution. The error text goes to the execution record, not to error-level logs.
func (p *Processor) fail(ctx context.Context, r *run, cause *Error) Result {
	execution := r.execution
	ended := r.now

	execution.Status = models.ExecutionStatusFailed
	execution.EndedAt = &ended
	execution.ScheduledAt = nil
	execution.DispatchPending = false
	execution.Metadata.Error = cause.Err.Error()
	execution.Metadata.ErrorKind = string(cause.Kind)

	result, ok := p.save(ctx, r)
	if !ok {
		return result
	}

	p.logbook.Write(ctx, execution, Entry{
		StepID:   cause.StepID,
		Event:    models.LogFailed,
		Message:  "Execution failed",
		Err:      cause.Err,
		Metadata: map[string]any{"error_kind": cause.Kind, "op": cause.Op},
	})
	p.finished(ctx, r, string(cause.Kind), cause)

	r.logger.ErrorContext(ctx, "Execution failed", "error_kind", cause.Kind, "op", cause.Op, "failed_step_id", cause.StepID)

	return Result{Status: StatusProcessed, ExecutionStatus: execution.Status, Reason: string(cause.Kind), Err: cause}
}

func (p *Processor) failOrRedrive(ctx context.Context, r *run, err error) Result {
	var engineErr *Error
	if errors.As(err, &engineErr) && engineErr.Fatal() {
		return p.fail(ctx, r, engineErr)
	}

	return redrive(err)
}

// save persists the execution with a compare-and-swap on its version and drops the lease.
// On failure the returned result ends processing.
func (p *Processor) save(ctx context.Context, r *run) (Result, bool) {
	lease := r.execution.LeaseUntil
	r.execution.LeaseUntil = nil

	err := p.deps.Executions.Update(ctx, r.execution)
	if err == nil {
		r.claimed = false

		return Result{}, true
	}

	r.execution.LeaseUntil = lease

	if !errors.Is(err, persistence.ErrExecutionConflict) {
		return redrive(fmt.Errorf("failed to save execution: %w", err)), false
	}

	current, getErr := p.deps.Executions.GetByID(ctx, r.execution.TenantID, r.execution.ID)
	if getErr == nil && current.Status.IsTerminal() {
		r.logger.InfoContext(ctx, "Execution finished concurrently, dropping transition", "status", current.Status)

		return Result{Status: StatusSkipped, ExecutionStatus: current.Status, Reason: "finished_concurrently"}, false
	}

	return redrive(err), false
}

func (p *Processor) finished(ctx context.Context, r *run, reason string, cause error) {
	execution := r.execution

	metrics.RecordExecutionFinished(string(execution.Status), reason)

	if p.deps.Publisher == nil {
		return
	}

	event := events.ExecutionFinished{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFinishedEvent, execution.TenantID),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		RecordID:    execution.RecordID,
		Status:      execution.Status,
		Reason:      reason,
	}

	if cause != nil {
		event.Error = cause.Error()
	}

	err := p.deps.Publisher.Publish(ctx, execution.ID, event)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to publish execution finished event", "error", err)
	}
}

func (p *Processor) write(ctx context.Context, r *run, event models.LogEventType, message string, err error, metadata map[string]any) {
	p.logbook.Write(ctx, r.execution, Entry{
		StepID:   r.step.ID,
		Event:    event,
		Message:  message,
		Err:      err,
		Metadata: metadata,
	})
}

func (p *Processor) message(r *run, stepID string) models.StepMessage {
	return models.StepMessage{
		ExecutionID: r.execution.ID,
		WorkflowID:  r.execution.WorkflowID,
		TenantID:    r.execution.TenantID,
		StepID:      stepID,
	}
}

func (p *Processor) skipped(r *run, reason string) Result {
	return Result{Status: StatusSkipped, ExecutionStatus: r.execution.Status, Reason: reason}
}

func redrive(err error) Result {
	return Result{Status: StatusFailed, Err: err}
}
