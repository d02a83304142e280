package models

import "time"

// ExecutionStatus is the state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// IsLive reports whether the execution still occupies its (workflow, record) slot.
func (s ExecutionStatus) IsLive() bool {
	return s == ExecutionStatusRunning || s == ExecutionStatusWaiting
}

// Completion reasons recorded in execution metadata.
const (
	ReasonCompleted   = "completed"
	ReasonGoalReached = "goal_reached"
	ReasonGateBlocked = "gate_blocked"
	ReasonNoBranch    = "no_branch_matched"
	ReasonTerminus    = "terminus_reached"
	ReasonUnenrolled  = "unenrolled"
	ReasonCancelled   = "cancelled"
)

// WorkflowExecution is one enrollment of a record into a workflow.
type WorkflowExecution struct {
	ID               string            `json:"id"`
	TenantID         string            `json:"tenant_id"`
	WorkflowID       string            `json:"workflow_id"`
	WorkflowRevision int               `json:"workflow_revision"`
	RecordID         string            `json:"record_id"`
	RecordType       RecordType        `json:"record_type"`
	Status           ExecutionStatus   `json:"status"`
	CurrentStepID    string            `json:"current_step_id,omitempty"`
	PreviousStepID   string            `json:"previous_step_id,omitempty"`
	ScheduledAt      *time.Time        `json:"scheduled_at,omitempty"`
	Metadata         ExecutionMetadata `json:"metadata"`
	Version          int64             `json:"version"`
	LeaseUntil       *time.Time        `json:"lease_until,omitempty"`
	DispatchPending  bool              `json:"dispatch_pending"`
	EnrolledAt       time.Time         `json:"enrolled_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	EndedAt          *time.Time        `json:"ended_at,omitempty"`
}

// ExecutionMetadata is the structured state carried by an execution.
type ExecutionMetadata struct {
	RetryCounts      map[string]int `json:"retryCounts,omitempty"`
	CompletionReason string         `json:"completionReason,omitempty"`
	Error            string         `json:"error,omitempty"`
	ErrorKind        string         `json:"errorKind,omitempty"`
	EnrolledBy       string         `json:"enrolledBy,omitempty"`
	TriggerEvent     string         `json:"triggerEvent,omitempty"`
	WaitingForEvent  string         `json:"waitingForEvent,omitempty"`
	CancelledBy      string         `json:"cancelledBy,omitempty"`
}

// RetryCount returns how many retries have been scheduled for a step.
func (m ExecutionMetadata) RetryCount(stepID string) int {
	return m.RetryCounts[stepID]
}

// IncrementRetry bumps the retry counter of a step and returns the new value.
func (m *ExecutionMetadata) IncrementRetry(stepID string) int {
	if m.RetryCounts == nil {
		m.RetryCounts = make(map[string]int)
	}

	m.RetryCounts[stepID]++

	return m.RetryCounts[stepID]
}

// ResetRetry clears the retry counter of a step.
func (m *ExecutionMetadata) ResetRetry(stepID string) {
	delete(m.RetryCounts, stepID)
}

// LeaseActive reports whether another delivery currently holds the execution.
func (e *WorkflowExecution) LeaseActive(now time.Time) bool {
	return e.LeaseUntil != nil && e.LeaseUntil.After(now)
}

// StepMessage is the queue payload that asks the step processor to process one step.
type StepMessage struct {
	ExecutionID string         `json:"executionId"`
	WorkflowID  string         `json:"workflowId"`
	TenantID    string         `json:"tenantId"`
	StepID      string         `json:"stepId,omitempty"`
	Event       *ExternalEvent `json:"event,omitempty"`
}

// ExternalEvent resumes an execution parked at an until_event wait.
type ExternalEvent struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}
