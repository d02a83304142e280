package models

import "time"

// LogEventType names a transition recorded in the execution log.
type LogEventType string

const (
	LogEnrolled         LogEventType = "enrolled"
	LogUnenrolled       LogEventType = "unenrolled"
	LogStepStarted      LogEventType = "step_started"
	LogActionStarted    LogEventType = "action_started"
	LogActionCompleted  LogEventType = "action_completed"
	LogActionFailed     LogEventType = "action_failed"
	LogRetryScheduled   LogEventType = "retry_scheduled"
	LogWaitStarted      LogEventType = "wait_started"
	LogWaitResumed      LogEventType = "wait_resumed"
	LogBranchEvaluation LogEventType = "branch_evaluation"
	LogBranchSelected   LogEventType = "branch_selected"
	LogGatePassed       LogEventType = "gate_passed"
	LogGateBlocked      LogEventType = "gate_blocked"
	LogGoalReached      LogEventType = "goal_reached"
	LogTerminusReached  LogEventType = "terminus_reached"
	LogStepAdvanced     LogEventType = "step_advanced"
	LogCompleted        LogEventType = "completed"
	LogFailed           LogEventType = "failed"
	LogCancelled        LogEventType = "cancelled"
	LogError            LogEventType = "error"
)

// WorkflowExecutionLog is one append-only audit entry of an execution.
type WorkflowExecutionLog struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"execution_id"`
	TenantID    string          `json:"tenant_id"`
	StepID      *string         `json:"step_id,omitempty"`
	EventType   LogEventType    `json:"event_type"`
	Status      ExecutionStatus `json:"status"`
	Message     string          `json:"message,omitempty"`
	Error       string          `json:"error,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
