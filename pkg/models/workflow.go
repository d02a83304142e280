// Package models defines the core domain models for record-driven workflow automation.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft  WorkflowStatus = "draft"  // Editable, never enrolls
	WorkflowStatusActive WorkflowStatus = "active" // Enrolls records and runs executions
	WorkflowStatusPaused WorkflowStatus = "paused" // Stops enrolling, in-flight executions keep running
)

// TriggerType decides which record events enroll records into a workflow.
type TriggerType string

const (
	TriggerRecordCreated          TriggerType = "record_created"
	TriggerRecordUpdated          TriggerType = "record_updated"
	TriggerRecordCreatedOrUpdated TriggerType = "record_created_or_updated"
	TriggerFieldChanged           TriggerType = "field_changed"
	TriggerManual                 TriggerType = "manual"
	TriggerScheduled              TriggerType = "scheduled"
)

// Workflow is a tenant-owned automation definition targeting one record object type.
type Workflow struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"                   validate:"required"`
	Name            string          `json:"name"                        validate:"required,min=3"`
	Description     string          `json:"description"`
	ObjectType      RecordType      `json:"object_type"                 validate:"required,oneof=pet owner booking invoice payment task"`
	Status          WorkflowStatus  `json:"status"                      validate:"required,oneof=draft active paused"`
	EntryCondition  EntryCondition  `json:"entry_condition"`
	Settings        Settings        `json:"settings"`
	StartStepID     string          `json:"start_step_id,omitempty"`
	Steps           []*WorkflowStep `json:"steps"`
	Revision        int             `json:"revision"`
	LastTriggeredAt *time.Time      `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       *time.Time      `json:"deleted_at,omitempty"`
}

// EntryCondition is the trigger definition of a workflow.
type EntryCondition struct {
	TriggerType   TriggerType     `json:"triggerType"             validate:"required,oneof=record_created record_updated record_created_or_updated field_changed manual scheduled"`
	WatchedFields []string        `json:"watchedFields,omitempty"`
	Filters       ConditionConfig `json:"filters"`
	Schedule      *Schedule       `json:"schedule,omitempty"`
}

// Settings controls re-enrollment and goal behaviour.
type Settings struct {
	AllowReenrollment          bool        `json:"allowReenrollment"`
	ReenrollmentDelayDays      int         `json:"reenrollmentDelayDays"      validate:"min=0"`
	UnenrollFromOtherWorkflows bool        `json:"unenrollFromOtherWorkflows"`
	GoalConfig                 *GoalConfig `json:"goalConfig,omitempty"`
}

// GoalConfig is an early-exit condition evaluated before every step.
type GoalConfig struct {
	Enabled    bool            `json:"enabled"`
	Conditions ConditionConfig `json:"conditions"`
}

// IsActive reports whether the workflow enrolls records.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive && w.DeletedAt == nil
}

// Graph builds the step graph of the live definition.
func (w *Workflow) Graph() *StepGraph {
	return NewStepGraph(w.StartStepID, w.Steps)
}

// GoalEnabled reports whether a goal condition is configured and switched on.
func (s Settings) GoalEnabled() bool {
	return s.GoalConfig != nil && s.GoalConfig.Enabled
}

// WorkflowRevision is the immutable step graph a workflow had at a given revision.
// Executions run against the revision they enrolled under.
type WorkflowRevision struct {
	WorkflowID  string          `json:"workflow_id"`
	TenantID    string          `json:"tenant_id"`
	Revision    int             `json:"revision"`
	StartStepID string          `json:"start_step_id"`
	Steps       []*WorkflowStep `json:"steps"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Graph builds the step graph of the snapshot.
func (r *WorkflowRevision) Graph() *StepGraph {
	return NewStepGraph(r.StartStepID, r.Steps)
}
