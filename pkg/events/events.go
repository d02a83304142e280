// Package events defines the messages exchanged between the trigger, worker and scheduler processes.
package events

import (
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const (
	StepTopic         = "petflow.steps"         // Step messages consumed by the worker
	RecordTopic       = "petflow.records"       // Record mutations consumed by the trigger evaluator
	NotificationTopic = "petflow.notifications" // Email/SMS requests for the external notifier
	ExecutionTopic    = "petflow.executions"    // Execution lifecycle notifications
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	StepReadyEvent             EventType = "step.ready"
	RecordChangedEvent         EventType = "record.changed"
	NotificationRequestedEvent EventType = "notification.requested"
	ExecutionFinishedEvent     EventType = "execution.finished"
)

// Topic returns the topic an event type is published to.
func Topic(eventType EventType) string {
	switch eventType {
	case StepReadyEvent:
		return StepTopic
	case RecordChangedEvent:
		return RecordTopic
	case NotificationRequestedEvent:
		return NotificationTopic
	default:
		return ExecutionTopic
	}
}

// New returns an empty event of the given type to decode a payload into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case StepReadyEvent:
		return &StepReady{}, true
	case RecordChangedEvent:
		return &RecordChanged{}, true
	case NotificationRequestedEvent:
		return &NotificationRequested{}, true
	case ExecutionFinishedEvent:
		return &ExecutionFinished{}, true
	default:
		return nil, false
	}
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent fills the common fields of an event.
func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
	}
}

// StepReady asks a worker to process one step of an execution.
type StepReady struct {
	BaseEvent

	Message models.StepMessage `json:"message"`
}

func (s StepReady) GetType() EventType {
	return StepReadyEvent
}

// RecordChanged is emitted by the business API whenever a record is created or updated.
type RecordChanged struct {
	BaseEvent

	RecordType     models.RecordType      `json:"record_type"`
	RecordID       string                 `json:"record_id"`
	EventType      models.RecordEventType `json:"event_type"`
	Record         models.Record          `json:"record"`
	PreviousRecord models.Record          `json:"previous_record,omitempty"`
	ChangedFields  []string               `json:"changed_fields,omitempty"`
}

func (r RecordChanged) GetType() EventType {
	return RecordChangedEvent
}

// NotificationChannel is the delivery medium of a notification.
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

// NotificationRequested hands an email or SMS to the external notifier.
type NotificationRequested struct {
	BaseEvent

	Channel     NotificationChannel `json:"channel"`
	To          string              `json:"to"`
	Subject     string              `json:"subject,omitempty"`
	Body        string              `json:"body"`
	ExecutionID string              `json:"execution_id"`
	WorkflowID  string              `json:"workflow_id"`
	StepID      string              `json:"step_id"`
	RecordID    string              `json:"record_id"`
}

func (n NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}

// ExecutionFinished reports that an execution reached a terminal status.
type ExecutionFinished struct {
	BaseEvent

	ExecutionID string                 `json:"execution_id"`
	WorkflowID  string                 `json:"workflow_id"`
	RecordID    string                 `json:"record_id"`
	Status      models.ExecutionStatus `json:"status"`
	Reason      string                 `json:"reason,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

func (e ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}
