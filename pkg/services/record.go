package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/petflow/pkg/eventbus"
	"github.com/dukex/petflow/pkg/events"
	"github.com/dukex/petflow/pkg/models"
	"github.com/go-playground/validator/v10"
)

// RecordEventRequest reports a record mutation made by the business API.
type RecordEventRequest struct {
	RecordType     models.RecordType      `json:"record_type"               validate:"required"`
	RecordID       string                 `json:"record_id"                 validate:"required"`
	EventType      models.RecordEventType `json:"event_type"                validate:"required,oneof=created updated"`
	Record         models.Record          `json:"record"                    validate:"required"`
	PreviousRecord models.Record          `json:"previous_record,omitempty"`
	ChangedFields  []string               `json:"changed_fields,omitempty"`
}

// RecordEvents publishes record mutations for the trigger evaluator.
type RecordEvents struct {
	publisher eventbus.EventPublisher
	validate  *validator.Validate
}

func NewRecordEvents(publisher eventbus.EventPublisher) *RecordEvents {
	return &RecordEvents{
		publisher: publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Publish validates a record mutation and puts it on the bus keyed by record id, so the
// events of one record are evaluated in order.
func (r *RecordEvents) Publish(ctx context.Context, tenantID string, req RecordEventRequest) (string, error) {
	if strings.TrimSpace(tenantID) == "" {
		return "", ErrTenantRequired
	}

	err := r.validate.Struct(req)
	if err != nil {
		return "", NewValidationError("PublishRecordEvent", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	if !req.RecordType.Valid() {
		return "", NewValidationError("PublishRecordEvent", "INVALID_RECORD_TYPE",
			fmt.Sprintf("unknown record type '%s'", req.RecordType), ErrInvalidRequest)
	}

	event := events.RecordChanged{
		BaseEvent:      events.NewBaseEvent(events.RecordChangedEvent, tenantID),
		RecordType:     req.RecordType,
		RecordID:       req.RecordID,
		EventType:      req.EventType,
		Record:         req.Record,
		PreviousRecord: req.PreviousRecord,
		ChangedFields:  req.ChangedFields,
	}

	err = r.publisher.Publish(ctx, req.RecordID, event)
	if err != nil {
		return "", fmt.Errorf("failed to publish record event: %w", err)
	}

	return event.ID, nil
}
