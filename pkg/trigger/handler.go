package trigger

import (
	"context"
	"fmt"

	"github.com/dukex/petflow/pkg/eventbus"
	"github.com/dukex/petflow/pkg/events"
)

// HandleRecordChanged is the event bus handler for record mutations. An error makes the bus
// redeliver the event; workflows that already enrolled the record skip it the second time.
func (e *Evaluator) HandleRecordChanged(ctx context.Context, event any) error {
	changed, ok := event.(*events.RecordChanged)
	if !ok {
		e.logger.ErrorContext(ctx, "Unexpected event type on record handler", "event", fmt.Sprintf("%T", event))

		return nil
	}

	results, err := e.EvaluateTriggers(ctx, RecordEvent{
		TenantID:       changed.TenantID,
		RecordType:     changed.RecordType,
		RecordID:       changed.RecordID,
		EventType:      changed.EventType,
		Record:         changed.Record,
		PreviousRecord: changed.PreviousRecord,
		ChangedFields:  changed.ChangedFields,
	})
	if err != nil {
		return fmt.Errorf("record %s %s: %w", changed.RecordType, changed.RecordID, err)
	}

	e.logger.DebugContext(ctx, "Record event evaluated",
		"tenant_id", changed.TenantID,
		"record_type", changed.RecordType,
		"record_id", changed.RecordID,
		"workflows", len(results),
		"enrolled", countEnrolled(results))

	return nil
}

// Register subscribes the evaluator to record change events.
func (e *Evaluator) Register(subscriber eventbus.EventSubscriber) error {
	return subscriber.Handle(events.RecordChangedEvent, e.HandleRecordChanged)
}
