package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/petflow/pkg/eventbus"
	"github.com/dukex/petflow/pkg/events"
	"github.com/dukex/petflow/pkg/models"
)

// StepProcessor processes one step message.
type StepProcessor interface {
	ProcessStepMessage(ctx context.Context, msg models.StepMessage) Result
}

// BatchItemFailure identifies a message of a batch that must be redelivered.
type BatchItemFailure struct {
	Index       int
	ExecutionID string
	Err         error
}

// BatchResult lists the failed messages of a batch. The rest may be acknowledged.
type BatchResult struct {
	Failures []BatchItemFailure
}

// Consumer feeds queue deliveries to a StepProcessor.
type Consumer struct {
	processor StepProcessor
	logger    *slog.Logger
}

func NewConsumer(processor StepProcessor, logger *slog.Logger) *Consumer {
	return &Consumer{processor: processor, logger: logger.With("module", "step_consumer")}
}

// HandleBatch processes messages in order and reports the ones that need redelivery.
func (c *Consumer) HandleBatch(ctx context.Context, messages []models.StepMessage) BatchResult {
	var result BatchResult

	for i, msg := range messages {
		processed := c.processor.ProcessStepMessage(ctx, msg)
		if processed.Success() {
			continue
		}

		c.logger.WarnContext(ctx, "Step message will be redelivered",
			"execution_id", msg.ExecutionID, "step_id", msg.StepID, "error", processed.Err)

		result.Failures = append(result.Failures, BatchItemFailure{Index: i, ExecutionID: msg.ExecutionID, Err: processed.Err})
	}

	return result
}

// HandleStepReady is the event bus handler for step.ready events. A returned error nacks the message.
func (c *Consumer) HandleStepReady(ctx context.Context, event any) error {
	stepReady, ok := event.(*events.StepReady)
	if !ok {
		c.logger.ErrorContext(ctx, "Unexpected event type on step handler", "event", fmt.Sprintf("%T", event))

		return nil
	}

	batch := c.HandleBatch(ctx, []models.StepMessage{stepReady.Message})
	if len(batch.Failures) > 0 {
		return fmt.Errorf("step %q of execution %s: %w", stepReady.Message.StepID, stepReady.Message.ExecutionID, batch.Failures[0].Err)
	}

	return nil
}

// Register subscribes the consumer to step.ready events.
func (c *Consumer) Register(subscriber eventbus.EventSubscriber) error {
	return subscriber.Handle(events.StepReadyEvent, c.HandleStepReady)
}
