// Package queue hands step messages to the worker processes.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/dukex/petflow/pkg/eventbus"
	"github.com/dukex/petflow/pkg/events"
	"github.com/dukex/petflow/pkg/models"
)

// Queue is an at-least-once step message queue.
type Queue interface {
	Enqueue(ctx context.Context, msg models.StepMessage) error
}

// BusQueue publishes step messages as StepReady events keyed by execution id.
type BusQueue struct {
	publisher eventbus.EventPublisher
}

func NewBusQueue(publisher eventbus.EventPublisher) *BusQueue {
	return &BusQueue{publisher: publisher}
}

func (q *BusQueue) Enqueue(ctx context.Context, msg models.StepMessage) error {
	err := q.publisher.Publish(ctx, msg.ExecutionID, events.StepReady{
		BaseEvent: events.NewBaseEvent(events.StepReadyEvent, msg.TenantID),
		Message:   msg,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue step %q of execution %s: %w", msg.StepID, msg.ExecutionID, err)
	}

	return nil
}

// MemoryQueue is a FIFO queue held in memory.
type MemoryQueue struct {
	mu       sync.Mutex
	messages []models.StepMessage
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg models.StepMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.messages = append(q.messages, msg)

	return nil
}

// Pop removes the oldest message.
func (q *MemoryQueue) Pop() (models.StepMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return models.StepMessage{}, false
	}

	msg := q.messages[0]
	q.messages = q.messages[1:]

	return msg, true
}

// Len returns the number of pending messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.messages)
}

// Messages returns a copy of the pending messages.
func (q *MemoryQueue) Messages() []models.StepMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]models.StepMessage(nil), q.messages...)
}
