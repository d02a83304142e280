// Package eventbus provides the message transport between the petflow processes.
package eventbus

import (
	"context"
	"errors"

	"github.com/dukex/petflow/pkg/events"
)

// ErrHandlerRegistered is returned when a second handler is registered for one event type.
var ErrHandlerRegistered = errors.New("handler already registered for event type")

// Event is any payload routed by its type to a topic.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends events. Events sharing a key keep their relative order.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes incoming events to handlers. Handle must be called before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler processes one decoded event. Returning an error nacks the message so it is redelivered.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}
