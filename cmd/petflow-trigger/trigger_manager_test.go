package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/petflow/pkg/eventbus"
	"github.com/dukex/petflow/pkg/events"
	"github.com/dukex/petflow/pkg/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeEvaluator struct {
	registerErr error
	ran         bool
}

func (f *fakeEvaluator) Register(subscriber eventbus.EventSubscriber) error {
	if f.registerErr != nil {
		return f.registerErr
	}

	return subscriber.Handle(events.RecordChangedEvent, func(context.Context, any) error { return nil })
}

func (f *fakeEvaluator) RunScheduled(ctx context.Context) error {
	f.ran = true

	<-ctx.Done()

	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cancelledContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	return ctx
}

func TestTriggerManager_Start(t *testing.T) {
	tests := []struct {
		name      string
		scheduled bool
	}{
		{name: "with scheduled pass", scheduled: true},
		{name: "record events only", scheduled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &mocks.MockEventBus{}
			bus.On("Handle", events.RecordChangedEvent, mock.Anything).Return(nil)
			bus.On("Subscribe", mock.Anything).Return(nil)

			evaluator := &fakeEvaluator{}
			manager := NewTriggerManager(evaluator, bus, discardLogger(), tt.scheduled)

			require.NoError(t, manager.Start(cancelledContext(t)))
			assert.Equal(t, tt.scheduled, evaluator.ran)
			bus.AssertExpectations(t)
		})
	}
}

func TestTriggerManager_StartErrors(t *testing.T) {
	t.Run("register", func(t *testing.T) {
		bus := &mocks.MockEventBus{}
		manager := NewTriggerManager(&fakeEvaluator{registerErr: errors.New("closed")}, bus, discardLogger(), true)

		err := manager.Start(t.Context())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to register record event handler")
	})

	t.Run("subscribe", func(t *testing.T) {
		bus := &mocks.MockEventBus{}
		bus.On("Handle", events.RecordChangedEvent, mock.Anything).Return(nil)
		bus.On("Subscribe", mock.Anything).Return(errors.New("broker unavailable"))

		evaluator := &fakeEvaluator{}
		manager := NewTriggerManager(evaluator, bus, discardLogger(), true)

		require.EqualError(t, manager.Start(t.Context()), "broker unavailable")
		assert.False(t, evaluator.ran)
	})
}
