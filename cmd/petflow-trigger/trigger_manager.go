package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/petflow/pkg/eventbus"
)

// Evaluator enrolls records from bus events and from the scheduled pass.
type Evaluator interface {
	Register(subscriber eventbus.EventSubscriber) error
	RunScheduled(ctx context.Context) error
}

type TriggerManager struct {
	evaluator Evaluator
	eventBus  eventbus.EventSubscriber
	logger    *slog.Logger
	scheduled bool
}

func NewTriggerManager(evaluator Evaluator, eventBus eventbus.EventSubscriber, logger *slog.Logger, scheduled bool) *TriggerManager {
	return &TriggerManager{
		evaluator: evaluator,
		eventBus:  eventBus,
		logger:    logger,
		scheduled: scheduled,
	}
}

// Start consumes record events and, when enabled, runs the scheduled pass until ctx is cancelled.
func (m *TriggerManager) Start(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Starting trigger manager", "scheduled", m.scheduled)

	err := m.evaluator.Register(m.eventBus)
	if err != nil {
		return fmt.Errorf("failed to register record event handler: %w", err)
	}

	err = m.eventBus.Subscribe(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if m.scheduled {
		return m.evaluator.RunScheduled(ctx)
	}

	<-ctx.Done()

	m.logger.InfoContext(ctx, "Trigger manager stopped")

	return nil
}
