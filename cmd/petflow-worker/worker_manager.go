package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/petflow/pkg/engine"
	"github.com/dukex/petflow/pkg/eventbus"
)

type WorkerManager struct {
	id       string
	logger   *slog.Logger
	consumer *engine.Consumer
	eventBus eventbus.EventSubscriber
}

func NewWorkerManager(
	id string,
	processor engine.StepProcessor,
	eventBus eventbus.EventSubscriber,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("worker_id", id),
		consumer: engine.NewConsumer(processor, logger),
		eventBus: eventBus,
	}
}

// Start consumes step messages until ctx is cancelled.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.consumer.Register(w.eventBus)
	if err != nil {
		return fmt.Errorf("failed to register step consumer: %w", err)
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker manager started, waiting for step messages")

	<-ctx.Done()

	w.logger.InfoContext(ctx, "Worker manager stopped")

	return nil
}
