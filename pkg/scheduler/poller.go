package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/petflow/pkg/metrics"
	"github.com/dukex/petflow/pkg/queue"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultBatchSize    = 100
)

// Poller moves due messages from a Store onto the queue.
type Poller struct {
	store    Store
	queue    queue.Queue
	logger   *slog.Logger
	interval time.Duration
	batch    int
	now      func() time.Time
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

func WithInterval(interval time.Duration) PollerOption {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

func WithBatchSize(batch int) PollerOption {
	return func(p *Poller) {
		if batch > 0 {
			p.batch = batch
		}
	}
}

func WithClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		p.now = now
	}
}

func NewPoller(store Store, q queue.Queue, logger *slog.Logger, opts ...PollerOption) *Poller {
	p := &Poller{
		store:    store,
		queue:    q,
		logger:   logger.With("module", "scheduler_poller"),
		interval: DefaultPollInterval,
		batch:    DefaultBatchSize,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "Starting scheduler poller", "interval", p.interval, "batch", p.batch)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		enqueued, err := p.Tick(ctx)
		if err != nil {
			p.logger.ErrorContext(ctx, "Scheduler tick failed", "error", err)
		}

		if enqueued > 0 {
			metrics.RecordResumesDispatched(enqueued)
			p.logger.DebugContext(ctx, "Dispatched due steps", "count", enqueued)
		}

		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Scheduler poller stopped")

			return nil
		case <-ticker.C:
		}
	}
}

// Tick enqueues every due message and returns how many were enqueued. A message that cannot be
// enqueued is put back into the store so it is retried on the next tick. Messages claimed before
// the store failed are still dispatched.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	enqueued := 0

	for {
		now := p.now()

		messages, dueErr := p.store.Due(ctx, now, p.batch)

		var errs []error

		if dueErr != nil {
			errs = append(errs, dueErr)
		}

		for _, msg := range messages {
			err := p.queue.Enqueue(ctx, msg)
			if err != nil {
				p.logger.ErrorContext(ctx, "Failed to enqueue due step, rescheduling",
					"execution_id", msg.ExecutionID, "step_id", msg.StepID, "error", err)

				errs = append(errs, err)

				rescheduleErr := p.store.ScheduleResume(ctx, msg, now)
				if rescheduleErr != nil {
					errs = append(errs, rescheduleErr)
				}

				continue
			}

			enqueued++
		}

		if len(errs) > 0 {
			return enqueued, errors.Join(errs...)
		}

		if len(messages) < p.batch {
			return enqueued, nil
		}
	}
}
