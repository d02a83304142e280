package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// everyMinute is the cadence of scheduled passes. Due-ness tolerates one minute of drift.
const everyMinute = "* * * * *"

// RunScheduled runs ScheduledPass every minute until ctx is cancelled. A pass still running when
// the next minute starts makes that minute skip.
func (e *Evaluator) RunScheduled(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DiscardLogger),
		),
	)

	_, err := c.AddFunc(everyMinute, func() { e.scheduledTick(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule passes: %w", err)
	}

	e.logger.InfoContext(ctx, "Starting scheduled trigger passes")
	c.Start()

	<-ctx.Done()

	<-c.Stop().Done()
	e.logger.InfoContext(ctx, "Scheduled trigger passes stopped")

	return nil
}

func (e *Evaluator) scheduledTick(ctx context.Context) {
	results, err := e.ScheduledPass(ctx, e.now())
	if err != nil {
		e.logger.ErrorContext(ctx, "Scheduled pass finished with errors", "error", err, "enrolled", countEnrolled(results))

		return
	}

	if len(results) > 0 {
		e.logger.InfoContext(ctx, "Scheduled pass finished", "evaluated", len(results), "enrolled", countEnrolled(results))
	}
}
