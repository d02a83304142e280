package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/petflow/pkg/scheduler"
)

// NewScheduleStore connects to Redis when redisURL is set. Without it scheduled resumes live in
// process memory, which only works when the worker and the poller share a process.
func NewScheduleStore(ctx context.Context, logger *slog.Logger, redisURL string) (scheduler.Store, func() error, error) {
	if redisURL == "" {
		logger.WarnContext(ctx, "No Redis URL configured, scheduled resumes are kept in memory")

		return scheduler.NewMemoryStore(), func() error { return nil }, nil
	}

	client, err := scheduler.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}

	return scheduler.NewRedisStore(client, scheduler.DefaultRedisKey), client.Close, nil
}
