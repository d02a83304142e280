package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/dukex/petflow/pkg/cmd"
	"github.com/dukex/petflow/pkg/log"
	"github.com/dukex/petflow/pkg/queue"
	"github.com/dukex/petflow/pkg/scheduler"
	"github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the resume poller",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "redis-url",
				Usage:    "Redis URL of the resume schedule",
				Required: true,
				Sources:  cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka broker addresses",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "How often the schedule is polled for due messages",
				Value:   scheduler.DefaultPollInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Due messages claimed per poll",
				Value:   scheduler.DefaultBatchSize,
				Sources: cli.EnvVars("POLL_BATCH_SIZE"),
			},
			&cli.IntFlag{
				Name:    "metrics-port",
				Usage:   "Port serving /metrics and health probes (0 disables it)",
				Value:   9094,
				Sources: cli.EnvVars("METRICS_PORT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), log.WithFormat(command.String("log-format")))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := log.WithModule("petflow-scheduler")
			logger.InfoContext(ctx, "Initializing Petflow scheduler")

			store, closeStore, err := cmd.NewScheduleStore(ctx, logger, command.String("redis-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := closeStore(); err != nil {
					logger.Error("Failed to close schedule store", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "petflow-scheduler", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			cmd.ServeMetrics(ctx, logger, command.Int("metrics-port"))

			poller := scheduler.NewPoller(store, queue.NewBusQueue(eventBus), logger,
				scheduler.WithInterval(command.Duration("interval")),
				scheduler.WithBatchSize(command.Int("batch-size")),
			)

			return poller.Run(ctx)
		},
	}
}
