package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dukex/petflow/pkg/cmd"
	"github.com/dukex/petflow/pkg/engine"
	"github.com/dukex/petflow/pkg/log"
	"github.com/dukex/petflow/pkg/queue"
	"github.com/dukex/petflow/pkg/scheduler"
	"github.com/dukex/petflow/pkg/trigger"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start a worker consuming step messages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
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
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL of the resume schedule (in-memory when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "lease",
				Usage:   "How long a worker holds an execution while processing a step",
				Value:   engine.DefaultLease,
				Sources: cli.EnvVars("EXECUTION_LEASE"),
			},
			&cli.IntFlag{
				Name:    "metrics-port",
				Usage:   "Port serving /metrics and health probes (0 disables it)",
				Value:   9092,
				Sources: cli.EnvVars("METRICS_PORT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("petflow-worker")
			logger.InfoContext(ctx, "Initializing Petflow worker")

			tracer, shutdownTracer, err := cmd.NewTracer(ctx, logger, command.Bool("tracing"), "petflow-worker")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			defer func() {
				if err := shutdownTracer(context.Background()); err != nil {
					logger.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(context.Background()); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "petflow-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			store, closeStore, err := cmd.NewScheduleStore(ctx, logger, command.String("redis-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := closeStore(); err != nil {
					logger.Error("Failed to close schedule store", "error", err)
				}
			}()

			q := queue.NewBusQueue(eventBus)

			evaluator := trigger.NewEvaluator(trigger.Dependencies{
				Workflows:  persistence.WorkflowRepository(),
				Executions: persistence.ExecutionRepository(),
				Logs:       persistence.ExecutionLogRepository(),
				Records:    persistence.RecordRepository(),
				Queue:      q,
			}, logger, trigger.WithTracer(tracer))

			registry, err := cmd.NewRegistry(logger, cmd.ActionDependencies{
				Records:     persistence.RecordRepository(),
				Publisher:   eventBus,
				Enrollments: evaluator,
			})
			if err != nil {
				return err
			}

			processor := engine.NewProcessor(engine.Dependencies{
				Workflows:  persistence.WorkflowRepository(),
				Executions: persistence.ExecutionRepository(),
				Logs:       persistence.ExecutionLogRepository(),
				Records:    persistence.RecordRepository(),
				Actions:    registry,
				Queue:      q,
				Scheduler:  store,
				Publisher:  eventBus,
			}, logger, engine.WithTracer(tracer), engine.WithLease(command.Duration("lease")))

			if command.String("redis-url") == "" {
				go func() {
					_ = scheduler.NewPoller(store, q, logger).Run(ctx)
				}()
			}

			cmd.ServeMetrics(ctx, logger, command.Int("metrics-port"))

			worker := NewWorkerManager(workerID, processor, eventBus, logger)

			return worker.Start(ctx)
		},
	}
}
