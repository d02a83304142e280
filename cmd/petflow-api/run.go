package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dukex/petflow/pkg/cmd"
	"github.com/dukex/petflow/pkg/log"
	"github.com/dukex/petflow/pkg/queue"
	"github.com/dukex/petflow/pkg/trigger"
	"github.com/urfave/cli/v3"
)

const defaultPort = 9091

func RunAPICommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start api",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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

			logger := log.WithModule("petflow-api")
			logger.InfoContext(ctx, "Initializing Petflow API")

			tracer, shutdownTracer, err := cmd.NewTracer(ctx, logger, command.Bool("tracing"), "petflow-api")
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

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "petflow-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
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

			api := NewAPI(logger, persistence, registry, eventBus, evaluator, q)

			return api.Start(ctx, command.Int("port"))
		},
	}
}
