// Package main provides the Petflow API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/petflow/pkg/eventbus"
	"github.com/dukex/petflow/pkg/metrics"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/dukex/petflow/pkg/queue"
	"github.com/dukex/petflow/pkg/registry"
	"github.com/dukex/petflow/pkg/services"
	"github.com/dukex/petflow/pkg/trigger"
	"github.com/dukex/petflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventPublisher
	evaluator   *trigger.Evaluator
	queue       queue.Queue
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventPublisher,
	evaluator *trigger.Evaluator,
	q queue.Queue,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		registry:    registry,
		eventBus:    eventBus,
		evaluator:   evaluator,
		queue:       q,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		services.NewWorkflow(a.persistence, a.registry, a.evaluator),
		services.NewExecution(a.persistence, a.evaluator, a.queue),
		services.NewRecordEvents(a.eventBus),
		a.validate,
		a.registry,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Petflow API")
	})

	handlers.Mount(app)

	return app
}

// Start serves the API until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		err := app.Shutdown()
		if err != nil {
			a.logger.Error("Failed to shut down API server", "error", err)
		}
	}()

	a.logger.InfoContext(ctx, "Petflow API listening", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
