package cmd

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/petflow/pkg/metrics"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
)

// MetricsApp serves Prometheus metrics and liveness probes for the background processes.
func MetricsApp() *fiber.App {
	app := fiber.New()

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	return app
}

// ServeMetrics listens on port until ctx is cancelled. A port of 0 disables the listener.
func ServeMetrics(ctx context.Context, logger *slog.Logger, port int) {
	if port == 0 {
		return
	}

	app := MetricsApp()

	go func() {
		<-ctx.Done()

		err := app.Shutdown()
		if err != nil {
			logger.Error("Failed to stop metrics server", "error", err)
		}
	}()

	go func() {
		err := app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
		if err != nil {
			logger.Error("Metrics server stopped", "error", err)
		}
	}()
}
