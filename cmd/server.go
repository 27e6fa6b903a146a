package main

import (
	"context"
	"errors"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/errx"
	"github.com/Abraxas-365/profilejobs/pkg/jobx"
	"github.com/Abraxas-365/profilejobs/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 2 * time.Second

// serverDeps is what the worker's HTTP surface reads from.
type serverDeps struct {
	Broker   jobx.Health
	Stats    jobx.StatsReader
	Jobs     jobx.JobStatusReader
	Storage  func(ctx context.Context) error
	InFlight func() int64
	Gatherer prometheus.Gatherer
}

func newServer(d serverDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "profilejobs worker",
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: uuid.NewString,
	}))

	app.Get("/health", healthCheckHandler(d))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	app.Get("/jobs/:id", jobStatusHandler(d.Jobs))

	app.Use(notFoundHandler)
	return app
}

// healthCheckHandler reports 503 while the broker is not ready. Submissions
// still succeed then, but only inline.
func healthCheckHandler(d serverDeps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
		defer cancel()

		state := d.Broker.State()
		health := fiber.Map{
			"status":  "healthy",
			"service": "profilejobs-worker",
			"broker":  string(state),
		}
		if state != jobx.StateReady {
			health["status"] = "degraded"
		}

		if d.InFlight != nil {
			health["in_flight"] = d.InFlight()
		}

		if d.Stats != nil && state == jobx.StateReady {
			if stats, err := d.Stats.Stats(ctx); err != nil {
				health["queue_error"] = err.Error()
			} else {
				health["queue"] = stats
			}
		}

		if d.Storage != nil {
			if err := d.Storage(ctx); err != nil {
				health["storage"] = "unhealthy"
				health["storage_error"] = err.Error()
				health["status"] = "degraded"
			} else {
				health["storage"] = "healthy"
			}
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

func jobStatusHandler(jobs jobx.JobStatusReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		info, err := jobs.GetJob(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(info)
	}
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.GetRespHeader("X-Request-ID"),
	})
}

// globalErrorHandler converts internal errors to standard HTTP responses
func globalErrorHandler(c *fiber.Ctx, err error) error {
	requestID := c.GetRespHeader("X-Request-ID")

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"error":      fe.Message,
			"code":       "FIBER_ERROR",
			"status":     fe.Code,
			"request_id": requestID,
		})
	}

	status := errx.HTTPStatus(err)
	entry := logx.Component("http").WithFields(logx.Fields{
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": requestID,
		"status":     status,
	}).WithError(err)
	if status >= fiber.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	var e *errx.Error
	if errors.As(err, &e) {
		response := fiber.Map{
			"error":      e.Message,
			"code":       e.Code,
			"type":       string(e.Type),
			"status":     status,
			"request_id": requestID,
		}
		if len(e.Details) > 0 {
			response["details"] = e.Details
		}
		return c.Status(status).JSON(response)
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":      "Internal Server Error",
		"code":       "INTERNAL_ERROR",
		"request_id": requestID,
	})
}
