package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/lncurl/lncurl/internal/billing"
	"github.com/lncurl/lncurl/internal/metrics"
)

const disabled = "disabled"

// RegisterHealthRoutes adds a liveness endpoint reporting storage
// connectivity and the billing scheduler state.
func RegisterHealthRoutes(app *fiber.App, d Deps, scheduler *billing.Scheduler) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := disabled
		redisStatus := disabled

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			dbStatus = "ok"
			if err := d.DB.Ping(ctx); err != nil {
				dbStatus = err.Error()
			}
		}
		if d.Cache != nil {
			redisStatus = "ok"
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}
		status := http.StatusOK
		if (dbStatus != "ok" && dbStatus != disabled) || (redisStatus != "ok" && redisStatus != disabled) {
			status = http.StatusServiceUnavailable
		}

		billingStatus := fiber.Map{"phase": scheduler.Phase().String(), "nextRunAt": nil}
		if next := scheduler.NextRunAt(); !next.IsZero() {
			billingStatus["nextRunAt"] = next.UTC().Format(time.RFC3339)
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"postgres": dbStatus, "redis": redisStatus},
			"billing":   billingStatus,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

// RegisterMetricsRoute exposes the Prometheus registry.
func RegisterMetricsRoute(app *fiber.App, reg *metrics.Registry) {
	app.Get("/metrics", adaptor.HTTPHandler(reg.Handler()))
}
