package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lncurl/lncurl/internal/activity"
	"github.com/lncurl/lncurl/internal/stats"
)

// RegisterActivityRoutes wires the live feed and its JSON back-fill.
func RegisterActivityRoutes(r fiber.Router, h *activity.Handler) {
	r.Get("/api/feed", h.Feed)
	r.Get("/api/activity", h.Recent)
}

// RegisterStatsRoutes wires the dashboard snapshot.
func RegisterStatsRoutes(r fiber.Router, h *stats.Handler) {
	r.Get("/api/stats", h.Stats)
}
