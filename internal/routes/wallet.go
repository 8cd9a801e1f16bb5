package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lncurl/lncurl/internal/wallet"
)

// RegisterWalletRoutes wires wallet creation, the leaderboard and the
// graveyard. create runs in front of both creation endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, create ...fiber.Handler) {
	createChain := append(create, h.Create)
	r.Post("/", createChain...)
	r.Post("/api/wallet", createChain...)
	r.Get("/api/leaderboard", h.Leaderboard)
	r.Get("/api/graveyard", h.Graveyard)
	r.Post("/api/graveyard/:name/flowers", h.Flowers)
}
