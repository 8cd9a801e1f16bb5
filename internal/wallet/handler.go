package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/lncurl/lncurl/internal/middleware"
)

const (
	leaderboardSize  = 20
	defaultPageLimit = 100
	maxPageLimit     = 100
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Message string `json:"message" form:"message"`
}

// Create provisions a wallet and answers with its pairing URI as plain text.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	created, err := h.service.Create(c.UserContext(), CreateInput{
		Message: req.Message,
		Origin:  middleware.ClientOrigin(c),
	})
	if errors.Is(err, ErrProvisioning) {
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(http.StatusOK).SendString(created.PairingURI)
}

type leaderboardEntry struct {
	Rank         int    `json:"rank"`
	Name         string `json:"name"`
	Age          string `json:"age"`
	AgeSeconds   int64  `json:"ageSeconds"`
	Title        string `json:"title"`
	Tier         int    `json:"tier"`
	Balance      int64  `json:"balance"`
	TotalCharged int64  `json:"totalCharged"`
}

// Leaderboard lists the oldest living wallets.
func (h *Handler) Leaderboard(c *fiber.Ctx) error {
	ranked, err := h.service.Leaderboard(c.UserContext(), leaderboardSize)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	entries := make([]leaderboardEntry, 0, len(ranked))
	for _, r := range ranked {
		entries = append(entries, leaderboardEntry{
			Rank:         r.Rank,
			Name:         r.Wallet.Name,
			Age:          r.Age,
			AgeSeconds:   r.AgeSeconds,
			Title:        r.Title,
			Tier:         r.Tier,
			Balance:      r.Wallet.LastKnownBalance,
			TotalCharged: r.Wallet.TotalCharged,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"leaderboard": entries})
}

type graveResponse struct {
	Name         string  `json:"name"`
	CreatedAt    int64   `json:"createdAt"`
	DeletedAt    int64   `json:"deletedAt"`
	AgeSeconds   int64   `json:"ageSeconds"`
	CauseOfDeath string  `json:"causeOfDeath"`
	Flavor       string  `json:"causeOfDeathFlavor"`
	TotalCharged int64   `json:"totalCharged"`
	Epitaph      *string `json:"epitaph"`
	Flowers      int64   `json:"flowers"`
}

// Graveyard pages through dead wallets: sort=recent|oldest, offset, limit.
func (h *Handler) Graveyard(c *fiber.Ctx) error {
	sort := SortRecent
	if c.Query("sort") == string(SortOldest) {
		sort = SortOldest
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	limit := queryInt(c, "limit", defaultPageLimit)
	if limit == 0 {
		limit = defaultPageLimit
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	graves, total, err := h.service.Graveyard(c.UserContext(), sort, offset, limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]graveResponse, 0, len(graves))
	for _, g := range graves {
		resp := graveResponse{
			Name:         g.Name,
			CreatedAt:    g.CreatedAt.Unix(),
			DeletedAt:    g.DeletedAt.Unix(),
			AgeSeconds:   int64(g.Age().Seconds()),
			CauseOfDeath: g.CauseOfDeath,
			Flavor:       g.Flavor,
			TotalCharged: g.TotalCharged,
			Flowers:      g.Flowers,
		}
		if g.Epitaph != "" {
			words := g.Epitaph
			resp.Epitaph = &words
		}
		out = append(out, resp)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"total": total, "graves": out})
}

// Flowers lays a flower on a grave.
func (h *Handler) Flowers(c *fiber.Ctx) error {
	name := c.Params("name")
	flowers, err := h.service.LayFlower(c.UserContext(), name)
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"name": name, "flowers": flowers})
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return v
}
