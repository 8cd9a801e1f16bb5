package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lncurl/lncurl/internal/ratelimit"
)

const (
	rateLimitRemainingHeader = "X-RateLimit-Remaining"
	rateLimitMessage         = "Rate limit exceeded. Max %d wallets per hour."
)

// ClientOrigin is the first X-Forwarded-For hop, or the peer address.
func ClientOrigin(c *fiber.Ctx) string {
	if fwd := c.Get(fiber.HeaderXForwardedFor); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	return c.IP()
}

// CreationRateLimit limits wallet creation per client origin. Limiter errors
// fail open. rejected may be nil.
func CreationRateLimit(limiter ratelimit.Limiter, quota int, rejected prometheus.Counter, logger *slog.Logger) fiber.Handler {
	message := fmt.Sprintf(rateLimitMessage, quota)
	return func(c *fiber.Ctx) error {
		origin := ClientOrigin(c)
		res, err := limiter.Check(c.UserContext(), origin)
		if err != nil {
			logger.Warn("rate limit check failed", slog.String("origin", origin), slog.Any("error", err))
			return c.Next()
		}
		c.Set(rateLimitRemainingHeader, strconv.Itoa(res.Remaining))
		if !res.Allowed {
			if rejected != nil {
				rejected.Inc()
			}
			c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
			return c.Status(http.StatusTooManyRequests).SendString(message)
		}
		return c.Next()
	}
}
