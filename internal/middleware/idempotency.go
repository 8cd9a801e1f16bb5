package middleware

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:wallet:"
	inProgressMarker     = "__in_progress__"
	maxIdempotencyKeyLen = 128
	cacheOpTimeout       = 2 * time.Second
)

// replay is what gets stored for a finished creation. Only the body and its
// content type matter to a client retrying a wallet creation.
type replay struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        string `json:"body"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key so a
// retried wallet creation hands back the same pairing URI instead of
// provisioning a second wallet. Keys are scoped to the client origin, so one
// client can never replay another client's pairing URI. Requests without the
// header pass through, and only successful responses are kept so a client can
// retry after a 429 or 503.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return c.Next()
		}
		if len(key) > maxIdempotencyKeyLen {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key too long")
		}

		cacheKey := scopedKey(ClientOrigin(c), key)

		ctx, cancel := context.WithTimeout(c.UserContext(), cacheOpTimeout)
		cached, err := cache.Get(ctx, cacheKey).Result()
		cancel()
		switch {
		case err == nil:
			return sendReplay(c, cached, logger)
		case !errors.Is(err, redis.Nil):
			// Fail open like the creation limiter: a cache outage must not stop signups.
			logger.Warn("idempotency lookup failed", "error", err)
			return c.Next()
		}

		ctx, cancel = context.WithTimeout(c.UserContext(), cacheOpTimeout)
		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		cancel()
		if err != nil {
			logger.Warn("idempotency reservation failed", "error", err)
			return c.Next()
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey, logger)
			return err
		}

		status := c.Response().StatusCode()
		if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
			release(cache, cacheKey, logger)
			return nil
		}

		payload, err := json.Marshal(replay{
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        string(c.Response().Body()),
		})
		if err != nil {
			release(cache, cacheKey, logger)
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.WithoutCancel(c.UserContext()), cacheOpTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			// The wallet exists already; the client still gets its pairing URI.
			logger.Error("failed to persist idempotent response", "error", err)
			cache.Del(persistCtx, cacheKey)
		}
		return nil
	}
}

func sendReplay(c *fiber.Ctx, cached string, logger *slog.Logger) error {
	if cached == inProgressMarker {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}
	var stored replay
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		logger.Warn("failed to decode stored idempotent response", "error", err)
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}
	if stored.ContentType != "" {
		c.Set(fiber.HeaderContentType, stored.ContentType)
	}
	c.Set("Idempotent-Replayed", "true")
	return c.Status(stored.Status).SendString(stored.Body)
}

func release(cache *redis.Client, cacheKey string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	if err := cache.Del(ctx, cacheKey).Err(); err != nil {
		logger.Warn("failed to release idempotency reservation", "error", err)
	}
}

// scopedKey keeps raw client origins out of Redis.
func scopedKey(origin, key string) string {
	sum := blake2b.Sum256([]byte(origin + "\x00" + key))
	return idempotencyPrefix + hex.EncodeToString(sum[:])
}
