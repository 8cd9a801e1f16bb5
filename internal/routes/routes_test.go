package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lncurl/lncurl/internal/clock"
	"github.com/lncurl/lncurl/internal/config"
	"github.com/lncurl/lncurl/internal/ledger"
	"github.com/lncurl/lncurl/internal/logging"
)

var now = time.Date(2026, 6, 1, 8, 20, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		ChargeAmount:       1,
		ChargeInterval:     time.Hour,
		GracePeriod:        time.Hour,
		BillingConcurrency: 2,
		RateLimitPerHour:   2,
		ActivityRetention:  100,
		IdempotencyTTL:     time.Hour,
		OriginHashKey:      "test-key",
		Funds:              `[{"key":"hosting","label":"Hosting Costs","targetSats":120000}]`,
	}
}

func newTestApp(t *testing.T, cache *redis.Client) (*fiber.App, *Workers, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(now)
	app := fiber.New()
	workers, err := Setup(app, Deps{
		Cfg:    testConfig(),
		Cache:  cache,
		Logger: logging.Discard(),
		Clock:  clk,
		Ledger: ledger.NewInMemory(),
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app, workers, clk
}

func do(t *testing.T, app *fiber.App, method, path string, header map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestCreateWalletFlow(t *testing.T) {
	app, _, _ := newTestApp(t, nil)
	origin := map[string]string{fiber.HeaderXForwardedFor: "198.51.100.7"}

	status, uri := do(t, app, fiber.MethodPost, "/api/wallet", origin)
	if status != fiber.StatusOK || !strings.HasPrefix(uri, "nostr+walletconnect://") {
		t.Fatalf("create: status=%d body=%q", status, uri)
	}
	if status, _ := do(t, app, fiber.MethodPost, "/", origin); status != fiber.StatusOK {
		t.Fatalf("root create: status=%d", status)
	}
	if status, body := do(t, app, fiber.MethodPost, "/api/wallet", origin); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected the third creation to be rate limited, got %d %q", status, body)
	}

	_, board := do(t, app, fiber.MethodGet, "/api/leaderboard", nil)
	var leaderboard struct {
		Leaderboard []struct {
			Rank  int    `json:"rank"`
			Title string `json:"title"`
		} `json:"leaderboard"`
	}
	if err := json.Unmarshal([]byte(board), &leaderboard); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(leaderboard.Leaderboard) != 2 || leaderboard.Leaderboard[0].Rank != 1 || leaderboard.Leaderboard[0].Title != "Newborn" {
		t.Fatalf("unexpected leaderboard %s", board)
	}

	_, statsBody := do(t, app, fiber.MethodGet, "/api/stats", nil)
	var snapshot struct {
		Stats struct {
			TotalWalletsCreated int64 `json:"totalWalletsCreated"`
			CurrentAlive        int64 `json:"currentAlive"`
		} `json:"stats"`
		TPS            float64 `json:"tps"`
		CommunityFunds []struct {
			Key string `json:"key"`
		} `json:"communityFunds"`
	}
	if err := json.Unmarshal([]byte(statsBody), &snapshot); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if snapshot.Stats.TotalWalletsCreated != 2 || snapshot.Stats.CurrentAlive != 2 || snapshot.TPS == 0 {
		t.Fatalf("unexpected stats %s", statsBody)
	}
	if len(snapshot.CommunityFunds) != 1 || snapshot.CommunityFunds[0].Key != "hosting" {
		t.Fatalf("unexpected funds %s", statsBody)
	}

	_, activityBody := do(t, app, fiber.MethodGet, "/api/activity?limit=5", nil)
	if strings.Count(activityBody, `"type":"wallet_created"`) != 2 {
		t.Fatalf("expected two creation events, got %s", activityBody)
	}

	_, metricsBody := do(t, app, fiber.MethodGet, "/metrics", nil)
	if !strings.Contains(metricsBody, `lncurl_activity_events_total{type="wallet_created"} 2`) {
		t.Fatalf("expected event counter in metrics output")
	}
	if !strings.Contains(metricsBody, "lncurl_wallet_creations_rate_limited_total 1") {
		t.Fatalf("expected rate limit counter in metrics output")
	}
}

func TestIdempotentCreateWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app, _, _ := newTestApp(t, cache)
	header := map[string]string{"Idempotency-Key": "retry-1", fiber.HeaderXForwardedFor: "192.0.2.1"}

	status, first := do(t, app, fiber.MethodPost, "/api/wallet", header)
	if status != fiber.StatusOK {
		t.Fatalf("first create: %d %q", status, first)
	}
	status, second := do(t, app, fiber.MethodPost, "/api/wallet", header)
	if status != fiber.StatusOK || second != first {
		t.Fatalf("expected the replayed pairing uri, got %d %q", status, second)
	}

	_, statsBody := do(t, app, fiber.MethodGet, "/api/stats", nil)
	if !strings.Contains(statsBody, `"totalWalletsCreated":1`) {
		t.Fatalf("a replay must not create a second wallet: %s", statsBody)
	}
}

func TestHealthAndWorkers(t *testing.T) {
	app, workers, clk := newTestApp(t, nil)

	workers.Start(context.Background())
	if next := workers.Scheduler().NextRunAt(); !next.Equal(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected the first billing run at the top of the hour, got %s", next)
	}

	status, body := do(t, app, fiber.MethodGet, "/healthz", nil)
	if status != fiber.StatusOK || !strings.Contains(body, `"postgres":"disabled"`) || !strings.Contains(body, `"phase":"idle"`) {
		t.Fatalf("unexpected health response %d %s", status, body)
	}

	if err := workers.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if clk.Pending() != 0 {
		t.Fatalf("expected every timer cleared, %d pending", clk.Pending())
	}
}
