package routes

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lncurl/lncurl/internal/achievement"
	"github.com/lncurl/lncurl/internal/activity"
	"github.com/lncurl/lncurl/internal/billing"
	"github.com/lncurl/lncurl/internal/clock"
	"github.com/lncurl/lncurl/internal/config"
	"github.com/lncurl/lncurl/internal/ledger"
	"github.com/lncurl/lncurl/internal/metrics"
	"github.com/lncurl/lncurl/internal/middleware"
	"github.com/lncurl/lncurl/internal/naming"
	"github.com/lncurl/lncurl/internal/notification"
	"github.com/lncurl/lncurl/internal/ratelimit"
	"github.com/lncurl/lncurl/internal/stats"
	"github.com/lncurl/lncurl/internal/wallet"
)

// pruneInterval is how often the persisted activity log is trimmed.
const pruneInterval = time.Hour

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// are optional; without them the in-memory stores and limiter are used.
// Clock and Ledger override the defaults, mainly for tests.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	Clock  clock.Clock
	Ledger ledger.Ledger
}

// Setup builds every component, configures middlewares and registers the
// routes. The returned workers are not started.
func Setup(app *fiber.App, d Deps) (*Workers, error) {
	clk := d.Clock
	if clk == nil {
		clk = clock.New()
	}
	workers := &Workers{logger: d.Logger}

	led, err := newLedger(d)
	if err != nil {
		return nil, err
	}

	var (
		walletRepo    wallet.Repository
		activityStore activity.Store
	)
	if d.DB != nil {
		walletRepo = wallet.NewPostgresRepository(d.DB)
		pgStore := activity.NewPostgresStore(d.DB)
		activityStore = pgStore
		workers.add(clock.NewTicker(clk, pruneInterval, pruneActivity(pgStore, d.Cfg.ActivityRetention, d.Logger)))
	} else {
		d.Logger.Warn("DATABASE_URL not set, wallets are kept in memory")
		walletRepo = wallet.NewMemoryRepository()
		activityStore = activity.NewMemoryStore(d.Cfg.ActivityRetention)
	}

	reg := metrics.New()
	window := stats.NewWindow(clk, stats.DefaultSpan)
	bus := activity.NewBus(activityStore, clk, d.Logger)
	bus.Subscribe(reg.Listener())
	bus.Subscribe(window.Listener())
	bus.Subscribe(notification.Forward(notification.NewLoggerNotifier(d.Logger)))

	var limiter ratelimit.Limiter
	if d.Cache != nil {
		limiter = ratelimit.NewRedis(d.Cache, clk, d.Cfg.RateLimitPerHour, ratelimit.DefaultWindow)
	} else {
		memLimiter := ratelimit.NewWindow(clk, d.Cfg.RateLimitPerHour, ratelimit.DefaultWindow)
		workers.add(clock.NewTicker(clk, ratelimit.SweepInterval, func() {
			if evicted := memLimiter.Sweep(); evicted > 0 {
				d.Logger.Debug("rate limiter swept", "evicted", evicted)
			}
		}))
		limiter = memLimiter
	}

	walletSvc := wallet.NewService(walletRepo, led, naming.NewGenerator(walletRepo, nil), bus, clk, []byte(d.Cfg.OriginHashKey), d.Logger)
	engine := achievement.NewEngine(walletRepo, bus, clk, d.Logger)
	scheduler := billing.New(billing.Config{
		ChargeAmount: d.Cfg.ChargeAmount,
		Interval:     d.Cfg.ChargeInterval,
		GracePeriod:  d.Cfg.GracePeriod,
		Concurrency:  d.Cfg.BillingConcurrency,
	}, walletRepo, led, bus, engine, clk, reg, d.Logger)
	workers.scheduler = scheduler

	fundList, err := stats.ParseFunds(d.Cfg.Funds)
	if err != nil {
		return nil, fmt.Errorf("FUNDS: %w", err)
	}
	funds := stats.NewFunds(led, fundList, clk, reg.FundRefreshErrs, d.Logger)
	workers.funds = funds

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger, "/healthz", "/metrics", "/api/feed"))

	RegisterHealthRoutes(app, d, scheduler)
	RegisterMetricsRoute(app, reg)

	create := []fiber.Handler{middleware.CreationRateLimit(limiter, d.Cfg.RateLimitPerHour, reg.RateLimited, d.Logger)}
	if d.Cache != nil {
		create = append(create, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterWalletRoutes(app, wallet.NewHandler(walletSvc), create...)
	RegisterActivityRoutes(app, activity.NewHandler(bus, d.Logger))
	RegisterStatsRoutes(app, stats.NewHandler(walletRepo, scheduler, stats.NewNode(led, clk), window, funds, clk, d.Logger))

	return workers, nil
}

func newLedger(d Deps) (ledger.Ledger, error) {
	if d.Ledger != nil {
		return d.Ledger, nil
	}
	if d.Cfg.HubURL == "" {
		d.Logger.Warn("HUB_URL not set, using the in-memory ledger")
		return ledger.NewInMemory(), nil
	}
	hub, err := ledger.NewHubClient(ledger.HubConfig{
		BaseURL:       d.Cfg.HubURL,
		AuthToken:     d.Cfg.HubAuthToken,
		HubName:       d.Cfg.HubName,
		HubRegion:     d.Cfg.HubRegion,
		AddressDomain: d.Cfg.AddressDomain,
		Timeout:       d.Cfg.HubTimeout,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("hub client: %w", err)
	}
	return hub, nil
}
