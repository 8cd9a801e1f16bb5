package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lncurl/lncurl/internal/config"
	"github.com/lncurl/lncurl/internal/routes"
)

// Server wraps the Fiber application, its background workers and shared
// dependencies.
type Server struct {
	app     *fiber.App
	cfg     config.Config
	workers *routes.Workers
	logger  *slog.Logger
}

// New instantiates the HTTP server and delegates wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:     cfg.AppName,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 2 * time.Minute,
		// No write timeout: /api/feed holds its response open.
		DisableStartupMessage: true,
	})

	workers, err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, workers: workers, logger: logger}, nil
}

// App exposes the Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// StartWorkers launches billing and the other background loops.
func (s *Server) StartWorkers(ctx context.Context) {
	s.workers.Start(ctx)
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	s.logger.Info("listening", "address", s.cfg.Address())
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops the workers, letting a running billing cycle finish, then
// gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	workerErr := s.workers.Stop(ctx)
	if workerErr != nil {
		s.logger.Warn("billing cycle still running at shutdown", "error", workerErr)
	}
	return errors.Join(workerErr, s.app.ShutdownWithContext(ctx))
}
