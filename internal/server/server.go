package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Tung090505/Shop-game-sub000/internal/config"
	"github.com/Tung090505/Shop-game-sub000/internal/routes"
)

// Server wraps the Fiber application and the wired services.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	services routes.Services
}

// New builds the services and the HTTP application. db and cache may be nil in development.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger, registry *prometheus.Registry) (*Server, error) {
	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger, Registry: registry}
	services, err := routes.BuildServices(deps)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: routes.ErrorHandler,
	})
	routes.Setup(app, deps, services)

	return &Server{app: app, cfg: cfg, services: services}, nil
}

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Services returns the wired domain services.
func (s *Server) Services() routes.Services { return s.services }

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
