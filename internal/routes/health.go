package routes

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tung090505/Shop-game-sub000/internal/infra"
)

// RegisterHealthRoutes adds the readiness probe and, when a registry is configured, the
// Prometheus scrape endpoint.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	health := infra.Health{DB: d.DB, Cache: d.Cache}
	app.Get("/healthz", func(c *fiber.Ctx) error {
		status, ok := health.Check(c.UserContext())
		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	if d.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}
}
