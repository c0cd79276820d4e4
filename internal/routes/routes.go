package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Tung090505/Shop-game-sub000/internal/account"
	"github.com/Tung090505/Shop-game-sub000/internal/deposit"
	"github.com/Tung090505/Shop-game-sub000/internal/logging"
	"github.com/Tung090505/Shop-game-sub000/internal/middleware"
	"github.com/Tung090505/Shop-game-sub000/internal/prize"
	"github.com/Tung090505/Shop-game-sub000/internal/purchase"
	"github.com/Tung090505/Shop-game-sub000/internal/reconcile"
	"github.com/Tung090505/Shop-game-sub000/internal/settings"
)

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps, svc Services) {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger, "/healthz", "/metrics"))

	RegisterHealthRoutes(app, d)

	// Partner webhooks sit outside /api so they never hit the idempotency layer.
	webhooks := reconcile.NewHandler(svc.Reconciler, d.Cfg.CardWebhookSecret, d.Logger)
	hooks := app.Group("/webhooks")
	hooks.Post("/bank", webhooks.Bank)
	hooks.Get("/card/:secret", webhooks.Card)
	hooks.Post("/card/:secret", webhooks.Card)

	api := app.Group("/api/v1")
	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.RequestIDKey).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	accounts := account.NewHandler(svc.Accounts)
	api.Post("/accounts", accounts.Register)
	api.Get("/accounts/:id/balance", accounts.Balance)
	api.Get("/accounts/:id/entries", accounts.Entries)
	api.Get("/accounts/:id/reconcile", accounts.Reconcile)
	api.Post("/accounts/:id/commission/withdraw", accounts.WithdrawCommission)

	deposits := deposit.NewHandler(svc.Deposits)
	api.Get("/accounts/:id/deposits", deposits.ListByAccount)
	api.Post("/deposits", deposits.Open)
	api.Post("/deposits/card", deposits.SubmitCard)
	api.Get("/deposits/:id", deposits.Get)

	purchases := purchase.NewHandler(svc.Purchases)
	api.Post("/purchases", purchases.Create)
	api.Get("/purchases/:id", purchases.Get)

	prizes := prize.NewHandler(svc.Prizes)
	api.Post("/draws", prizes.Draw)
	api.Get("/prizes", prizes.List)
	api.Put("/prizes", prizes.Put)
	api.Put("/prizes/:id", prizes.Put)
	api.Delete("/prizes/:id", prizes.Delete)

	api.Get("/revenue", svc.Revenue.Handler)
	api.Put("/settings/:key", settings.NewHandler(svc.Settings).Put)
}

// ErrorHandler renders every error as {"error": message}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
