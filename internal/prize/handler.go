package prize

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
	"github.com/Tung090505/Shop-game-sub000/internal/request"
)

// Handler exposes the draw endpoint and prize table administration.
type Handler struct {
	engine *Engine
}

// NewHandler constructs a prize handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type drawRequest struct {
	AccountID string `json:"account_id" validate:"required"`
}

type entryRequest struct {
	Name     string  `json:"name" validate:"required,max=128"`
	Kind     string  `json:"kind" validate:"required,oneof=balance item empty"`
	Value    int64   `json:"value" validate:"gte=0"`
	Weight   float64 `json:"weight" validate:"gte=0"`
	Position int     `json:"position"`
	ImageURL string  `json:"image_url" validate:"omitempty,url"`
	Color    string  `json:"color" validate:"max=32"`
}

// Draw spins the wheel for an account.
func (h *Handler) Draw(c *fiber.Ctx) error {
	var req drawRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.engine.Draw(c.UserContext(), req.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusBadRequest, "insufficient funds")
		case errors.Is(err, ErrEmptyPrizeTable):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, ledger.ErrAccountNotFound):
			return fiber.NewError(http.StatusNotFound, "account not found")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// List returns the prize table.
func (h *Handler) List(c *fiber.Ctx) error {
	entries, err := h.engine.Entries(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []Entry{}
	}
	return c.JSON(fiber.Map{"prizes": entries})
}

// Put creates or replaces the entry named by :id, or a new entry when no id is given.
func (h *Handler) Put(c *fiber.Ctx) error {
	var req entryRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	saved, err := h.engine.SaveEntry(c.UserContext(), Entry{
		ID:       c.Params("id"),
		Name:     req.Name,
		Kind:     Kind(req.Kind),
		Value:    req.Value,
		Weight:   req.Weight,
		Position: req.Position,
		ImageURL: req.ImageURL,
		Color:    req.Color,
	})
	if errors.Is(err, ErrInvalidPrize) {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(saved)
}

// Delete removes an entry.
func (h *Handler) Delete(c *fiber.Ctx) error {
	err := h.engine.DeleteEntry(c.UserContext(), c.Params("id"))
	if errors.Is(err, ErrPrizeNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}
