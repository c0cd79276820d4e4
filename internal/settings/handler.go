package settings

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Tung090505/Shop-game-sub000/internal/request"
)

// Handler lets operators rotate partner settings.
type Handler struct {
	lookup *Lookup
}

// NewHandler constructs a settings handler.
func NewHandler(lookup *Lookup) *Handler {
	return &Handler{lookup: lookup}
}

type putRequest struct {
	Value string `json:"value" validate:"required,max=512"`
}

// Put stores an override for :key. Values are never echoed back.
func (h *Handler) Put(c *fiber.Ctx) error {
	var req putRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	key := c.Params("key")
	if err := h.lookup.Set(c.UserContext(), key, req.Value); err != nil {
		if errors.Is(err, ErrUnknownKey) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"key": key, "updated": true})
}
