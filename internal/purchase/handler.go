package purchase

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
	"github.com/Tung090505/Shop-game-sub000/internal/request"
)

// Handler exposes purchase endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a purchase handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type purchaseRequest struct {
	OrderID   string `json:"order_id" validate:"max=64"`
	AccountID string `json:"account_id" validate:"required"`
	ItemRef   string `json:"item_ref" validate:"required,max=128"`
	Price     int64  `json:"price" validate:"gte=0"`
}

// Create buys an item with the wallet balance.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}

	receipt, err := h.service.Purchase(c.UserContext(), Input{
		OrderID:   req.OrderID,
		AccountID: req.AccountID,
		ItemRef:   req.ItemRef,
		Price:     req.Price,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusBadRequest, "insufficient funds")
		case errors.Is(err, ErrInvalidPurchase), errors.Is(err, ledger.ErrInvalidPosting):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrAccountNotFound):
			return fiber.NewError(http.StatusNotFound, "account not found")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	status := http.StatusCreated
	if receipt.Duplicate {
		status = http.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"order":     receipt.Order,
		"duplicate": receipt.Duplicate,
	})
}

// Get returns an order by id.
func (h *Handler) Get(c *fiber.Ctx) error {
	order, err := h.service.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, ErrOrderNotFound) {
		return fiber.NewError(http.StatusNotFound, "order not found")
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(order)
}
