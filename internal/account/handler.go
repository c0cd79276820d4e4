package account

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
	"github.com/Tung090505/Shop-game-sub000/internal/request"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	ID       string `json:"id" validate:"max=64"`
	Handle   string `json:"handle" validate:"required,min=3,max=32"`
	Referrer string `json:"referrer" validate:"max=32"`
}

type withdrawRequest struct {
	Amount    int64  `json:"amount" validate:"gte=0"`
	Reference string `json:"reference" validate:"max=64"`
}

type accountResponse struct {
	ID                string `json:"id"`
	Handle            string `json:"handle"`
	ReferrerID        string `json:"referrer_id,omitempty"`
	WalletBalance     int64  `json:"wallet_balance"`
	CommissionBalance int64  `json:"commission_balance"`
}

type entryResponse struct {
	ID           string `json:"id"`
	Pocket       string `json:"pocket"`
	Kind         string `json:"kind"`
	Amount       int64  `json:"amount"`
	BalanceAfter int64  `json:"balance_after"`
	Reference    string `json:"reference,omitempty"`
	Description  string `json:"description"`
	CreatedAt    string `json:"created_at"`
}

func toResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:                a.ID,
		Handle:            a.Handle,
		ReferrerID:        a.ReferrerID,
		WalletBalance:     a.WalletBalance,
		CommissionBalance: a.CommissionBalance,
	}
}

// Register creates an account.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	acct, err := h.service.Register(c.UserContext(), RegisterInput{ID: req.ID, Handle: req.Handle, Referrer: req.Referrer})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(acct))
}

// Balance returns both balances of an account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	acct, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toResponse(acct))
}

// Entries returns the account's transaction log.
func (h *Handler) Entries(c *fiber.Ctx) error {
	entries, err := h.service.Entries(c.UserContext(), c.Params("id"), c.QueryInt("limit", 100))
	if err != nil {
		return httpError(err)
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:           e.ID,
			Pocket:       string(e.Pocket),
			Kind:         string(e.Kind),
			Amount:       e.Amount,
			BalanceAfter: e.BalanceAfter,
			Reference:    e.Reference,
			Description:  e.Description,
			CreatedAt:    e.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	return c.JSON(fiber.Map{"entries": out})
}

// Reconcile reports stored balances against entry sums.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	report, err := h.service.Reconcile(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"account_id": report.AccountID,
		"balanced":   report.Balanced(),
		"wallet":     fiber.Map{"balance": report.Wallet.Balance, "entry_sum": report.Wallet.EntrySum},
		"commission": fiber.Map{"balance": report.Commission.Balance, "entry_sum": report.Commission.EntrySum},
	})
}

// WithdrawCommission moves commission into the wallet.
func (h *Handler) WithdrawCommission(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	acct, err := h.service.WithdrawCommission(c.UserContext(), c.Params("id"), req.Amount, req.Reference)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toResponse(acct))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidHandle), errors.Is(err, ledger.ErrInvalidPosting):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "insufficient commission balance")
	case errors.Is(err, ledger.ErrHandleTaken):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
