package deposit

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Tung090505/Shop-game-sub000/internal/cardgateway"
	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
	"github.com/Tung090505/Shop-game-sub000/internal/request"
)

// Handler exposes HTTP endpoints for deposit requests.
type Handler struct {
	service *Service
}

// NewHandler constructs a deposit handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type openRequest struct {
	AccountID string `json:"account_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"gt=0"`
	Channel   string `json:"channel" validate:"required,oneof=bank ewallet"`
	Token     string `json:"token" validate:"required,max=128"`
	Reference string `json:"reference" validate:"max=128"`
	Memo      string `json:"memo" validate:"max=255"`
}

type cardRequest struct {
	AccountID string `json:"account_id" validate:"required"`
	Provider  string `json:"provider" validate:"required,max=32"`
	Serial    string `json:"serial" validate:"required,max=64"`
	PIN       string `json:"pin" validate:"required,max=64"`
	FaceValue int64  `json:"face_value" validate:"gt=0"`
	Token     string `json:"token" validate:"max=128"`
}

type depositResponse struct {
	ID             string     `json:"id"`
	AccountID      string     `json:"account_id"`
	Amount         int64      `json:"amount"`
	Channel        string     `json:"channel"`
	Token          string     `json:"token"`
	Status         string     `json:"status"`
	CreditedAmount int64      `json:"credited_amount"`
	Detail         any        `json:"detail,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	PartnerStatus  *int       `json:"partner_status,omitempty"`
	PartnerError   string     `json:"partner_error,omitempty"`
}

// Open records a bank or e-wallet transfer the customer says they made.
func (h *Handler) Open(c *fiber.Ctx) error {
	var req openRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	var detail Detail = BankDetail{Reference: req.Reference, Memo: req.Memo}
	if Channel(req.Channel) == ChannelEWallet {
		detail = EWalletDetail{Reference: req.Reference, Memo: req.Memo}
	}
	created, err := h.service.Open(c.UserContext(), OpenInput{
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Channel:   Channel(req.Channel),
		Token:     req.Token,
		Detail:    detail,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(created))
}

// SubmitCard charges a scratch card and reports the immediate outcome.
func (h *Handler) SubmitCard(c *fiber.Ctx) error {
	var req cardRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	created, res, err := h.service.SubmitCard(c.UserContext(), CardInput{
		AccountID: req.AccountID,
		Provider:  req.Provider,
		Serial:    req.Serial,
		PIN:       req.PIN,
		FaceValue: req.FaceValue,
		Token:     req.Token,
	})
	if err != nil {
		return httpError(err)
	}
	out := toResponse(created)
	if res.PartnerStatus != 0 {
		status := res.PartnerStatus
		out.PartnerStatus = &status
	}
	if res.Err != nil && errors.Is(res.Err, cardgateway.ErrPartnerUnavailable) {
		out.PartnerError = "partner unavailable, awaiting confirmation"
	}
	return c.Status(http.StatusCreated).JSON(out)
}

// Get returns one request.
func (h *Handler) Get(c *fiber.Ctx) error {
	req, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toResponse(req))
}

// ListByAccount returns an account's recent requests.
func (h *Handler) ListByAccount(c *fiber.Ctx) error {
	reqs, err := h.service.ListByAccount(c.UserContext(), c.Params("id"), c.QueryInt("limit", 50))
	if err != nil {
		return httpError(err)
	}
	out := make([]depositResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, toResponse(r))
	}
	return c.JSON(fiber.Map{"deposits": out})
}

func toResponse(r Request) depositResponse {
	out := depositResponse{
		ID:             r.ID,
		AccountID:      r.AccountID,
		Amount:         r.Amount,
		Channel:        string(r.Channel),
		Token:          r.Token,
		Status:         string(r.Status),
		CreditedAmount: r.CreditedAmount,
		CreatedAt:      r.CreatedAt,
		ResolvedAt:     r.ResolvedAt,
	}
	switch d := r.Detail.(type) {
	case CardDetail:
		out.Detail = fiber.Map{
			"provider":    d.Provider,
			"serial":      d.Serial,
			"pin_hint":    d.PINHint,
			"face_value":  d.FaceValue,
			"last_status": d.LastStatus,
		}
	case BankDetail, EWalletDetail:
		out.Detail = d
	}
	return out
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicateToken):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyTerminal):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
