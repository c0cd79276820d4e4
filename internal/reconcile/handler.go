package reconcile

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Tung090505/Shop-game-sub000/internal/cardgateway"
	"github.com/Tung090505/Shop-game-sub000/internal/logging"
)

// Handler exposes the partner webhook endpoints. Partners retry on anything but 200, so
// every outcome other than a malformed payload or a bad secret is acknowledged.
type Handler struct {
	service *Service
	secret  string
	logger  *slog.Logger
}

// NewHandler constructs a webhook handler. cardSecret must match the :secret path segment of
// card callbacks.
func NewHandler(service *Service, cardSecret string, logger *slog.Logger) *Handler {
	return &Handler{service: service, secret: cardSecret, logger: logging.Component(logger, "webhook")}
}

func received(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "received"})
}

// Bank handles POST /webhooks/bank.
func (h *Handler) Bank(c *fiber.Ctx) error {
	p, err := readFields(c)
	if err != nil {
		h.logger.Warn("bank webhook malformed", slog.Any("error", err))
		return fiber.NewError(http.StatusBadRequest, "malformed payload")
	}
	memo := p.get("memo", "content", "description")
	reference := p.get("reference", "transaction_id", "id")
	amount, err := cardgateway.ParseAmount(p.get("amount", "transfer_amount"))
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrMalformedWebhook, err)
		h.logger.Warn("bank webhook malformed", slog.String("reference", reference), slog.Any("error", err))
		return fiber.NewError(http.StatusBadRequest, "malformed payload")
	}

	result, req, err := h.service.HandleBank(c.UserContext(), BankNotification{Memo: memo, Amount: amount, Reference: reference})
	switch {
	case errors.Is(err, ErrMalformedWebhook):
		h.logger.Warn("bank webhook malformed", slog.Any("error", err))
		return fiber.NewError(http.StatusBadRequest, "malformed payload")
	case errors.Is(err, ErrUnknownAccount):
		h.logger.Warn("bank webhook for unknown account", slog.String("reference", reference), slog.Any("error", err))
	case err != nil:
		h.logger.Error("bank webhook failed", slog.String("reference", reference), slog.Any("error", err))
	default:
		h.logger.Info("bank webhook processed",
			slog.String("reference", reference),
			slog.String("result", string(result)),
			slog.String("deposit_id", req.ID),
		)
	}
	return received(c)
}

// Card handles GET|POST /webhooks/card/:secret.
func (h *Handler) Card(c *fiber.Ctx) error {
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(c.Params("secret")), []byte(h.secret)) != 1 {
		h.logger.Warn("card webhook with bad secret", slog.String("ip", c.IP()))
		return fiber.NewError(http.StatusForbidden, "forbidden")
	}

	p, err := readFields(c)
	if err != nil {
		h.logger.Warn("card webhook malformed", slog.Any("error", err))
		return fiber.NewError(http.StatusBadRequest, "malformed payload")
	}
	requestID := strings.TrimSpace(p.get("request_id"))
	status, err := cardgateway.ParseCode(p.get("status"))
	if err != nil || requestID == "" {
		h.logger.Warn("card webhook malformed", slog.String("status", p.get("status")), slog.String("request_id", requestID))
		return fiber.NewError(http.StatusBadRequest, "malformed payload")
	}
	rawValue := p.get("value", "amount")
	var value int64
	if rawValue != "" {
		if value, err = cardgateway.ParseAmount(rawValue); err != nil {
			h.logger.Warn("card webhook malformed", slog.String("request_id", requestID), slog.Any("error", fmt.Errorf("%w: %w", ErrMalformedWebhook, err)))
			return fiber.NewError(http.StatusBadRequest, "malformed payload")
		}
	}

	result, req, err := h.service.HandleCard(c.UserContext(), CardNotification{
		Status:    int(status),
		Value:     value,
		RequestID: requestID,
		Message:   p.get("message"),
	})
	switch {
	case errors.Is(err, ErrMalformedWebhook):
		return fiber.NewError(http.StatusBadRequest, "malformed payload")
	case errors.Is(err, ErrUnknownRequest):
		h.logger.Warn("card webhook for unknown request", slog.String("request_id", requestID))
	case err != nil:
		h.logger.Error("card webhook failed", slog.String("request_id", requestID), slog.Any("error", err))
	default:
		h.logger.Info("card webhook processed",
			slog.String("request_id", requestID),
			slog.Int("partner_status", int(status)),
			slog.String("result", string(result)),
			slog.String("deposit_status", string(req.Status)),
		)
	}
	return received(c)
}

type fields struct {
	body map[string]any
	c    *fiber.Ctx
}

// get returns the first non-empty value among names, looking at the JSON body, then form
// fields, then the query string.
func (f fields) get(names ...string) string {
	for _, name := range names {
		if v, ok := f.body[name]; ok && v != nil {
			var s string
			switch t := v.(type) {
			case string:
				s = t
			case json.Number:
				s = t.String()
			default:
				s = fmt.Sprint(t)
			}
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
		if v := strings.TrimSpace(f.c.FormValue(name)); v != "" {
			return v
		}
		if v := strings.TrimSpace(f.c.Query(name)); v != "" {
			return v
		}
	}
	return ""
}

func readFields(c *fiber.Ctx) (fields, error) {
	f := fields{c: c}
	raw := c.Body()
	if len(raw) == 0 || !strings.HasPrefix(strings.ToLower(string(c.Request().Header.ContentType())), fiber.MIMEApplicationJSON) {
		return f, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&f.body); err != nil {
		return f, fmt.Errorf("decode json body: %w", err)
	}
	return f, nil
}
