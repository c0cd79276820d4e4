package reconcile

import (
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tung090505/Shop-game-sub000/internal/logging"
)

func newWebhookApp(e *env) *fiber.App {
	app := fiber.New()
	h := NewHandler(e.svc, "s3cret", logging.Discard())
	app.Post("/webhooks/bank", h.Bank)
	app.Get("/webhooks/card/:secret", h.Card)
	app.Post("/webhooks/card/:secret", h.Card)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, contentType, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(fiber.HeaderContentType, contentType)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(raw)
}

func TestBankWebhookHTTP(t *testing.T) {
	e := newEnv(t)
	app := newWebhookApp(e)

	status, body := do(t, app, fiber.MethodPost, "/webhooks/bank", fiber.MIMEApplicationJSON,
		`{"content":"SHOPGAME player01","amount":"120000","reference":"FT77"}`)
	assert.Equal(t, 200, status)
	assert.JSONEq(t, `{"status":"received"}`, body)
	assert.Equal(t, int64(120_000), e.balance(t))

	status, _ = do(t, app, fiber.MethodPost, "/webhooks/bank", fiber.MIMEApplicationJSON,
		`{"memo":"SHOPGAME player01","amount":120000,"reference":"FT77"}`)
	assert.Equal(t, 200, status)
	assert.Equal(t, int64(120_000), e.balance(t))

	status, _ = do(t, app, fiber.MethodPost, "/webhooks/bank", fiber.MIMEApplicationJSON,
		`{"memo":"SHOPGAME ghost","amount":1000,"reference":"FT78"}`)
	assert.Equal(t, 200, status)

	status, _ = do(t, app, fiber.MethodPost, "/webhooks/bank", fiber.MIMEApplicationJSON, `{"memo":`)
	assert.Equal(t, 400, status)
	status, _ = do(t, app, fiber.MethodPost, "/webhooks/bank", fiber.MIMEApplicationJSON, `{"memo":"SHOPGAME player01","amount":"lots","reference":"x"}`)
	assert.Equal(t, 400, status)
}

func TestCardWebhookHTTP(t *testing.T) {
	e := newEnv(t)
	app := newWebhookApp(e)

	t.Run("bad secret", func(t *testing.T) {
		req := e.pendingCard(t, 10_000)
		status, _ := do(t, app, fiber.MethodGet, "/webhooks/card/wrong?status=1&request_id="+req.ID, "", "")
		assert.Equal(t, 403, status)
		assert.Zero(t, e.balance(t))
	})

	t.Run("query string", func(t *testing.T) {
		req := e.pendingCard(t, 10_000)
		status, body := do(t, app, fiber.MethodGet, "/webhooks/card/s3cret?status=1&value=10000&request_id="+req.ID, "", "")
		assert.Equal(t, 200, status)
		assert.JSONEq(t, `{"status":"received"}`, body)
		assert.Equal(t, int64(8_000), e.balance(t))
	})

	t.Run("form body", func(t *testing.T) {
		req := e.pendingCard(t, 20_000)
		form := url.Values{"status": {"1"}, "amount": {"20000"}, "request_id": {req.ID}}
		status, _ := do(t, app, fiber.MethodPost, "/webhooks/card/s3cret", fiber.MIMEApplicationForm, form.Encode())
		assert.Equal(t, 200, status)
		assert.Equal(t, int64(8_000+16_000), e.balance(t))
	})

	t.Run("json body rejected status", func(t *testing.T) {
		before := e.balance(t)
		req := e.pendingCard(t, 50_000)
		status, _ := do(t, app, fiber.MethodPost, "/webhooks/card/s3cret", fiber.MIMEApplicationJSON,
			`{"status":99,"request_id":"`+req.ID+`","message":"pending"}`)
		assert.Equal(t, 200, status)
		got, err := e.deposits.Get(t.Context(), req.ID)
		require.NoError(t, err)
		assert.Equal(t, "rejected", string(got.Status))
		assert.Equal(t, before, e.balance(t))
	})

	t.Run("malformed", func(t *testing.T) {
		status, _ := do(t, app, fiber.MethodPost, "/webhooks/card/s3cret", fiber.MIMEApplicationJSON, `{"status":"ok"}`)
		assert.Equal(t, 400, status)
	})

	t.Run("unknown request acknowledged", func(t *testing.T) {
		status, _ := do(t, app, fiber.MethodGet, "/webhooks/card/s3cret?status=1&request_id=unknown", "", "")
		assert.Equal(t, 200, status)
	})
}

func TestBankWebhookRejectsFractionalAmount(t *testing.T) {
	e := newEnv(t)
	app := newWebhookApp(e)

	status, _ := do(t, app, fiber.MethodPost, "/webhooks/bank", fiber.MIMEApplicationJSON,
		`{"memo":"SHOPGAME player01","amount":"10.99","reference":"FT80"}`)
	assert.Equal(t, 400, status)
	status, _ = do(t, app, fiber.MethodPost, "/webhooks/bank", fiber.MIMEApplicationJSON,
		`{"memo":"SHOPGAME player01","amount":10.99,"reference":"FT81"}`)
	assert.Equal(t, 400, status)
	assert.Zero(t, e.balance(t))

	status, _ = do(t, app, fiber.MethodPost, "/webhooks/bank", fiber.MIMEApplicationJSON,
		`{"memo":"SHOPGAME player01","amount":"10.00","reference":"FT82"}`)
	assert.Equal(t, 200, status)
	assert.Equal(t, int64(10), e.balance(t))
}
