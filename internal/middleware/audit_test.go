package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tung090505/Shop-game-sub000/internal/logging"
)

func TestRequestIDAndAudit(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Audit(logging.NewWithWriter(&buf, "debug"), "/healthz"))
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/boom", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusNotFound, "nope") })

	req := httptest.NewRequest(fiber.MethodGet, "/healthz", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
	assert.Zero(t, buf.Len())

	req = httptest.NewRequest(fiber.MethodGet, "/boom", nil)
	req.Header.Set(requestIDHeader, "trace-1")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "trace-1", resp.Header.Get(requestIDHeader))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "request rejected", line["msg"])
	assert.Equal(t, "trace-1", line["request_id"])
	assert.EqualValues(t, 404, line["status"])
	assert.Equal(t, "nope", line["error"])

	req = httptest.NewRequest(fiber.MethodGet, "/boom", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("a", maxRequestID+1))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get(requestIDHeader), 36)
}
