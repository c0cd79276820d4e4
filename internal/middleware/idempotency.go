package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	idempotencyPrefix    = "idempotency:v2:"
	inProgressMarker     = "__in_progress__"
	maxKeyLength         = 128
	cacheOpTimeout       = 2 * time.Second
)

// replayedHeaders are the only response headers kept with a stored response.
var replayedHeaders = []string{fiber.HeaderContentType, fiber.HeaderLocation}

type storedResponse struct {
	Fingerprint string            `json:"fingerprint"`
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers"`
}

type idempotencyStore struct {
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func (s idempotencyStore) lookup(key string) (storedResponse, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()

	raw, err := s.cache.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return storedResponse{}, false, nil
	}
	if err != nil {
		return storedResponse{}, false, err
	}
	if raw == inProgressMarker {
		return storedResponse{}, true, nil
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return storedResponse{}, false, err
	}
	return stored, true, nil
}

func (s idempotencyStore) reserve(key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	return s.cache.SetNX(ctx, key, inProgressMarker, s.ttl).Result()
}

func (s idempotencyStore) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("idempotency release failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (s idempotencyStore) persist(key string, stored storedResponse) error {
	payload, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	return s.cache.Set(ctx, key, payload, s.ttl).Err()
}

func fingerprint(c *fiber.Ctx) string {
	sum := sha256.Sum256(c.Body())
	return hex.EncodeToString(sum[:])
}

// Idempotency replays the stored response for unsafe requests that repeat an
// Idempotency-Key header on the same route. Requests without the header pass through;
// deposit tokens and order ids already make those operations safe to retry. Reusing a key
// with a different body is rejected with 422.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	store := idempotencyStore{cache: cache, ttl: ttl, logger: logger}

	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		switch method {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if key == "" {
			return c.Next()
		}
		if len(key) > maxKeyLength {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key too long")
		}
		cacheKey := idempotencyPrefix + method + ":" + c.Path() + ":" + key
		fp := fingerprint(c)

		stored, found, err := store.lookup(cacheKey)
		if err != nil {
			logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}
		if found {
			if stored.Fingerprint == "" {
				return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
			}
			if stored.Fingerprint != fp {
				return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key reused with a different payload")
			}
			for header, value := range stored.Headers {
				c.Set(header, value)
			}
			c.Set(replayedHeader, "true")
			return c.Status(stored.Status).SendString(stored.Body)
		}

		reserved, err := store.reserve(cacheKey)
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency reservation failure")
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		// Only 2xx responses are stored. Errors, whether returned or written directly, release
		// the key so the client can retry once the cause is fixed.
		if err := c.Next(); err != nil || c.Response().StatusCode() >= fiber.StatusMultipleChoices {
			store.release(cacheKey)
			return err
		}

		resp := storedResponse{
			Fingerprint: fp,
			Status:      c.Response().StatusCode(),
			Body:        string(c.Response().Body()),
			Headers:     map[string]string{},
		}
		for _, header := range replayedHeaders {
			if v := c.GetRespHeader(header); v != "" {
				resp.Headers[header] = v
			}
		}
		if err := store.persist(cacheKey, resp); err != nil {
			logger.Error("failed to persist idempotent response", slog.String("key", key), slog.Any("error", err))
			store.release(cacheKey)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency persistence failure")
		}
		return nil
	}
}
