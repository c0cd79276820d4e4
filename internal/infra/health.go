package infra

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Health pings the backing stores. Either may be nil when running on in-memory backends.
type Health struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Check returns a status per dependency and whether all of them are usable.
func (h Health) Check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := map[string]string{"postgres": "disabled", "redis": "disabled"}
	ok := true
	if h.DB != nil {
		status["postgres"] = "ok"
		if err := h.DB.Ping(ctx); err != nil {
			status["postgres"] = err.Error()
			ok = false
		}
	}
	if h.Cache != nil {
		status["redis"] = "ok"
		if err := h.Cache.Ping(ctx).Err(); err != nil {
			status["redis"] = err.Error()
			ok = false
		}
	}
	return status, ok
}
