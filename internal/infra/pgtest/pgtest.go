// Package pgtest provisions throwaway Postgres schemas for integration tests.
package pgtest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tung090505/Shop-game-sub000/internal/migrations"
)

// EnvVar names the DSN used for integration tests. Tests are skipped when it is unset.
const EnvVar = "TEST_DATABASE_URL"

// NewPool creates a dedicated schema, migrates it and returns a pool bound to it. The schema
// is dropped when the test finishes.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	base := os.Getenv(EnvVar)
	if base == "" {
		t.Skipf("%s not set; skipping postgres integration test", EnvVar)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := pgxpool.New(ctx, base)
	if err != nil {
		t.Fatalf("open admin pool: %v", err)
	}
	defer admin.Close()

	schema := schemaName(t.Name())
	if _, err := admin.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA "%s"`, schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	dsn, err := withSearchPath(base, schema)
	if err != nil {
		t.Fatalf("test dsn: %v", err)
	}
	if err := migrations.Up(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open test pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		dctx, dcancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dcancel()
		cleanup, err := pgxpool.New(dctx, base)
		if err != nil {
			return
		}
		defer cleanup.Close()
		_, _ = cleanup.Exec(dctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS "%s" CASCADE`, schema))
	})
	return pool
}

func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func schemaName(testName string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(testName))
	var rnd [4]byte
	_, _ = rand.Read(rnd[:])
	return fmt.Sprintf("test_%08x_%s", h.Sum32(), hex.EncodeToString(rnd[:]))
}
