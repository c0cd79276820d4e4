package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // APP_TIMEZONE must resolve in minimal containers

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultAppName        = "ShopGame"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultBrand          = "SHOPGAME"
	defaultTimezone       = "Asia/Ho_Chi_Minh"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultSweepInterval  = 60 * time.Second
	defaultPendingExpiry  = 3 * time.Minute
	defaultGatewayTimeout = 15 * time.Second
	defaultCommissionRate = "0.05"
	defaultCardPayoutRate = "0.8"
	defaultDrawFee        = 10_000
	defaultDBMaxConns     = 10
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName     string
	AppEnv      string
	Port        string
	LogLevel    string
	DatabaseURL string
	DBMaxConns  int32
	RedisURL    string

	// Brand is the prefix customers put in bank transfer memos before their handle.
	Brand string
	// CardWebhookSecret is the path segment the card partner must echo on callbacks.
	CardWebhookSecret string
	Location          *time.Location

	CommissionRate decimal.Decimal
	CardPayoutRate decimal.Decimal
	DrawFee        int64

	SweepInterval  time.Duration
	PendingExpiry  time.Duration
	GatewayTimeout time.Duration
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is applied first when present; real environment
// variables win over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:           getEnv("APP_NAME", defaultAppName),
		AppEnv:            strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:              getEnv("PORT", defaultPort),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		Brand:             strings.ToUpper(getEnv("BANK_MEMO_BRAND", defaultBrand)),
		CardWebhookSecret: os.Getenv("CARD_WEBHOOK_SECRET"),
	}

	var err error
	if cfg.Location, err = time.LoadLocation(getEnv("APP_TIMEZONE", defaultTimezone)); err != nil {
		return Config{}, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	if cfg.CommissionRate, err = rate("COMMISSION_RATE", defaultCommissionRate); err != nil {
		return Config{}, err
	}
	if cfg.CardPayoutRate, err = rate("CARD_PAYOUT_RATE", defaultCardPayoutRate); err != nil {
		return Config{}, err
	}

	cfg.DrawFee = defaultDrawFee
	if v := os.Getenv("DRAW_FEE"); v != "" {
		fee, err := strconv.ParseInt(v, 10, 64)
		if err != nil || fee < 0 {
			return Config{}, fmt.Errorf("invalid DRAW_FEE %q", v)
		}
		cfg.DrawFee = fee
	}

	cfg.DBMaxConns = defaultDBMaxConns
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid DB_MAX_CONNS %q", v)
		}
		cfg.DBMaxConns = int32(n)
	}

	durations := []struct {
		dst      *time.Duration
		prefix   string
		fallback time.Duration
	}{
		{&cfg.ShutdownPeriod, "SHUTDOWN_TIMEOUT", defaultShutdownDelay},
		{&cfg.IdempotencyTTL, "IDEMPOTENCY_TTL", defaultIdempotencyTTL},
		{&cfg.SweepInterval, "SWEEP_INTERVAL", defaultSweepInterval},
		{&cfg.PendingExpiry, "PENDING_EXPIRY", defaultPendingExpiry},
		{&cfg.GatewayTimeout, "CARD_GATEWAY_TIMEOUT", defaultGatewayTimeout},
	}
	for _, d := range durations {
		v, err := duration(d.prefix, d.fallback)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.CardWebhookSecret == "" {
			return Config{}, fmt.Errorf("CARD_WEBHOOK_SECRET must be set")
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the service may fall back to in-memory backends.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "test"
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// duration reads <prefix>_SECONDS as an integer first, then <prefix> as a Go duration string.
func duration(prefix string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(prefix + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", prefix, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(prefix); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", prefix, err)
		}
		return d, nil
	}
	return fallback, nil
}

func rate(key, fallback string) (decimal.Decimal, error) {
	r, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("invalid %s: must be within [0,1]", key)
	}
	return r, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
