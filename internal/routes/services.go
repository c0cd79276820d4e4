package routes

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Tung090505/Shop-game-sub000/internal/account"
	"github.com/Tung090505/Shop-game-sub000/internal/cardgateway"
	"github.com/Tung090505/Shop-game-sub000/internal/clock"
	"github.com/Tung090505/Shop-game-sub000/internal/commission"
	"github.com/Tung090505/Shop-game-sub000/internal/config"
	"github.com/Tung090505/Shop-game-sub000/internal/deposit"
	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
	"github.com/Tung090505/Shop-game-sub000/internal/logging"
	"github.com/Tung090505/Shop-game-sub000/internal/metrics"
	"github.com/Tung090505/Shop-game-sub000/internal/notification"
	"github.com/Tung090505/Shop-game-sub000/internal/prize"
	"github.com/Tung090505/Shop-game-sub000/internal/purchase"
	"github.com/Tung090505/Shop-game-sub000/internal/reconcile"
	"github.com/Tung090505/Shop-game-sub000/internal/revenue"
	"github.com/Tung090505/Shop-game-sub000/internal/settings"
	"github.com/Tung090505/Shop-game-sub000/internal/sweeper"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache may be nil in
// development, in which case in-memory backends are used.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Clock    clock.Clock
	// Charger overrides the card partner client, mainly for tests.
	Charger  cardgateway.Charger
}

// Services holds the wired domain services.
type Services struct {
	Ledger     ledger.Store
	Accounts   *account.Service
	Deposits   *deposit.Service
	Reconciler *reconcile.Service
	Purchases  *purchase.Service
	Prizes     *prize.Engine
	Revenue    *revenue.Aggregator
	Settings   *settings.Lookup
	Sweeper    *sweeper.Sweeper
}

// BuildServices picks Postgres or in-memory backends and wires every service.
func BuildServices(d Deps) (Services, error) {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return Services{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return Services{}, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}

	var m *metrics.Metrics
	if d.Registry != nil {
		m = metrics.New(d.Registry)
	}

	var (
		led           ledger.Store
		depositStore  deposit.Store
		orderStore    purchase.Store
		prizeTable    prize.Table
		settingsStore settings.Store
	)
	if d.DB != nil {
		led = ledger.NewPostgresStore(d.DB)
		depositStore = deposit.NewPostgresStore(d.DB)
		orderStore = purchase.NewPostgresStore(d.DB)
		prizeTable = prize.NewPostgresTable(d.DB)
		settingsStore = settings.NewPostgresStore(d.DB)
	} else {
		d.Logger.Warn("DATABASE_URL not set, using in-memory backends")
		led = ledger.NewInMemory()
		depositStore = deposit.NewMemoryStore(led)
		orderStore = purchase.NewMemoryStore(led)
		prizeTable = prize.NewMemoryTable()
		settingsStore = settings.NewMemoryStore()
	}

	notifier := notification.Fanout{notification.NewLoggerDispatcher(d.Logger)}
	if d.Cache != nil {
		notifier = append(notifier, notification.NewRedisDispatcher(d.Cache))
	}

	lookup := settings.NewLookup(settingsStore)
	charger := d.Charger
	if charger == nil {
		charger = cardgateway.NewClient(lookup, d.Cfg.GatewayTimeout, d.Logger, m)
	}

	deposits := deposit.NewService(depositStore, led,
		deposit.WithCharger(charger),
		deposit.WithNotifier(notifier),
		deposit.WithClock(d.Clock),
		deposit.WithLogger(d.Logger),
		deposit.WithMetrics(m),
		deposit.WithCardPayoutRate(d.Cfg.CardPayoutRate),
	)

	sweepOpts := []sweeper.Option{sweeper.WithClock(d.Clock), sweeper.WithLogger(d.Logger), sweeper.WithMetrics(m)}
	if d.Cache != nil {
		sweepOpts = append(sweepOpts, sweeper.WithLease(d.Cache))
	}

	purchases := purchase.NewService(orderStore, led, commission.NewCalculator(d.Cfg.CommissionRate),
		purchase.WithNotifier(notifier),
		purchase.WithClock(d.Clock),
		purchase.WithLogger(d.Logger),
		purchase.WithMetrics(m),
	)
	prizes := prize.NewEngine(prizeTable, led, d.Cfg.DrawFee,
		prize.WithNotifier(notifier),
		prize.WithClock(d.Clock),
		prize.WithLogger(d.Logger),
		prize.WithMetrics(m),
	)

	return Services{
		Ledger:     led,
		Accounts:   account.NewService(led, d.Logger),
		Deposits:   deposits,
		Reconciler: reconcile.NewService(deposits, led, d.Cfg.Brand, d.Logger, m),
		Purchases:  purchases,
		Prizes:     prizes,
		Revenue:    revenue.NewAggregator(orderStore, d.Cfg.Location, d.Clock),
		Settings:   lookup,
		Sweeper:    sweeper.New(deposits, d.Cfg.SweepInterval, d.Cfg.PendingExpiry, sweepOpts...),
	}, nil
}
