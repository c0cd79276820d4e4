// Package prize runs the paid prize wheel.
package prize

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/Tung090505/Shop-game-sub000/internal/clock"
	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
	"github.com/Tung090505/Shop-game-sub000/internal/logging"
	"github.com/Tung090505/Shop-game-sub000/internal/metrics"
	"github.com/Tung090505/Shop-game-sub000/internal/notification"
)

// Sampler returns a uniform value in [0, 1).
type Sampler func() float64

// Engine charges the draw fee and picks a prize.
type Engine struct {
	table    Table
	ledger   ledger.Store
	fee      int64
	sample   Sampler
	notifier notification.Dispatcher
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option customises an Engine.
type Option func(*Engine)

func WithSampler(s Sampler) Option { return func(e *Engine) { e.sample = s } }

func WithNotifier(n notification.Dispatcher) Option { return func(e *Engine) { e.notifier = n } }

func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = logging.Component(l, "prize") } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine builds a draw engine charging fee per draw.
func NewEngine(table Table, led ledger.Store, fee int64, opts ...Option) *Engine {
	e := &Engine{
		table:  table,
		ledger: led,
		fee:    fee,
		sample: rand.Float64,
		clock:  clock.Real{},
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result describes one draw.
type Result struct {
	DrawID   string `json:"draw_id"`
	Prize    Entry  `json:"prize"`
	Fee      int64  `json:"fee"`
	Credited int64  `json:"credited"`
	Balance  int64  `json:"balance"`
}

// Select walks entries in order accumulating weights and returns the first entry whose
// cumulative weight exceeds sample. When weights sum to no more than sample the last entry
// wins. entries must not be empty.
func Select(entries []Entry, sample float64) Entry {
	var cumulative float64
	for _, e := range entries {
		cumulative += e.Weight
		if cumulative > sample {
			return e
		}
	}
	return entries[len(entries)-1]
}

// Draw charges the fee and then credits a balance prize in a separate posting. A failed fee
// debit means no draw happened. A failed prize credit is returned as an error after the fee
// was already taken, so a crash can lose a win but never fabricate one.
func (e *Engine) Draw(ctx context.Context, accountID string) (Result, error) {
	entries, err := e.table.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load prize table: %w", err)
	}
	if len(entries) == 0 {
		return Result{}, ErrEmptyPrizeTable
	}

	res := Result{DrawID: uuid.NewString(), Fee: e.fee}
	if e.fee > 0 {
		entry, err := e.ledger.Debit(ctx, ledger.Movement{
			AccountID:   accountID,
			Pocket:      ledger.PocketWallet,
			Kind:        ledger.KindDraw,
			Amount:      e.fee,
			Reference:   "draw:" + res.DrawID,
			Description: "prize draw fee",
		})
		if err != nil {
			return Result{}, err
		}
		res.Balance = entry.BalanceAfter
	} else {
		acct, err := e.ledger.Account(ctx, accountID)
		if err != nil {
			return Result{}, err
		}
		res.Balance = acct.WalletBalance
	}

	res.Prize = Select(entries, e.sample())

	if res.Prize.Kind == KindBalance && res.Prize.Value > 0 {
		entry, err := e.ledger.Credit(ctx, ledger.Movement{
			AccountID:   accountID,
			Pocket:      ledger.PocketWallet,
			Kind:        ledger.KindDraw,
			Amount:      res.Prize.Value,
			Reference:   "draw:" + res.DrawID + ":prize",
			Description: "prize " + res.Prize.Name,
		})
		if err != nil {
			e.logger.Error("credit prize after charging fee",
				slog.String("draw_id", res.DrawID),
				slog.String("account_id", accountID),
				slog.String("prize_id", res.Prize.ID),
				slog.Any("error", err),
			)
			return res, fmt.Errorf("credit prize: %w", err)
		}
		res.Credited = res.Prize.Value
		res.Balance = entry.BalanceAfter
	}

	e.metrics.Draw(string(res.Prize.Kind))
	e.logger.Info("prize drawn",
		slog.String("draw_id", res.DrawID),
		slog.String("account_id", accountID),
		slog.String("prize_id", res.Prize.ID),
		slog.String("kind", string(res.Prize.Kind)),
		slog.Int64("credited", res.Credited),
	)
	if res.Prize.Kind != KindEmpty {
		e.notifyWin(ctx, accountID, res)
	}
	return res, nil
}

func (e *Engine) notifyWin(ctx context.Context, accountID string, res Result) {
	if e.notifier == nil {
		return
	}
	msg := notification.Message{
		Kind:   notification.KindPrizeWon,
		Title:  "You won " + res.Prize.Name,
		Body:   fmt.Sprintf("Draw %s won %s", res.DrawID, res.Prize.Name),
		Data:   map[string]any{"draw_id": res.DrawID, "prize_id": res.Prize.ID, "credited": res.Credited},
		SentAt: e.clock.Now(),
	}
	if err := e.notifier.Notify(ctx, accountID, msg); err != nil {
		e.logger.Warn("notify prize", slog.String("draw_id", res.DrawID), slog.Any("error", err))
	}
}

// Entries lists the prize table in draw order.
func (e *Engine) Entries(ctx context.Context) ([]Entry, error) {
	return e.table.List(ctx)
}

// SaveEntry validates and stores a prize entry, assigning an id to new entries.
func (e *Engine) SaveEntry(ctx context.Context, entry Entry) (Entry, error) {
	entry.Name = strings.TrimSpace(entry.Name)
	entry.Kind = Kind(strings.ToLower(string(entry.Kind)))
	if err := entry.validate(); err != nil {
		return Entry{}, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.UpdatedAt = e.clock.Now()
	return e.table.Upsert(ctx, entry)
}

// DeleteEntry removes a prize entry.
func (e *Engine) DeleteEntry(ctx context.Context, id string) error {
	return e.table.Delete(ctx, id)
}
