// Package purchase debits buyers for catalog items and pays referral commissions in the
// same ledger batch.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Tung090505/Shop-game-sub000/internal/clock"
	"github.com/Tung090505/Shop-game-sub000/internal/commission"
	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
	"github.com/Tung090505/Shop-game-sub000/internal/logging"
	"github.com/Tung090505/Shop-game-sub000/internal/metrics"
	"github.com/Tung090505/Shop-game-sub000/internal/notification"
)

// Service records purchases.
type Service struct {
	store      Store
	ledger     ledger.Store
	commission commission.Calculator
	notifier   notification.Dispatcher
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option customises a Service.
type Option func(*Service)

func WithNotifier(n notification.Dispatcher) Option { return func(s *Service) { s.notifier = n } }
func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = logging.Component(l, "purchase") } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// NewService builds a purchase service.
func NewService(store Store, led ledger.Store, calc commission.Calculator, opts ...Option) *Service {
	s := &Service{
		store:      store,
		ledger:     led,
		commission: calc,
		clock:      clock.Real{},
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Input describes a purchase. OrderID makes retries safe; a fresh id is generated when empty.
type Input struct {
	OrderID   string
	AccountID string
	ItemRef   string
	Price     int64
}

// Receipt is the outcome of a purchase.
type Receipt struct {
	Order      Order
	ReferrerID string
	Duplicate  bool
}

// Purchase debits the buyer and, when the buyer was referred, credits the referrer's
// commission pocket. Both postings share the reference order:<id> and commit together, so
// an insufficient balance leaves no trace and a replayed order id books nothing.
func (s *Service) Purchase(ctx context.Context, input Input) (Receipt, error) {
	input.ItemRef = strings.TrimSpace(input.ItemRef)
	if input.Price < 0 || input.ItemRef == "" || input.AccountID == "" {
		return Receipt{}, fmt.Errorf("%w: account, item and a non-negative price are required", ErrInvalidPurchase)
	}
	if input.OrderID == "" {
		input.OrderID = uuid.NewString()
	}

	buyer, err := s.ledger.Account(ctx, input.AccountID)
	if err != nil {
		return Receipt{}, err
	}

	order := Order{
		ID:        input.OrderID,
		AccountID: buyer.ID,
		ItemRef:   input.ItemRef,
		Price:     input.Price,
		Status:    StatusCompleted,
		CreatedAt: s.clock.Now(),
	}
	if buyer.ReferrerID != "" {
		order.Commission = s.commission.Compute(order.Price)
	}

	var postings []ledger.Posting
	if order.Price > 0 {
		postings = append(postings, ledger.DebitOf(ledger.Movement{
			AccountID:   buyer.ID,
			Pocket:      ledger.PocketWallet,
			Kind:        ledger.KindPurchase,
			Amount:      order.Price,
			Reference:   order.LedgerReference(),
			Description: "purchase " + order.ItemRef,
		}))
	}
	if order.Commission > 0 {
		postings = append(postings, ledger.CreditOf(ledger.Movement{
			AccountID:   buyer.ReferrerID,
			Pocket:      ledger.PocketCommission,
			Kind:        ledger.KindCommission,
			Amount:      order.Commission,
			Reference:   order.LedgerReference(),
			Description: fmt.Sprintf("commission on order %s by %s", order.ID, buyer.Handle),
		}))
	}

	stored, err := s.store.Complete(ctx, order, postings)
	if errors.Is(err, ErrDuplicateOrder) {
		if stored.AccountID != buyer.ID {
			return Receipt{}, fmt.Errorf("%w: order id belongs to another account", ErrInvalidPurchase)
		}
		return Receipt{Order: stored, ReferrerID: buyer.ReferrerID, Duplicate: true}, nil
	}
	if err != nil {
		return Receipt{}, err
	}

	s.metrics.Purchase(stored.Commission)
	s.logger.Info("purchase completed",
		slog.String("order_id", stored.ID),
		slog.String("account_id", stored.AccountID),
		slog.Int64("price", stored.Price),
		slog.Int64("commission", stored.Commission),
	)
	if stored.Commission > 0 {
		s.notifyCommission(ctx, buyer, stored)
	}
	return Receipt{Order: stored, ReferrerID: buyer.ReferrerID}, nil
}

// Get returns an order.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) notifyCommission(ctx context.Context, buyer ledger.Account, order Order) {
	if s.notifier == nil {
		return
	}
	msg := notification.Message{
		Kind:   notification.KindCommissionEarned,
		Title:  "Commission earned",
		Body:   fmt.Sprintf("You earned %d from a purchase by %s", order.Commission, buyer.Handle),
		Data:   map[string]any{"order_id": order.ID, "amount": order.Commission},
		SentAt: s.clock.Now(),
	}
	if err := s.notifier.Notify(ctx, buyer.ReferrerID, msg); err != nil {
		s.logger.Warn("notify commission", slog.String("order_id", order.ID), slog.Any("error", err))
	}
}
