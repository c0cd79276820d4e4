package deposit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tung090505/Shop-game-sub000/internal/cardgateway"
	"github.com/Tung090505/Shop-game-sub000/internal/clock"
	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
	"github.com/Tung090505/Shop-game-sub000/internal/logging"
	"github.com/Tung090505/Shop-game-sub000/internal/metrics"
	"github.com/Tung090505/Shop-game-sub000/internal/notification"
)

// DefaultCardPayoutRate is the share of a card's face value credited to the wallet.
var DefaultCardPayoutRate = decimal.RequireFromString("0.8")

// Service is the deposit request tracker. Resolve is the only path that changes a request's
// status, and every ledger credit for a deposit flows through it.
type Service struct {
	store      Store
	ledger     ledger.Store
	charger    cardgateway.Charger
	notifier   notification.Dispatcher
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *metrics.Metrics
	payoutRate decimal.Decimal
	pinCost    int
}

// Option customises a Service.
type Option func(*Service)

func WithCharger(c cardgateway.Charger) Option { return func(s *Service) { s.charger = c } }
func WithNotifier(n notification.Dispatcher) Option { return func(s *Service) { s.notifier = n } }
func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = logging.Component(l, "deposit") } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithCardPayoutRate(rate decimal.Decimal) Option { return func(s *Service) { s.payoutRate = rate } }

// WithPINHashCost sets the bcrypt cost for card PINs.
func WithPINHashCost(cost int) Option { return func(s *Service) { s.pinCost = cost } }

// NewService wires the tracker.
func NewService(store Store, led ledger.Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		ledger:     led,
		clock:      clock.Real{},
		logger:     logging.Component(nil, "deposit"),
		payoutRate: DefaultCardPayoutRate,
		pinCost:    bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenInput captures a new funding attempt.
type OpenInput struct {
	AccountID string
	Amount    int64
	Channel   Channel
	Token     string
	Detail    Detail
}

// Token prefixes the service mints itself. Customer-supplied tokens may not use them, so a
// pending request can never sit on the token a partner notification settles under.
const (
	BankTokenPrefix = "bank:"
	CardTokenPrefix = "card:"
)

func reservedToken(token string) bool {
	token = strings.ToLower(strings.TrimSpace(token))
	return strings.HasPrefix(token, BankTokenPrefix) || strings.HasPrefix(token, CardTokenPrefix)
}

// Open creates a pending request. A reused token fails with ErrDuplicateToken and leaves
// the existing request untouched. Tokens in the bank: and card: namespaces are refused.
func (s *Service) Open(ctx context.Context, input OpenInput) (Request, error) {
	if reservedToken(input.Token) {
		return Request{}, fmt.Errorf("%w: token prefix is reserved", ErrInvalidRequest)
	}
	return s.open(ctx, input)
}

func (s *Service) open(ctx context.Context, input OpenInput) (Request, error) {
	if input.Amount <= 0 {
		return Request{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if !input.Channel.Valid() {
		return Request{}, fmt.Errorf("%w: unknown channel %q", ErrInvalidRequest, input.Channel)
	}
	if input.Detail != nil && input.Detail.Channel() != input.Channel {
		return Request{}, fmt.Errorf("%w: detail does not match channel", ErrInvalidRequest)
	}
	if strings.TrimSpace(input.Token) == "" {
		return Request{}, fmt.Errorf("%w: token is required", ErrInvalidRequest)
	}
	if _, err := s.ledger.Account(ctx, input.AccountID); err != nil {
		return Request{}, err
	}

	now := s.clock.Now()
	req := Request{
		ID:        uuid.NewString(),
		AccountID: input.AccountID,
		Amount:    input.Amount,
		Channel:   input.Channel,
		Token:     input.Token,
		Detail:    input.Detail,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.store.Create(ctx, req)
	if err != nil {
		return Request{}, err
	}
	s.metrics.DepositOpened(string(created.Channel))
	s.logger.Info("deposit opened",
		slog.String("deposit_id", created.ID),
		slog.String("account_id", created.AccountID),
		slog.String("channel", string(created.Channel)),
		slog.Int64("amount", created.Amount),
	)
	return created, nil
}

// Outcome is the verdict handed to Resolve.
type Outcome struct {
	Approve bool
	Reason  string
	// Detail optionally replaces the stored channel detail, for example to record the last
	// partner status of a card.
	Detail Detail
}

// Approved and Rejected are the common verdicts.
func Approved(reason string) Outcome { return Outcome{Approve: true, Reason: reason} }
func Rejected(reason string) Outcome { return Outcome{Reason: reason} }

// Resolve moves a pending request to approved or rejected. Approval credits the wallet in
// the same unit of work under reference deposit:<id>. Resolving a terminal request returns
// the stored request with ErrAlreadyTerminal and changes nothing.
func (s *Service) Resolve(ctx context.Context, id string, outcome Outcome) (Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.Terminal() {
		return req, ErrAlreadyTerminal
	}

	t := Transition{Status: StatusRejected, Detail: outcome.Detail, At: s.clock.Now()}
	if outcome.Approve {
		credit := s.CreditFor(req)
		t.Status = StatusApproved
		t.CreditedAmount = credit
		if credit > 0 {
			t.Credit = &ledger.Posting{
				AccountID:   req.AccountID,
				Pocket:      ledger.PocketWallet,
				Kind:        ledger.KindDeposit,
				Amount:      credit,
				Reference:   req.LedgerReference(),
				Description: describe(req, outcome.Reason),
			}
		}
	}

	resolved, err := s.store.Transition(ctx, id, t)
	if err != nil {
		return resolved, err
	}
	s.afterResolve(ctx, resolved, outcome.Reason)
	return resolved, nil
}

// CreditFor returns what an approval of req credits: the floored payout share of a card's
// face value, or the gross amount for the other channels.
func (s *Service) CreditFor(req Request) int64 {
	if req.Channel != ChannelCard {
		return req.Amount
	}
	face := req.Amount
	if card, ok := req.Card(); ok && card.FaceValue > 0 {
		face = card.FaceValue
	}
	return decimal.NewFromInt(face).Mul(s.payoutRate).Floor().IntPart()
}

// RecordApproved stores an already-approved request and books its credit atomically. It is
// used for channels that report settled money, such as bank transfers. When the token exists
// and is approved the stored request is returned with created=false.
//
// A pending request on the same token is settled only when its account, channel and amount
// match the notification. Otherwise it is left alone and the notification is booked under
// its own request with token <token>#notified.
func (s *Service) RecordApproved(ctx context.Context, input OpenInput, reason string) (Request, bool, error) {
	if input.Amount <= 0 {
		return Request{}, false, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	existing, err := s.store.GetByToken(ctx, input.Token)
	switch {
	case err == nil:
		switch {
		case existing.Status == StatusApproved:
			return existing, false, nil
		case existing.Terminal():
			return existing, false, ErrAlreadyTerminal
		case !matches(existing, input):
			s.logger.Warn("notification does not match request on its token",
				slog.String("deposit_id", existing.ID),
				slog.String("token", input.Token),
				slog.String("account_id", input.AccountID),
				slog.Int64("amount", input.Amount),
			)
			return s.recordApproved(ctx, withToken(input, input.Token+"#notified"), reason)
		}
		resolved, err := s.Resolve(ctx, existing.ID, Approved(reason))
		return resolved, err == nil, err
	case !errors.Is(err, ErrNotFound):
		return Request{}, false, err
	}
	return s.recordApproved(ctx, input, reason)
}

func matches(req Request, input OpenInput) bool {
	return req.AccountID == input.AccountID && req.Channel == input.Channel && req.Amount == input.Amount
}

func withToken(input OpenInput, token string) OpenInput {
	input.Token = token
	return input
}

func (s *Service) recordApproved(ctx context.Context, input OpenInput, reason string) (Request, bool, error) {
	now := s.clock.Now()
	req := Request{
		ID:             uuid.NewString(),
		AccountID:      input.AccountID,
		Amount:         input.Amount,
		Channel:        input.Channel,
		Token:          input.Token,
		Detail:         input.Detail,
		Status:         StatusApproved,
		CreditedAmount: input.Amount,
		CreatedAt:      now,
		UpdatedAt:      now,
		ResolvedAt:     &now,
	}
	credit := ledger.Posting{
		AccountID:   req.AccountID,
		Pocket:      ledger.PocketWallet,
		Kind:        ledger.KindDeposit,
		Amount:      req.CreditedAmount,
		Reference:   req.LedgerReference(),
		Description: describe(req, reason),
	}
	stored, err := s.store.CreateApproved(ctx, req, credit)
	if errors.Is(err, ErrDuplicateToken) {
		// Lost a race with a concurrent delivery of the same notification.
		existing, getErr := s.store.GetByToken(ctx, input.Token)
		if getErr != nil {
			return Request{}, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return Request{}, false, err
	}
	s.metrics.DepositOpened(string(stored.Channel))
	s.afterResolve(ctx, stored, reason)
	return stored, true, nil
}

// CardInput is a scratch card submitted by a customer.
type CardInput struct {
	AccountID string
	Provider  string
	Serial    string
	PIN       string
	FaceValue int64
	Token     string
}

// SubmitCard opens a card request, charges it with the partner and resolves it right away
// when the partner answers definitively. Pending answers are settled later by the partner
// callback or the expiry sweeper.
func (s *Service) SubmitCard(ctx context.Context, input CardInput) (Request, cardgateway.Result, error) {
	provider := strings.ToUpper(strings.TrimSpace(input.Provider))
	serial := strings.TrimSpace(input.Serial)
	pin := strings.TrimSpace(input.PIN)
	if provider == "" || serial == "" || pin == "" {
		return Request{}, cardgateway.Result{}, fmt.Errorf("%w: provider, serial and pin are required", ErrInvalidRequest)
	}
	if s.charger == nil {
		return Request{}, cardgateway.Result{}, errors.New("card charging is not configured")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.pinCost)
	if err != nil {
		return Request{}, cardgateway.Result{}, fmt.Errorf("hash card pin: %w", err)
	}
	if reservedToken(input.Token) {
		return Request{}, cardgateway.Result{}, fmt.Errorf("%w: token prefix is reserved", ErrInvalidRequest)
	}
	token := input.Token
	if token == "" {
		token = CardTokenPrefix + uuid.NewString()
	}

	detail := CardDetail{
		Provider:  provider,
		Serial:    serial,
		PINHash:   string(hash),
		PINHint:   hint(pin),
		FaceValue: input.FaceValue,
	}
	req, err := s.open(ctx, OpenInput{
		AccountID: input.AccountID,
		Amount:    input.FaceValue,
		Channel:   ChannelCard,
		Token:     token,
		Detail:    detail,
	})
	if err != nil {
		return Request{}, cardgateway.Result{}, err
	}

	res := s.charger.Submit(ctx, cardgateway.Charge{
		Provider:  provider,
		Serial:    serial,
		PIN:       pin,
		FaceValue: input.FaceValue,
		RequestID: req.ID,
	})

	detail.PartnerRequestID = req.ID
	detail.LastStatus = res.PartnerStatus
	detail.LastMessage = res.Message
	if res.Value > 0 {
		detail.ReportedValue = res.Value
	}

	switch res.Outcome {
	case cardgateway.ImmediateSuccess:
		resolved, err := s.Resolve(ctx, req.ID, Outcome{Approve: true, Reason: "card accepted", Detail: detail})
		if err != nil && !errors.Is(err, ErrAlreadyTerminal) {
			return req, res, err
		}
		return resolved, res, nil
	case cardgateway.ImmediateFailure:
		resolved, err := s.Resolve(ctx, req.ID, Outcome{Reason: fmt.Sprintf("card refused: %s", res.Message), Detail: detail})
		if err != nil && !errors.Is(err, ErrAlreadyTerminal) {
			return req, res, err
		}
		return resolved, res, nil
	default:
		if err := s.store.UpdateDetail(ctx, req.ID, detail, s.clock.Now()); err != nil && !errors.Is(err, ErrAlreadyTerminal) {
			s.logger.Warn("record card status", slog.String("deposit_id", req.ID), slog.Any("error", err))
		}
		current, err := s.store.Get(ctx, req.ID)
		if err != nil {
			return req, res, nil
		}
		return current, res, nil
	}
}

// Get returns a request by id.
func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	return s.store.Get(ctx, id)
}

// ListByAccount returns an account's requests, newest first.
func (s *Service) ListByAccount(ctx context.Context, accountID string, limit int) ([]Request, error) {
	return s.store.ListByAccount(ctx, accountID, limit)
}

// ExpirePending rejects every pending request created before cutoff. Requests resolved
// concurrently by a webhook are skipped. It returns how many requests it rejected.
func (s *Service) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.store.PendingBefore(ctx, cutoff, 0)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, req := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		_, err := s.Resolve(ctx, req.ID, Rejected("expired"))
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrAlreadyTerminal):
		default:
			return expired, fmt.Errorf("expire %s: %w", req.ID, err)
		}
	}
	return expired, nil
}

func (s *Service) afterResolve(ctx context.Context, req Request, reason string) {
	s.metrics.DepositResolved(string(req.Channel), string(req.Status), req.CreditedAmount)
	s.logger.Info("deposit resolved",
		slog.String("deposit_id", req.ID),
		slog.String("account_id", req.AccountID),
		slog.String("channel", string(req.Channel)),
		slog.String("status", string(req.Status)),
		slog.Int64("credited", req.CreditedAmount),
		slog.String("reason", reason),
	)
	if s.notifier == nil {
		return
	}
	msg := notification.Message{
		Kind:  notification.KindDepositRejected,
		Title: "Deposit rejected",
		Body:  fmt.Sprintf("Your %s deposit of %d was rejected: %s", req.Channel, req.Amount, reason),
		Data:  map[string]any{"deposit_id": req.ID},
	}
	if req.Status == StatusApproved {
		msg.Kind = notification.KindDepositApproved
		msg.Title = "Deposit approved"
		msg.Body = fmt.Sprintf("%d has been added to your wallet", req.CreditedAmount)
		msg.Data["credited"] = req.CreditedAmount
	}
	msg.SentAt = s.clock.Now()
	if err := s.notifier.Notify(ctx, req.AccountID, msg); err != nil {
		s.logger.Warn("notify deposit outcome", slog.String("deposit_id", req.ID), slog.Any("error", err))
	}
}

func describe(req Request, reason string) string {
	d := fmt.Sprintf("%s deposit %s", req.Channel, req.ID)
	if reason != "" {
		d += ": " + reason
	}
	return d
}

func hint(pin string) string {
	if len(pin) <= 2 {
		return strings.Repeat("*", len(pin))
	}
	return pin[len(pin)-2:]
}
