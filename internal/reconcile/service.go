// Package reconcile turns partner payment notifications into deposit resolutions. Every
// handler is safe under repeated and concurrent delivery of the same notification.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Tung090505/Shop-game-sub000/internal/cardgateway"
	"github.com/Tung090505/Shop-game-sub000/internal/deposit"
	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
	"github.com/Tung090505/Shop-game-sub000/internal/logging"
	"github.com/Tung090505/Shop-game-sub000/internal/metrics"
)

var (
	// ErrMalformedWebhook means the payload is missing or has unparsable required fields.
	ErrMalformedWebhook = errors.New("malformed webhook payload")
	// ErrUnknownAccount means a bank memo did not name a registered account.
	ErrUnknownAccount = errors.New("memo does not match an account")
	// ErrUnknownRequest means a card callback referenced no deposit request we issued.
	ErrUnknownRequest = errors.New("callback does not match a deposit request")
)

// Result describes what a notification did.
type Result string

const (
	ResultCredited  Result = "credited"
	ResultRejected  Result = "rejected"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
)

// BankNotification is a settled incoming bank transfer.
type BankNotification struct {
	Memo      string
	Amount    int64
	Reference string
}

// CardNotification is the partner's final verdict on a card charge.
type CardNotification struct {
	Status    int
	Value     int64
	RequestID string
	Message   string
}

// Service reconciles partner notifications against deposit requests.
type Service struct {
	deposits *deposit.Service
	ledger   ledger.Store
	memo     *regexp.Regexp
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService builds a reconciler. brand is the memo prefix customers type before their
// handle when transferring money.
func NewService(deposits *deposit.Service, led ledger.Store, brand string, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		deposits: deposits,
		ledger:   led,
		memo:     memoPattern(brand),
		logger:   logging.Component(logger, "reconcile"),
		metrics:  m,
	}
}

func memoPattern(brand string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^A-Za-z0-9])` + regexp.QuoteMeta(strings.TrimSpace(brand)) + `[\s:\-]+([A-Za-z0-9_]+)`)
}

// ParseMemo extracts the account handle from free-form memo text such as
// "IBFT 123 shopgame player01 chuyen tien". It reports false when the brand is absent.
func (s *Service) ParseMemo(memo string) (string, bool) {
	m := s.memo.FindStringSubmatch(memo)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// HandleBank credits a settled bank transfer once per bank reference. Unknown handles are
// acknowledged without effect and reported as ErrUnknownAccount.
func (s *Service) HandleBank(ctx context.Context, n BankNotification) (Result, deposit.Request, error) {
	reference := strings.TrimSpace(n.Reference)
	if n.Amount <= 0 || reference == "" {
		s.metrics.Webhook("bank", "malformed")
		return ResultIgnored, deposit.Request{}, fmt.Errorf("%w: amount and reference are required", ErrMalformedWebhook)
	}

	handle, ok := s.ParseMemo(n.Memo)
	if !ok {
		s.metrics.Webhook("bank", "unknown_account")
		return ResultIgnored, deposit.Request{}, fmt.Errorf("%w: no brand marker in %q", ErrUnknownAccount, n.Memo)
	}
	acct, err := s.ledger.AccountByHandle(ctx, handle)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		s.metrics.Webhook("bank", "unknown_account")
		return ResultIgnored, deposit.Request{}, fmt.Errorf("%w: handle %q", ErrUnknownAccount, handle)
	}
	if err != nil {
		return ResultIgnored, deposit.Request{}, err
	}

	req, created, err := s.deposits.RecordApproved(ctx, deposit.OpenInput{
		AccountID: acct.ID,
		Amount:    n.Amount,
		Channel:   deposit.ChannelBank,
		Token:     deposit.BankTokenPrefix + reference,
		Detail:    deposit.BankDetail{Reference: reference, Memo: n.Memo},
	}, "bank transfer "+reference)
	if errors.Is(err, deposit.ErrAlreadyTerminal) {
		s.metrics.Webhook("bank", "ignored")
		return ResultIgnored, req, nil
	}
	if err != nil {
		s.metrics.Webhook("bank", "error")
		return ResultIgnored, deposit.Request{}, err
	}
	if !created {
		s.metrics.Webhook("bank", "duplicate")
		return ResultDuplicate, req, nil
	}
	s.metrics.Webhook("bank", "credited")
	return ResultCredited, req, nil
}

// HandleCard settles a card request. Status 1 approves it; every other status rejects it.
// Callbacks for requests that are no longer pending are ignored.
func (s *Service) HandleCard(ctx context.Context, n CardNotification) (Result, deposit.Request, error) {
	if strings.TrimSpace(n.RequestID) == "" {
		s.metrics.Webhook("card", "malformed")
		return ResultIgnored, deposit.Request{}, fmt.Errorf("%w: request_id is required", ErrMalformedWebhook)
	}
	req, err := s.deposits.Get(ctx, n.RequestID)
	if errors.Is(err, deposit.ErrNotFound) {
		s.metrics.Webhook("card", "unknown_request")
		return ResultIgnored, deposit.Request{}, fmt.Errorf("%w: %s", ErrUnknownRequest, n.RequestID)
	}
	if err != nil {
		return ResultIgnored, deposit.Request{}, err
	}
	if req.Channel != deposit.ChannelCard || req.Terminal() {
		s.metrics.Webhook("card", "ignored")
		return ResultIgnored, req, nil
	}

	card, _ := req.Card()
	card.LastStatus = n.Status
	card.LastMessage = n.Message
	if n.Value > 0 {
		card.ReportedValue = n.Value
		if n.Value != card.FaceValue {
			s.logger.Warn("card value differs from declared face value",
				slog.String("deposit_id", req.ID),
				slog.Int64("face_value", card.FaceValue),
				slog.Int64("reported_value", n.Value),
				slog.Int("partner_status", n.Status),
			)
		}
	}
	outcome := deposit.Outcome{Detail: card}
	if n.Status == cardgateway.StatusSuccess {
		outcome.Approve = true
		outcome.Reason = "partner callback approved"
	} else {
		outcome.Reason = fmt.Sprintf("partner callback status %d: %s", n.Status, n.Message)
	}

	resolved, err := s.deposits.Resolve(ctx, req.ID, outcome)
	if errors.Is(err, deposit.ErrAlreadyTerminal) {
		s.metrics.Webhook("card", "ignored")
		return ResultIgnored, resolved, nil
	}
	if err != nil {
		s.metrics.Webhook("card", "error")
		return ResultIgnored, deposit.Request{}, err
	}
	if resolved.Status == deposit.StatusApproved {
		s.metrics.Webhook("card", "credited")
		return ResultCredited, resolved, nil
	}
	s.metrics.Webhook("card", "rejected")
	return ResultRejected, resolved, nil
}
