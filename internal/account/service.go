// Package account exposes registration, balances and the entry log of wallet holders.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
	"github.com/Tung090505/Shop-game-sub000/internal/logging"
)

// ErrInvalidHandle means the handle cannot be typed into a bank memo.
var ErrInvalidHandle = errors.New("handle must be 3-32 letters, digits or underscores")

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

// Service wraps the ledger for account-facing operations.
type Service struct {
	ledger ledger.Store
	logger *slog.Logger
}

// NewService builds an account service.
func NewService(led ledger.Store, logger *slog.Logger) *Service {
	return &Service{ledger: led, logger: logging.Component(logger, "account")}
}

// RegisterInput captures registration data. Referrer is the handle of the referring
// account, if any.
type RegisterInput struct {
	ID       string
	Handle   string
	Referrer string
}

// Register creates an account. The referrer is fixed at registration.
func (s *Service) Register(ctx context.Context, input RegisterInput) (ledger.Account, error) {
	handle := strings.TrimSpace(input.Handle)
	if !handlePattern.MatchString(handle) {
		return ledger.Account{}, ErrInvalidHandle
	}
	var referrerID string
	if ref := strings.TrimSpace(input.Referrer); ref != "" {
		referrer, err := s.ledger.AccountByHandle(ctx, ref)
		if err != nil {
			return ledger.Account{}, fmt.Errorf("referrer %q: %w", ref, err)
		}
		referrerID = referrer.ID
	}
	acct, err := s.ledger.EnsureAccount(ctx, ledger.NewAccount{ID: input.ID, Handle: handle, ReferrerID: referrerID})
	if err != nil {
		return ledger.Account{}, err
	}
	s.logger.Info("account registered", slog.String("account_id", acct.ID), slog.String("handle", acct.Handle))
	return acct, nil
}

// Get returns an account with both balances.
func (s *Service) Get(ctx context.Context, id string) (ledger.Account, error) {
	return s.ledger.Account(ctx, id)
}

// Entries returns the newest entries of an account.
func (s *Service) Entries(ctx context.Context, id string, limit int) ([]ledger.Entry, error) {
	return s.ledger.Entries(ctx, id, limit)
}

// Reconcile reports whether stored balances match the entry log.
func (s *Service) Reconcile(ctx context.Context, id string) (ledger.ReconcileReport, error) {
	report, err := s.ledger.Reconcile(ctx, id)
	if err != nil {
		return ledger.ReconcileReport{}, err
	}
	if !report.Balanced() {
		s.logger.Error("ledger drift detected",
			slog.String("account_id", id),
			slog.Int64("wallet_balance", report.Wallet.Balance),
			slog.Int64("wallet_entries", report.Wallet.EntrySum),
			slog.Int64("commission_balance", report.Commission.Balance),
			slog.Int64("commission_entries", report.Commission.EntrySum),
		)
	}
	return report, nil
}

// WithdrawCommission moves commission into the wallet pocket. A zero amount moves the whole
// commission balance. Reference makes retries safe; one is generated when empty.
func (s *Service) WithdrawCommission(ctx context.Context, id string, amount int64, reference string) (ledger.Account, error) {
	if amount < 0 {
		return ledger.Account{}, fmt.Errorf("%w: amount must not be negative", ledger.ErrInvalidPosting)
	}
	if amount == 0 {
		acct, err := s.ledger.Account(ctx, id)
		if err != nil {
			return ledger.Account{}, err
		}
		if acct.CommissionBalance == 0 {
			return acct, nil
		}
		amount = acct.CommissionBalance
	}
	if reference == "" {
		reference = uuid.NewString()
	}
	reference = "withdraw:" + reference

	_, err := s.ledger.Apply(ctx,
		ledger.DebitOf(ledger.Movement{
			AccountID: id, Pocket: ledger.PocketCommission, Kind: ledger.KindWithdrawCommission,
			Amount: amount, Reference: reference, Description: "commission withdrawal",
		}),
		ledger.CreditOf(ledger.Movement{
			AccountID: id, Pocket: ledger.PocketWallet, Kind: ledger.KindWithdrawCommission,
			Amount: amount, Reference: reference, Description: "commission withdrawal",
		}),
	)
	if err != nil && !errors.Is(err, ledger.ErrDuplicateReference) {
		return ledger.Account{}, err
	}
	return s.ledger.Account(ctx, id)
}
