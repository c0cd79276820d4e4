package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrInsufficientFunds occurs when a posting would take a balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateReference indicates the reference was already booked against the same
	// account pocket, so the posting batch was treated as already applied.
	ErrDuplicateReference = errors.New("duplicate ledger reference")

	// ErrAccountNotFound is returned when a posting or lookup names an unknown account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrHandleTaken is returned when registering a handle owned by another account.
	ErrHandleTaken = errors.New("account handle already taken")

	// ErrInvalidPosting covers zero amounts, unknown pockets and similar caller mistakes.
	ErrInvalidPosting = errors.New("invalid posting")
)

// Pocket selects which balance of an account a posting moves.
type Pocket string

const (
	PocketWallet     Pocket = "wallet"
	PocketCommission Pocket = "commission"
)

// Kind classifies ledger entries.
type Kind string

const (
	KindDeposit            Kind = "deposit"
	KindPurchase           Kind = "purchase"
	KindDraw               Kind = "draw"
	KindCommission         Kind = "commission"
	KindWithdrawCommission Kind = "withdraw-commission"
)

// Account is a wallet holder with its two balances.
type Account struct {
	ID                string
	Handle            string
	ReferrerID        string
	WalletBalance     int64
	CommissionBalance int64
	CreatedAt         time.Time
}

// Balance returns the balance held in the given pocket.
func (a Account) Balance(p Pocket) int64 {
	if p == PocketCommission {
		return a.CommissionBalance
	}
	return a.WalletBalance
}

func (a *Account) setBalance(p Pocket, v int64) {
	if p == PocketCommission {
		a.CommissionBalance = v
		return
	}
	a.WalletBalance = v
}

// NewAccount captures registration data for EnsureAccount.
type NewAccount struct {
	ID         string
	Handle     string
	ReferrerID string
}

// Entry is one immutable line of an account's transaction log.
type Entry struct {
	ID           string
	AccountID    string
	Pocket       Pocket
	Kind         Kind
	Amount       int64
	BalanceAfter int64
	Reference    string
	Description  string
	CreatedAt    time.Time
}

// Movement describes an unsigned credit or debit request.
type Movement struct {
	AccountID   string
	Pocket      Pocket
	Kind        Kind
	Amount      int64
	Reference   string
	Description string
}

// Posting is a signed balance change; Apply books a batch of them atomically.
type Posting struct {
	AccountID   string
	Pocket      Pocket
	Kind        Kind
	Amount      int64
	Reference   string
	Description string
}

// CreditOf converts a movement into a positive posting.
func CreditOf(m Movement) Posting {
	return Posting{AccountID: m.AccountID, Pocket: m.Pocket, Kind: m.Kind, Amount: m.Amount, Reference: m.Reference, Description: m.Description}
}

// DebitOf converts a movement into a negative posting.
func DebitOf(m Movement) Posting {
	return Posting{AccountID: m.AccountID, Pocket: m.Pocket, Kind: m.Kind, Amount: -m.Amount, Reference: m.Reference, Description: m.Description}
}

// PocketReport compares a stored balance with the sum of its entries.
type PocketReport struct {
	Balance  int64
	EntrySum int64
}

// Balanced reports whether the stored balance equals the entry sum.
func (r PocketReport) Balanced() bool { return r.Balance == r.EntrySum }

// ReconcileReport is the result of the standing per-account reconciliation check.
type ReconcileReport struct {
	AccountID  string
	Wallet     PocketReport
	Commission PocketReport
}

// Balanced reports whether both pockets reconcile.
func (r ReconcileReport) Balanced() bool { return r.Wallet.Balanced() && r.Commission.Balanced() }

// Store is the only component permitted to mutate balances. Implementations serialize
// postings per account so concurrent callers never lose updates.
type Store interface {
	EnsureAccount(ctx context.Context, input NewAccount) (Account, error)
	Account(ctx context.Context, id string) (Account, error)
	AccountByHandle(ctx context.Context, handle string) (Account, error)
	Credit(ctx context.Context, m Movement) (Entry, error)
	Debit(ctx context.Context, m Movement) (Entry, error)
	Apply(ctx context.Context, postings ...Posting) ([]Entry, error)
	Entries(ctx context.Context, accountID string, limit int) ([]Entry, error)
	Reconcile(ctx context.Context, accountID string) (ReconcileReport, error)
}

func normalize(postings []Posting) ([]Posting, error) {
	if len(postings) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidPosting)
	}
	out := make([]Posting, len(postings))
	for i, p := range postings {
		if p.AccountID == "" {
			return nil, fmt.Errorf("%w: account id is required", ErrInvalidPosting)
		}
		if p.Amount == 0 {
			return nil, fmt.Errorf("%w: amount must be non-zero", ErrInvalidPosting)
		}
		if p.Pocket == "" {
			p.Pocket = PocketWallet
		}
		if p.Pocket != PocketWallet && p.Pocket != PocketCommission {
			return nil, fmt.Errorf("%w: unknown pocket %q", ErrInvalidPosting, p.Pocket)
		}
		if p.Kind == "" {
			return nil, fmt.Errorf("%w: kind is required", ErrInvalidPosting)
		}
		out[i] = p
	}
	return out, nil
}

func validateMovement(m Movement) error {
	if m.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPosting)
	}
	return nil
}

// lockOrder returns the distinct account ids of a batch in ascending order. Locks are always
// taken in this order to prevent deadlocks between overlapping batches.
func lockOrder(postings []Posting) []string {
	seen := make(map[string]struct{}, len(postings))
	ids := make([]string, 0, len(postings))
	for _, p := range postings {
		if _, ok := seen[p.AccountID]; ok {
			continue
		}
		seen[p.AccountID] = struct{}{}
		ids = append(ids, p.AccountID)
	}
	sort.Strings(ids)
	return ids
}

func refKey(accountID string, pocket Pocket, reference string) string {
	return accountID + "|" + string(pocket) + "|" + reference
}
