package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	handles  map[string]string
	entries  map[string][]Entry
	refs     map[string]struct{}

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	now func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory ledger store useful for tests and
// development runs without Postgres.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts: make(map[string]Account),
		handles:  make(map[string]string),
		entries:  make(map[string][]Entry),
		refs:     make(map[string]struct{}),
		locks:    make(map[string]*sync.Mutex),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *inMemoryStore) accountLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	return m
}

func (s *inMemoryStore) lockAccounts(ids []string) func() {
	held := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		m := s.accountLock(id)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (s *inMemoryStore) EnsureAccount(_ context.Context, input NewAccount) (Account, error) {
	handle := strings.ToLower(strings.TrimSpace(input.Handle))
	if handle == "" {
		return Account{}, fmt.Errorf("%w: handle is required", ErrInvalidPosting)
	}
	if input.ID == "" {
		input.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.accounts[input.ID]; ok {
		return existing, nil
	}
	if owner, ok := s.handles[handle]; ok && owner != input.ID {
		return Account{}, ErrHandleTaken
	}
	if input.ReferrerID != "" {
		if input.ReferrerID == input.ID {
			return Account{}, fmt.Errorf("%w: account cannot refer itself", ErrInvalidPosting)
		}
		if _, ok := s.accounts[input.ReferrerID]; !ok {
			return Account{}, fmt.Errorf("referrer %s: %w", input.ReferrerID, ErrAccountNotFound)
		}
	}

	acct := Account{ID: input.ID, Handle: handle, ReferrerID: input.ReferrerID, CreatedAt: s.now()}
	s.accounts[acct.ID] = acct
	s.handles[handle] = acct.ID
	return acct, nil
}

func (s *inMemoryStore) Account(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

func (s *inMemoryStore) AccountByHandle(_ context.Context, handle string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.handles[strings.ToLower(strings.TrimSpace(handle))]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return s.accounts[id], nil
}

func (s *inMemoryStore) Credit(ctx context.Context, m Movement) (Entry, error) {
	if err := validateMovement(m); err != nil {
		return Entry{}, err
	}
	entries, err := s.Apply(ctx, CreditOf(m))
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

func (s *inMemoryStore) Debit(ctx context.Context, m Movement) (Entry, error) {
	if err := validateMovement(m); err != nil {
		return Entry{}, err
	}
	entries, err := s.Apply(ctx, DebitOf(m))
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

func (s *inMemoryStore) Apply(_ context.Context, postings ...Posting) ([]Entry, error) {
	postings, err := normalize(postings)
	if err != nil {
		return nil, err
	}

	unlock := s.lockAccounts(lockOrder(postings))
	defer unlock()

	// Balances of the locked accounts cannot change underneath us; the read lock only
	// protects the maps themselves.
	s.mu.RLock()
	working := make(map[string]Account, len(postings))
	for _, p := range postings {
		if _, ok := working[p.AccountID]; ok {
			continue
		}
		acct, ok := s.accounts[p.AccountID]
		if !ok {
			s.mu.RUnlock()
			return nil, fmt.Errorf("account %s: %w", p.AccountID, ErrAccountNotFound)
		}
		working[p.AccountID] = acct
	}
	for _, p := range postings {
		if p.Reference == "" {
			continue
		}
		if _, dup := s.refs[refKey(p.AccountID, p.Pocket, p.Reference)]; dup {
			s.mu.RUnlock()
			return nil, ErrDuplicateReference
		}
	}
	s.mu.RUnlock()

	now := s.now()
	entries := make([]Entry, 0, len(postings))
	for _, p := range postings {
		acct := working[p.AccountID]
		next := acct.Balance(p.Pocket) + p.Amount
		if next < 0 {
			return nil, ErrInsufficientFunds
		}
		acct.setBalance(p.Pocket, next)
		working[p.AccountID] = acct
		entries = append(entries, Entry{
			ID:           uuid.NewString(),
			AccountID:    p.AccountID,
			Pocket:       p.Pocket,
			Kind:         p.Kind,
			Amount:       p.Amount,
			BalanceAfter: next,
			Reference:    p.Reference,
			Description:  p.Description,
			CreatedAt:    now,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, acct := range working {
		s.accounts[id] = acct
	}
	for _, e := range entries {
		s.entries[e.AccountID] = append(s.entries[e.AccountID], e)
		if e.Reference != "" {
			s.refs[refKey(e.AccountID, e.Pocket, e.Reference)] = struct{}{}
		}
	}
	return entries, nil
}

func (s *inMemoryStore) Entries(_ context.Context, accountID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return nil, ErrAccountNotFound
	}
	all := s.entries[accountID]
	out := make([]Entry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *inMemoryStore) Reconcile(_ context.Context, accountID string) (ReconcileReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return ReconcileReport{}, ErrAccountNotFound
	}
	report := ReconcileReport{
		AccountID:  accountID,
		Wallet:     PocketReport{Balance: acct.WalletBalance},
		Commission: PocketReport{Balance: acct.CommissionBalance},
	}
	for _, e := range s.entries[accountID] {
		if e.Pocket == PocketCommission {
			report.Commission.EntrySum += e.Amount
		} else {
			report.Wallet.EntrySum += e.Amount
		}
	}
	return report, nil
}
