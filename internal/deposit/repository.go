package deposit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
)

// Transition moves a pending request to a terminal status. When Credit is set, the store
// books it in the same unit of work as the status change.
type Transition struct {
	Status         Status
	CreditedAmount int64
	Credit         *ledger.Posting
	Detail         Detail
	At             time.Time
}

// Store persists deposit requests. Transition is conditional on the request still being
// pending, so concurrent resolvers race safely and exactly one wins.
type Store interface {
	Create(ctx context.Context, req Request) (Request, error)
	CreateApproved(ctx context.Context, req Request, credit ledger.Posting) (Request, error)
	Get(ctx context.Context, id string) (Request, error)
	GetByToken(ctx context.Context, token string) (Request, error)
	Transition(ctx context.Context, id string, t Transition) (Request, error)
	UpdateDetail(ctx context.Context, id string, d Detail, at time.Time) error
	PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Request, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]Request, error)
}

type memoryStore struct {
	mu      sync.Mutex
	ledger  ledger.Store
	byID    map[string]Request
	byToken map[string]string
}

// NewMemoryStore keeps requests in memory and books credits on the given ledger.
func NewMemoryStore(led ledger.Store) Store {
	return &memoryStore{
		ledger:  led,
		byID:    make(map[string]Request),
		byToken: make(map[string]string),
	}
}

func (s *memoryStore) Create(_ context.Context, req Request) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byToken[req.Token]; ok {
		return Request{}, ErrDuplicateToken
	}
	s.byID[req.ID] = req
	s.byToken[req.Token] = req.ID
	return req, nil
}

func (s *memoryStore) CreateApproved(ctx context.Context, req Request, credit ledger.Posting) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byToken[req.Token]; ok {
		return Request{}, ErrDuplicateToken
	}
	if _, err := s.ledger.Apply(ctx, credit); err != nil {
		return Request{}, err
	}
	s.byID[req.ID] = req
	s.byToken[req.Token] = req.ID
	return req, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (s *memoryStore) GetByToken(_ context.Context, token string) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byToken[token]
	if !ok {
		return Request{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *memoryStore) Transition(ctx context.Context, id string, t Transition) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	if req.Terminal() {
		return req, ErrAlreadyTerminal
	}
	if t.Credit != nil {
		// A duplicate reference means the credit already landed; finish the transition.
		if _, err := s.ledger.Apply(ctx, *t.Credit); err != nil && !errors.Is(err, ledger.ErrDuplicateReference) {
			return Request{}, err
		}
	}
	at := t.At
	req.Status = t.Status
	req.CreditedAmount = t.CreditedAmount
	req.UpdatedAt = at
	req.ResolvedAt = &at
	if t.Detail != nil {
		req.Detail = t.Detail
	}
	s.byID[id] = req
	return req, nil
}

func (s *memoryStore) UpdateDetail(_ context.Context, id string, d Detail, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if req.Terminal() {
		return ErrAlreadyTerminal
	}
	req.Detail = d
	req.UpdatedAt = at
	s.byID[id] = req
	return nil
}

func (s *memoryStore) PendingBefore(_ context.Context, cutoff time.Time, limit int) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, req := range s.byID {
		if req.Status == StatusPending && req.CreatedAt.Before(cutoff) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) ListByAccount(_ context.Context, accountID string, limit int) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, req := range s.byID {
		if req.AccountID == accountID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
