package purchase

import (
	"context"
	"sync"
	"time"

	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
)

type memoryStore struct {
	mu     sync.Mutex
	ledger ledger.Store
	orders map[string]Order
}

// NewMemoryStore returns an in-memory order store booking postings on led.
func NewMemoryStore(led ledger.Store) Store {
	return &memoryStore{ledger: led, orders: make(map[string]Order)}
}

func (s *memoryStore) Complete(ctx context.Context, order Order, postings []ledger.Posting) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.orders[order.ID]; ok {
		return existing, ErrDuplicateOrder
	}
	if len(postings) > 0 {
		if _, err := s.ledger.Apply(ctx, postings...); err != nil {
			return Order{}, err
		}
	}
	s.orders[order.ID] = order
	return order, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

// SumCompleted sums prices of completed orders created in [from, to). A zero from has no
// lower bound.
func (s *memoryStore) SumCompleted(_ context.Context, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, o := range s.orders {
		if o.Status != StatusCompleted {
			continue
		}
		if !from.IsZero() && o.CreatedAt.Before(from) {
			continue
		}
		if !o.CreatedAt.Before(to) {
			continue
		}
		total += o.Price
	}
	return total, nil
}
