package purchase

import (
	"context"
	"errors"
	"time"

	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
)

var (
	// ErrInvalidPurchase covers negative prices and missing item references.
	ErrInvalidPurchase = errors.New("invalid purchase")
	// ErrDuplicateOrder is returned by stores when the order id was already recorded.
	ErrDuplicateOrder = errors.New("order already recorded")
	// ErrOrderNotFound indicates an unknown order id.
	ErrOrderNotFound = errors.New("order not found")
)

// StatusCompleted marks an order whose debit has been booked.
const StatusCompleted = "completed"

// Order is a completed purchase of a catalog item.
type Order struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	ItemRef    string    `json:"item_ref"`
	Price      int64     `json:"price"`
	Commission int64     `json:"commission"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// LedgerReference is the reference shared by every posting an order books.
func (o Order) LedgerReference() string { return "order:" + o.ID }

// Store persists orders. Complete books the postings and records the order atomically; when
// the order id already exists it returns the stored order with ErrDuplicateOrder and books
// nothing.
type Store interface {
	Complete(ctx context.Context, order Order, postings []ledger.Posting) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	SumCompleted(ctx context.Context, from, to time.Time) (int64, error)
}
