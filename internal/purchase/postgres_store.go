package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
)

// PostgresStore keeps orders next to the ledger so the debit, the commission and the order
// row commit in one transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres order store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderColumns = `id, account_id, item_ref, price, commission, status, created_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	if err := row.Scan(&o.ID, &o.AccountID, &o.ItemRef, &o.Price, &o.Commission, &o.Status, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

func (s *PostgresStore) Complete(ctx context.Context, order Order, postings []ledger.Posting) (Order, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO NOTHING`,
		order.ID, order.AccountID, order.ItemRef, order.Price, order.Commission, order.Status, order.CreatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, order.ID))
		if err != nil {
			return Order{}, err
		}
		return existing, ErrDuplicateOrder
	}

	if len(postings) > 0 {
		if _, err := ledger.ApplyTx(ctx, tx, postings...); err != nil {
			return Order{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Order, error) {
	return scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (s *PostgresStore) SumCompleted(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(price), 0)::BIGINT FROM orders
        WHERE status = $1 AND ($2::TIMESTAMPTZ IS NULL OR created_at >= $2) AND created_at < $3`,
		StatusCompleted, nullTime(from), to).Scan(&total)
	return total, err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
