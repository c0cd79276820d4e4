package deposit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
)

const requestColumns = `id, account_id, amount, channel, token, detail, status, credited_amount, created_at, updated_at, resolved_at`

// PostgresStore keeps deposit requests in PostgreSQL. Credits are booked through
// ledger.ApplyTx inside the same transaction as the status change.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a deposit store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		r          Request
		channel    string
		status     string
		detail     []byte
		resolvedAt *time.Time
	)
	if err := row.Scan(&r.ID, &r.AccountID, &r.Amount, &channel, &r.Token, &detail, &status,
		&r.CreditedAmount, &r.CreatedAt, &r.UpdatedAt, &resolvedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	r.Channel = Channel(channel)
	r.Status = Status(status)
	d, err := decodeDetail(r.Channel, detail)
	if err != nil {
		return Request{}, fmt.Errorf("decode detail of %s: %w", r.ID, err)
	}
	r.Detail = d
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if resolvedAt != nil {
		t := resolvedAt.UTC()
		r.ResolvedAt = &t
	}
	return r, nil
}

func insertRequest(ctx context.Context, q interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}, req Request) error {
	detail, err := encodeDetail(req.Detail)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `INSERT INTO deposit_requests (`+requestColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		req.ID, req.AccountID, req.Amount, string(req.Channel), req.Token, detail, string(req.Status),
		req.CreditedAmount, req.CreatedAt, req.UpdatedAt, req.ResolvedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateToken
	}
	return err
}

func (s *PostgresStore) Create(ctx context.Context, req Request) (Request, error) {
	if err := insertRequest(ctx, s.db, req); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (s *PostgresStore) CreateApproved(ctx context.Context, req Request, credit ledger.Posting) (Request, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Request{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := insertRequest(ctx, tx, req); err != nil {
		return Request{}, err
	}
	if _, err := ledger.ApplyTx(ctx, tx, credit); err != nil {
		return Request{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Request, error) {
	return scanRequest(s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM deposit_requests WHERE id = $1`, id))
}

func (s *PostgresStore) GetByToken(ctx context.Context, token string) (Request, error) {
	return scanRequest(s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM deposit_requests WHERE token = $1`, token))
}

func (s *PostgresStore) Transition(ctx context.Context, id string, t Transition) (Request, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Request{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var detail []byte
	if t.Detail != nil {
		if detail, err = encodeDetail(t.Detail); err != nil {
			return Request{}, err
		}
	}

	req, err := scanRequest(tx.QueryRow(ctx, `UPDATE deposit_requests
        SET status = $2, credited_amount = $3, updated_at = $4, resolved_at = $4,
            detail = COALESCE($5::jsonb, detail)
        WHERE id = $1 AND status = 'pending'
        RETURNING `+requestColumns,
		id, string(t.Status), t.CreditedAmount, t.At, detail))
	if errors.Is(err, ErrNotFound) {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return Request{}, getErr
		}
		return current, ErrAlreadyTerminal
	}
	if err != nil {
		return Request{}, err
	}

	if t.Credit != nil {
		// Savepoint so an already-booked credit does not abort the status change.
		sp, err := tx.Begin(ctx)
		if err != nil {
			return Request{}, err
		}
		if _, err := ledger.ApplyTx(ctx, sp, *t.Credit); err != nil {
			_ = sp.Rollback(ctx)
			if !errors.Is(err, ledger.ErrDuplicateReference) {
				return Request{}, err
			}
		} else if err := sp.Commit(ctx); err != nil {
			return Request{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (s *PostgresStore) UpdateDetail(ctx context.Context, id string, d Detail, at time.Time) error {
	detail, err := encodeDetail(d)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `UPDATE deposit_requests SET detail = $2, updated_at = $3
        WHERE id = $1 AND status = 'pending'`, id, detail, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyTerminal
	}
	return nil
}

func (s *PostgresStore) PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = 500
	}
	return s.list(ctx, `SELECT `+requestColumns+` FROM deposit_requests
        WHERE status = 'pending' AND created_at < $1 ORDER BY created_at LIMIT $2`, cutoff, limit)
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.list(ctx, `SELECT `+requestColumns+` FROM deposit_requests
        WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2`, accountID, limit)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Request, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
