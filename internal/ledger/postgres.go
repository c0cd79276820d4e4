package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresStore persists accounts and their entry log in PostgreSQL. Every posting batch runs
// in one transaction holding row locks on the touched accounts.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureAccount inserts the account if absent. An existing account is returned unchanged; the
// referrer is never rewritten.
func (s *PostgresStore) EnsureAccount(ctx context.Context, input NewAccount) (Account, error) {
	handle := strings.ToLower(strings.TrimSpace(input.Handle))
	if handle == "" {
		return Account{}, fmt.Errorf("%w: handle is required", ErrInvalidPosting)
	}
	if input.ID == "" {
		input.ID = uuid.NewString()
	}
	if input.ReferrerID != "" {
		if input.ReferrerID == input.ID {
			return Account{}, fmt.Errorf("%w: account cannot refer itself", ErrInvalidPosting)
		}
		if _, err := s.Account(ctx, input.ReferrerID); err != nil {
			return Account{}, fmt.Errorf("referrer %s: %w", input.ReferrerID, err)
		}
	}

	_, err := s.db.Exec(ctx, `INSERT INTO accounts (id, handle, referrer_id, created_at)
        VALUES ($1, $2, NULLIF($3, ''), $4)
        ON CONFLICT (id) DO NOTHING`, input.ID, handle, input.ReferrerID, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Account{}, ErrHandleTaken
		}
		return Account{}, err
	}
	return s.Account(ctx, input.ID)
}

const accountColumns = `id, handle, COALESCE(referrer_id, ''), wallet_balance, commission_balance, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Handle, &a.ReferrerID, &a.WalletBalance, &a.CommissionBalance, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// Account fetches an account by id.
func (s *PostgresStore) Account(ctx context.Context, id string) (Account, error) {
	return scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// AccountByHandle fetches an account by its lower-cased handle.
func (s *PostgresStore) AccountByHandle(ctx context.Context, handle string) (Account, error) {
	return scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE handle = $1`,
		strings.ToLower(strings.TrimSpace(handle))))
}

// Credit books one positive posting.
func (s *PostgresStore) Credit(ctx context.Context, m Movement) (Entry, error) {
	if err := validateMovement(m); err != nil {
		return Entry{}, err
	}
	entries, err := s.Apply(ctx, CreditOf(m))
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

// Debit books one negative posting, refusing to overdraw.
func (s *PostgresStore) Debit(ctx context.Context, m Movement) (Entry, error) {
	if err := validateMovement(m); err != nil {
		return Entry{}, err
	}
	entries, err := s.Apply(ctx, DebitOf(m))
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

// Apply books all postings in a single transaction.
func (s *PostgresStore) Apply(ctx context.Context, postings ...Posting) ([]Entry, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	entries, err := ApplyTx(ctx, tx, postings...)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entries, nil
}

// ApplyTx books postings inside a caller-owned transaction so other stores (deposit requests,
// orders) can commit their own state change together with the balance change.
func ApplyTx(ctx context.Context, tx pgx.Tx, postings ...Posting) ([]Entry, error) {
	postings, err := normalize(postings)
	if err != nil {
		return nil, err
	}

	working := make(map[string]Account, len(postings))
	for _, id := range lockOrder(postings) {
		acct, err := scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", id, err)
		}
		working[id] = acct
	}

	now := time.Now().UTC()
	entries := make([]Entry, 0, len(postings))
	for _, p := range postings {
		acct := working[p.AccountID]
		next := acct.Balance(p.Pocket) + p.Amount
		if next < 0 {
			return nil, ErrInsufficientFunds
		}
		acct.setBalance(p.Pocket, next)
		working[p.AccountID] = acct

		e := Entry{
			ID:           uuid.NewString(),
			AccountID:    p.AccountID,
			Pocket:       p.Pocket,
			Kind:         p.Kind,
			Amount:       p.Amount,
			BalanceAfter: next,
			Reference:    p.Reference,
			Description:  p.Description,
			CreatedAt:    now,
		}
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries
            (id, account_id, pocket, kind, amount, balance_after, reference, description, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`,
			e.ID, e.AccountID, string(e.Pocket), string(e.Kind), e.Amount, e.BalanceAfter, e.Reference, e.Description, e.CreatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return nil, ErrDuplicateReference
			}
			return nil, err
		}
		entries = append(entries, e)
	}

	for id, acct := range working {
		if _, err := tx.Exec(ctx, `UPDATE accounts SET wallet_balance = $2, commission_balance = $3 WHERE id = $1`,
			id, acct.WalletBalance, acct.CommissionBalance); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Entries lists the newest entries first.
func (s *PostgresStore) Entries(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	if _, err := s.Account(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.Query(ctx, `SELECT id, account_id, pocket, kind, amount, balance_after,
        COALESCE(reference, ''), description, created_at
        FROM ledger_entries WHERE account_id = $1
        ORDER BY created_at DESC, id DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			pocket string
			kind   string
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &pocket, &kind, &e.Amount, &e.BalanceAfter, &e.Reference, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Pocket = Pocket(pocket)
		e.Kind = Kind(kind)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Reconcile compares stored balances against the entry sums.
func (s *PostgresStore) Reconcile(ctx context.Context, accountID string) (ReconcileReport, error) {
	acct, err := s.Account(ctx, accountID)
	if err != nil {
		return ReconcileReport{}, err
	}
	report := ReconcileReport{
		AccountID:  accountID,
		Wallet:     PocketReport{Balance: acct.WalletBalance},
		Commission: PocketReport{Balance: acct.CommissionBalance},
	}

	rows, err := s.db.Query(ctx, `SELECT pocket, COALESCE(SUM(amount), 0)
        FROM ledger_entries WHERE account_id = $1 GROUP BY pocket`, accountID)
	if err != nil {
		return ReconcileReport{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			pocket string
			sum    int64
		)
		if err := rows.Scan(&pocket, &sum); err != nil {
			return ReconcileReport{}, err
		}
		if Pocket(pocket) == PocketCommission {
			report.Commission.EntrySum = sum
		} else {
			report.Wallet.EntrySum = sum
		}
	}
	return report, rows.Err()
}
