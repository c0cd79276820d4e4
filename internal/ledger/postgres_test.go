package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Tung090505/Shop-game-sub000/internal/infra/pgtest"
	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
)

func TestPostgresStore_PostingsReconcile(t *testing.T) {
	pool := pgtest.NewPool(t)
	s := ledger.NewPostgresStore(pool)
	ctx := context.Background()

	ref, err := s.EnsureAccount(ctx, ledger.NewAccount{Handle: "ref"})
	if err != nil {
		t.Fatalf("ensure referrer: %v", err)
	}
	buyer, err := s.EnsureAccount(ctx, ledger.NewAccount{Handle: "buyer", ReferrerID: ref.ID})
	if err != nil {
		t.Fatalf("ensure buyer: %v", err)
	}
	if err := ledger.Seed(ctx, s, buyer.ID, 20_000); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := s.Apply(ctx,
		ledger.Posting{AccountID: buyer.ID, Kind: ledger.KindPurchase, Amount: -10_000, Reference: "order:1"},
		ledger.Posting{AccountID: ref.ID, Pocket: ledger.PocketCommission, Kind: ledger.KindCommission, Amount: 500, Reference: "order:1"},
	); err != nil {
		t.Fatalf("apply: %v", err)
	}

	_, err = s.Apply(ctx,
		ledger.Posting{AccountID: buyer.ID, Kind: ledger.KindPurchase, Amount: -10_000, Reference: "order:1"},
	)
	if !errors.Is(err, ledger.ErrDuplicateReference) {
		t.Fatalf("expected duplicate reference, got %v", err)
	}

	if _, err := s.Debit(ctx, ledger.Movement{AccountID: buyer.ID, Kind: ledger.KindDraw, Amount: 50_000}); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	for _, id := range []string{buyer.ID, ref.ID} {
		report, err := s.Reconcile(ctx, id)
		if err != nil {
			t.Fatalf("reconcile %s: %v", id, err)
		}
		if !report.Balanced() {
			t.Fatalf("unbalanced %s: %+v", id, report)
		}
	}

	b, _ := s.Account(ctx, buyer.ID)
	r, _ := s.Account(ctx, ref.ID)
	if b.WalletBalance != 10_000 || r.CommissionBalance != 500 {
		t.Fatalf("unexpected balances buyer=%d referrer commission=%d", b.WalletBalance, r.CommissionBalance)
	}
}

func TestPostgresStore_ConcurrentDebitsSerialize(t *testing.T) {
	pool := pgtest.NewPool(t)
	s := ledger.NewPostgresStore(pool)
	ctx := context.Background()

	a, err := s.EnsureAccount(ctx, ledger.NewAccount{Handle: "racer"})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := ledger.Seed(ctx, s, a.ID, 1_000); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Debit(ctx, ledger.Movement{AccountID: a.ID, Kind: ledger.KindPurchase, Amount: 300, Reference: fmt.Sprintf("p-%d", i)})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else if !errors.Is(err, ledger.ErrInsufficientFunds) {
				t.Errorf("debit %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if success != 3 {
		t.Fatalf("expected exactly 3 successful debits, got %d", success)
	}
	acct, _ := s.Account(ctx, a.ID)
	if acct.WalletBalance != 100 {
		t.Fatalf("expected 100 left, got %d", acct.WalletBalance)
	}
}
