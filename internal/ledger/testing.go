package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Seed is a test helper that funds a wallet through a regular deposit posting, so seeded
// balances still reconcile against the entry log.
func Seed(ctx context.Context, s Store, accountID string, amount int64) error {
	_, err := s.Credit(ctx, Movement{
		AccountID:   accountID,
		Pocket:      PocketWallet,
		Kind:        KindDeposit,
		Amount:      amount,
		Reference:   "seed:" + uuid.NewString(),
		Description: "test seed",
	})
	return err
}
