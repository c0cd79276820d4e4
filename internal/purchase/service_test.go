package purchase

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tung090505/Shop-game-sub000/internal/clock"
	"github.com/Tung090505/Shop-game-sub000/internal/commission"
	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
	"github.com/Tung090505/Shop-game-sub000/internal/notification"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]notification.Message
}

func (r *recordingNotifier) Notify(_ context.Context, accountID string, m notification.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = map[string][]notification.Message{}
	}
	r.sent[accountID] = append(r.sent[accountID], m)
	return nil
}

type fixture struct {
	led      ledger.Store
	svc      *Service
	notifier *recordingNotifier
	referrer ledger.Account
	buyer    ledger.Account
	loner    ledger.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	led := ledger.NewInMemory()
	referrer, err := led.EnsureAccount(ctx, ledger.NewAccount{Handle: "referrer"})
	require.NoError(t, err)
	buyer, err := led.EnsureAccount(ctx, ledger.NewAccount{Handle: "buyer", ReferrerID: referrer.ID})
	require.NoError(t, err)
	loner, err := led.EnsureAccount(ctx, ledger.NewAccount{Handle: "loner"})
	require.NoError(t, err)

	n := &recordingNotifier{}
	svc := NewService(NewMemoryStore(led), led, commission.NewCalculator(commission.DefaultRate),
		WithNotifier(n),
		WithClock(clock.Fixed{At: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}),
	)
	return &fixture{led: led, svc: svc, notifier: n, referrer: referrer, buyer: buyer, loner: loner}
}

func (f *fixture) account(t *testing.T, id string) ledger.Account {
	t.Helper()
	a, err := f.led.Account(context.Background(), id)
	require.NoError(t, err)
	return a
}

func TestPurchaseCreditsReferrerCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, ledger.Seed(ctx, f.led, f.buyer.ID, 50_000))

	receipt, err := f.svc.Purchase(ctx, Input{OrderID: "o-1", AccountID: f.buyer.ID, ItemRef: "acc-lienquan-77", Price: 10_000})
	require.NoError(t, err)
	assert.False(t, receipt.Duplicate)
	assert.Equal(t, int64(500), receipt.Order.Commission)

	assert.Equal(t, int64(40_000), f.account(t, f.buyer.ID).WalletBalance)
	ref := f.account(t, f.referrer.ID)
	assert.Equal(t, int64(500), ref.CommissionBalance)
	assert.Zero(t, ref.WalletBalance)
	require.Len(t, f.notifier.sent[f.referrer.ID], 1)
	assert.Equal(t, notification.KindCommissionEarned, f.notifier.sent[f.referrer.ID][0].Kind)

	entries, err := f.led.Entries(ctx, f.referrer.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.KindCommission, entries[0].Kind)
	assert.Equal(t, "order:o-1", entries[0].Reference)

	for _, id := range []string{f.buyer.ID, f.referrer.ID} {
		report, err := f.led.Reconcile(ctx, id)
		require.NoError(t, err)
		assert.True(t, report.Balanced())
	}
}

func TestPurchaseReplayIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, ledger.Seed(ctx, f.led, f.buyer.ID, 50_000))

	in := Input{OrderID: "o-2", AccountID: f.buyer.ID, ItemRef: "item", Price: 20_000}
	_, err := f.svc.Purchase(ctx, in)
	require.NoError(t, err)
	again, err := f.svc.Purchase(ctx, in)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	assert.Equal(t, int64(30_000), f.account(t, f.buyer.ID).WalletBalance)
	assert.Equal(t, int64(1_000), f.account(t, f.referrer.ID).CommissionBalance)

	_, err = f.svc.Purchase(ctx, Input{OrderID: "o-2", AccountID: f.loner.ID, ItemRef: "item", Price: 1})
	assert.ErrorIs(t, err, ErrInvalidPurchase)
}

func TestPurchaseWithoutCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, ledger.Seed(ctx, f.led, f.loner.ID, 10_000))
	require.NoError(t, ledger.Seed(ctx, f.led, f.buyer.ID, 10_000))

	receipt, err := f.svc.Purchase(ctx, Input{AccountID: f.loner.ID, ItemRef: "item", Price: 10_000})
	require.NoError(t, err)
	assert.Zero(t, receipt.Order.Commission)
	assert.Zero(t, f.account(t, f.loner.ID).WalletBalance)

	receipt, err = f.svc.Purchase(ctx, Input{AccountID: f.buyer.ID, ItemRef: "free-gift", Price: 0})
	require.NoError(t, err)
	assert.Zero(t, receipt.Order.Commission)

	receipt, err = f.svc.Purchase(ctx, Input{AccountID: f.buyer.ID, ItemRef: "cheap", Price: 19})
	require.NoError(t, err)
	assert.Zero(t, receipt.Order.Commission)

	assert.Zero(t, f.account(t, f.referrer.ID).CommissionBalance)
	entries, err := f.led.Entries(ctx, f.referrer.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.notifier.sent[f.referrer.ID])
}

func TestPurchaseInsufficientFundsLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, ledger.Seed(ctx, f.led, f.buyer.ID, 9_999))

	_, err := f.svc.Purchase(ctx, Input{OrderID: "o-poor", AccountID: f.buyer.ID, ItemRef: "item", Price: 10_000})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	assert.Equal(t, int64(9_999), f.account(t, f.buyer.ID).WalletBalance)
	assert.Zero(t, f.account(t, f.referrer.ID).CommissionBalance)
	_, err = f.svc.Get(ctx, "o-poor")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPurchaseHandler(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, ledger.Seed(context.Background(), f.led, f.buyer.ID, 5_000))
	app := fiber.New()
	h := NewHandler(f.svc)
	app.Post("/purchases", h.Create)

	post := func(body string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/purchases", strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, 201, post(`{"order_id":"h-1","account_id":"`+f.buyer.ID+`","item_ref":"x","price":4000}`))
	assert.Equal(t, 200, post(`{"order_id":"h-1","account_id":"`+f.buyer.ID+`","item_ref":"x","price":4000}`))
	assert.Equal(t, 400, post(`{"account_id":"`+f.buyer.ID+`","item_ref":"x","price":4000}`))
	assert.Equal(t, 400, post(`{"account_id":"`+f.buyer.ID+`","price":10}`))
	assert.Equal(t, 404, post(`{"account_id":"ghost","item_ref":"x","price":10}`))
}
