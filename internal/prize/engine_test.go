package prize

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
)

func wheel() []Entry {
	return []Entry{
		{ID: "a", Name: "1000 xu", Kind: KindBalance, Value: 1000, Weight: 0.5, Position: 1},
		{ID: "b", Name: "500 xu", Kind: KindBalance, Value: 500, Weight: 0.3, Position: 2},
		{ID: "c", Name: "Better luck", Kind: KindEmpty, Weight: 0.2, Position: 3},
	}
}

func fixed(v float64) Sampler { return func() float64 { return v } }

func newAccount(t *testing.T, led ledger.Store, balance int64) ledger.Account {
	t.Helper()
	ctx := context.Background()
	acct, err := led.EnsureAccount(ctx, ledger.NewAccount{Handle: "spinner"})
	require.NoError(t, err)
	if balance > 0 {
		require.NoError(t, ledger.Seed(ctx, led, acct.ID, balance))
	}
	return acct
}

func TestSelect(t *testing.T) {
	entries := wheel()
	cases := map[float64]string{
		0:     "a",
		0.4:   "a",
		0.5:   "b",
		0.79:  "b",
		0.8:   "c",
		0.999: "c",
	}
	for sample, want := range cases {
		assert.Equal(t, want, Select(entries, sample).ID, "sample %v", sample)
	}

	short := []Entry{{ID: "x", Weight: 0.1}, {ID: "y", Weight: 0.2}}
	assert.Equal(t, "y", Select(short, 0.95).ID)
	zero := []Entry{{ID: "x"}, {ID: "y"}}
	assert.Equal(t, "y", Select(zero, 0).ID)
	heavy := []Entry{{ID: "x", Weight: 3}, {ID: "y", Weight: 7}}
	assert.Equal(t, "x", Select(heavy, 0.99).ID)
}

func TestDrawChargesFeeAndCreditsPrize(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewInMemory()
	acct := newAccount(t, led, 5_000)
	engine := NewEngine(NewMemoryTable(wheel()...), led, 100, WithSampler(fixed(0.4)))

	res, err := engine.Draw(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", res.Prize.ID)
	assert.Equal(t, int64(1000), res.Credited)
	assert.Equal(t, int64(5_900), res.Balance)

	a, err := led.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5_900), a.WalletBalance)

	entries, err := led.Entries(ctx, acct.ID, 0)
	require.NoError(t, err)
	var draws []int64
	for _, e := range entries {
		if e.Kind == ledger.KindDraw {
			draws = append(draws, e.Amount)
		}
	}
	assert.ElementsMatch(t, []int64{-100, 1000}, draws)
	report, err := led.Reconcile(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, report.Balanced())
}

func TestDrawEmptyPrizeOnlyChargesFee(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewInMemory()
	acct := newAccount(t, led, 300)
	engine := NewEngine(NewMemoryTable(wheel()...), led, 100, WithSampler(fixed(0.9)))

	res, err := engine.Draw(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, KindEmpty, res.Prize.Kind)
	assert.Zero(t, res.Credited)
	assert.Equal(t, int64(200), res.Balance)
}

func TestDrawRefusedBelowFee(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewInMemory()
	acct := newAccount(t, led, 99)
	engine := NewEngine(NewMemoryTable(wheel()...), led, 100, WithSampler(func() float64 {
		t.Fatal("sampled without a charged fee")
		return 0
	}))

	_, err := engine.Draw(ctx, acct.ID)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	entries, err := led.Entries(ctx, acct.ID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	a, err := led.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(99), a.WalletBalance)
}

func TestDrawEmptyTableChargesNothing(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewInMemory()
	acct := newAccount(t, led, 1_000)
	engine := NewEngine(NewMemoryTable(), led, 100)

	_, err := engine.Draw(ctx, acct.ID)
	assert.ErrorIs(t, err, ErrEmptyPrizeTable)
	a, err := led.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), a.WalletBalance)
}

type failingCredit struct {
	ledger.Store
}

func (failingCredit) Credit(context.Context, ledger.Movement) (ledger.Entry, error) {
	return ledger.Entry{}, errors.New("ledger unavailable")
}

func TestDrawPrizeCreditFailureKeepsFee(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewInMemory()
	acct := newAccount(t, led, 1_000)
	engine := NewEngine(NewMemoryTable(wheel()...), failingCredit{led}, 100, WithSampler(fixed(0.1)))

	_, err := engine.Draw(ctx, acct.ID)
	require.Error(t, err)
	a, err := led.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), a.WalletBalance)
}

func TestSaveEntryValidates(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(NewMemoryTable(), ledger.NewInMemory(), 0)

	_, err := engine.SaveEntry(ctx, Entry{Name: "bad", Kind: "jackpot", Weight: 1})
	assert.ErrorIs(t, err, ErrInvalidPrize)
	_, err = engine.SaveEntry(ctx, Entry{Name: "neg", Kind: KindEmpty, Weight: -1})
	assert.ErrorIs(t, err, ErrInvalidPrize)
	_, err = engine.SaveEntry(ctx, Entry{Name: "free money", Kind: KindBalance, Weight: 1})
	assert.ErrorIs(t, err, ErrInvalidPrize)

	saved, err := engine.SaveEntry(ctx, Entry{Name: " Skin ", Kind: "ITEM", Weight: 2, Position: 4})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "Skin", saved.Name)
	assert.Equal(t, KindItem, saved.Kind)

	list, err := engine.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, engine.DeleteEntry(ctx, saved.ID))
	assert.ErrorIs(t, engine.DeleteEntry(ctx, saved.ID), ErrPrizeNotFound)
}

func TestHandlerRoutes(t *testing.T) {
	led := ledger.NewInMemory()
	acct := newAccount(t, led, 150)
	engine := NewEngine(NewMemoryTable(wheel()...), led, 100, WithSampler(fixed(0.85)))
	h := NewHandler(engine)
	app := fiber.New()
	app.Post("/draws", h.Draw)
	app.Get("/prizes", h.List)
	app.Put("/prizes/:id", h.Put)
	app.Delete("/prizes/:id", h.Delete)

	call := func(method, target, body string) (int, string) {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		raw, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(raw)
	}

	status, _ := call(fiber.MethodPost, "/draws", `{"account_id":"`+acct.ID+`"}`)
	assert.Equal(t, 201, status)
	status, _ = call(fiber.MethodPost, "/draws", `{"account_id":"`+acct.ID+`"}`)
	assert.Equal(t, 400, status)

	status, body := call(fiber.MethodPut, "/prizes/d", `{"name":"Rare skin","kind":"item","weight":0.05,"position":9}`)
	assert.Equal(t, 200, status)
	assert.Contains(t, body, `"id":"d"`)
	status, _ = call(fiber.MethodPut, "/prizes/e", `{"name":"x","kind":"jackpot","weight":1}`)
	assert.Equal(t, 400, status)

	status, body = call(fiber.MethodGet, "/prizes", "")
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "Rare skin")

	status, _ = call(fiber.MethodDelete, "/prizes/d", "")
	assert.Equal(t, 204, status)
	status, _ = call(fiber.MethodDelete, "/prizes/d", "")
	assert.Equal(t, 404, status)
}
