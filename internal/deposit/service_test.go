package deposit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tung090505/Shop-game-sub000/internal/cardgateway"
	"github.com/Tung090505/Shop-game-sub000/internal/ledger"
	"github.com/Tung090505/Shop-game-sub000/internal/notification"
)

type stubCharger struct {
	result cardgateway.Result
	got    []cardgateway.Charge
}

func (s *stubCharger) Submit(_ context.Context, c cardgateway.Charge) cardgateway.Result {
	s.got = append(s.got, c)
	return s.result
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (r *recordingNotifier) Notify(_ context.Context, _ string, m notification.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return nil
}

type fixture struct {
	led      ledger.Store
	svc      *Service
	clock    *manualClock
	charger  *stubCharger
	notifier *recordingNotifier
	account  ledger.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	led := ledger.NewInMemory()
	acct, err := led.EnsureAccount(context.Background(), ledger.NewAccount{Handle: "player1"})
	require.NoError(t, err)

	f := &fixture{
		led:      led,
		clock:    &manualClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		charger:  &stubCharger{},
		notifier: &recordingNotifier{},
		account:  acct,
	}
	f.svc = NewService(NewMemoryStore(led), led,
		WithCharger(f.charger),
		WithNotifier(f.notifier),
		WithClock(f.clock),
		WithPINHashCost(bcrypt.MinCost),
	)
	return f
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	acct, err := f.led.Account(context.Background(), f.account.ID)
	require.NoError(t, err)
	return acct.WalletBalance
}

func (f *fixture) openBank(t *testing.T, token string, amount int64) Request {
	t.Helper()
	req, err := f.svc.Open(context.Background(), OpenInput{
		AccountID: f.account.ID, Amount: amount, Channel: ChannelBank, Token: token,
		Detail: BankDetail{Reference: "FT123", Memo: "SHOPGAME player1"},
	})
	require.NoError(t, err)
	return req
}

func TestOpenRejectsDuplicateToken(t *testing.T) {
	f := newFixture(t)
	first := f.openBank(t, "tok-1", 100_000)

	_, err := f.svc.Open(context.Background(), OpenInput{AccountID: f.account.ID, Amount: 5, Channel: ChannelBank, Token: "tok-1"})
	require.ErrorIs(t, err, ErrDuplicateToken)

	stored, err := f.svc.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), stored.Amount)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestOpenValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Open(ctx, OpenInput{AccountID: f.account.ID, Amount: 0, Channel: ChannelBank, Token: "a"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.Open(ctx, OpenInput{AccountID: f.account.ID, Amount: 1, Channel: "crypto", Token: "b"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.Open(ctx, OpenInput{AccountID: f.account.ID, Amount: 1, Channel: ChannelBank, Token: "c", Detail: CardDetail{}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.Open(ctx, OpenInput{AccountID: "ghost", Amount: 1, Channel: ChannelBank, Token: "d"})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestResolveApprovesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.openBank(t, "tok-2", 100_000)

	approved, err := f.svc.Resolve(ctx, req.ID, Approved("bank webhook"))
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, int64(100_000), approved.CreditedAmount)
	require.NotNil(t, approved.ResolvedAt)
	assert.Equal(t, int64(100_000), f.balance(t))

	_, err = f.svc.Resolve(ctx, req.ID, Approved("replay"))
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	_, err = f.svc.Resolve(ctx, req.ID, Rejected("late sweep"))
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	assert.Equal(t, int64(100_000), f.balance(t))

	entries, err := f.led.Entries(ctx, f.account.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, req.LedgerReference(), entries[0].Reference)
	assert.Equal(t, ledger.KindDeposit, entries[0].Kind)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notification.KindDepositApproved, f.notifier.sent[0].Kind)
}

func TestRejectedIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.openBank(t, "tok-3", 20_000)

	rejected, err := f.svc.Resolve(ctx, req.ID, Rejected("expired"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)

	_, err = f.svc.Resolve(ctx, req.ID, Approved("late webhook"))
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	assert.Zero(t, f.balance(t))
}

func TestResolveUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Resolve(context.Background(), "missing", Approved(""))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitCardImmediateSuccess(t *testing.T) {
	f := newFixture(t)
	f.charger.result = cardgateway.Result{Outcome: cardgateway.ImmediateSuccess, PartnerStatus: 1, Value: 50_000}

	req, res, err := f.svc.SubmitCard(context.Background(), CardInput{
		AccountID: f.account.ID, Provider: "viettel", Serial: "1000123", PIN: "998877665544", FaceValue: 50_000,
	})
	require.NoError(t, err)
	assert.Equal(t, cardgateway.ImmediateSuccess, res.Outcome)
	assert.Equal(t, StatusApproved, req.Status)
	assert.Equal(t, int64(40_000), req.CreditedAmount)
	assert.Equal(t, int64(40_000), f.balance(t))

	require.Len(t, f.charger.got, 1)
	assert.Equal(t, req.ID, f.charger.got[0].RequestID)
	assert.Equal(t, "VIETTEL", f.charger.got[0].Provider)

	card, ok := req.Card()
	require.True(t, ok)
	assert.Equal(t, "44", card.PINHint)
	assert.NotContains(t, card.PINHash, "998877665544")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(card.PINHash), []byte("998877665544")))
	assert.Equal(t, 1, card.LastStatus)
	assert.Equal(t, int64(50_000), card.ReportedValue)
}

func TestSubmitCardPayoutFloors(t *testing.T) {
	f := newFixture(t)
	f.charger.result = cardgateway.Result{Outcome: cardgateway.ImmediateSuccess, PartnerStatus: 1}

	req, _, err := f.svc.SubmitCard(context.Background(), CardInput{
		AccountID: f.account.ID, Provider: "vina", Serial: "s", PIN: "p1", FaceValue: 10_001,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8_000), req.CreditedAmount)
}

func TestSubmitCardImmediateFailure(t *testing.T) {
	f := newFixture(t)
	f.charger.result = cardgateway.Result{Outcome: cardgateway.ImmediateFailure, PartnerStatus: 3, Message: "card used"}

	req, _, err := f.svc.SubmitCard(context.Background(), CardInput{
		AccountID: f.account.ID, Provider: "mobi", Serial: "s", PIN: "1234", FaceValue: 20_000,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, req.Status)
	assert.Zero(t, f.balance(t))
}

func TestSubmitCardPartnerUnavailableStaysPending(t *testing.T) {
	f := newFixture(t)
	f.charger.result = cardgateway.Result{
		Outcome: cardgateway.PendingPartnerReview,
		Err:     errors.Join(cardgateway.ErrPartnerUnavailable, errors.New("timeout")),
	}

	req, res, err := f.svc.SubmitCard(context.Background(), CardInput{
		AccountID: f.account.ID, Provider: "viettel", Serial: "s", PIN: "1234", FaceValue: 100_000,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, cardgateway.ErrPartnerUnavailable)
	assert.Equal(t, StatusPending, req.Status)
	card, _ := req.Card()
	assert.Equal(t, req.ID, card.PartnerRequestID)
	assert.Zero(t, f.balance(t))
}

func TestSubmitCardRequiresFields(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.SubmitCard(context.Background(), CardInput{AccountID: f.account.ID, Provider: "viettel", FaceValue: 10})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, f.charger.got)
}

func TestExpirePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := f.openBank(t, "old", 10_000)
	settled := f.openBank(t, "old-settled", 10_000)
	_, err := f.svc.Resolve(ctx, settled.ID, Approved("paid"))
	require.NoError(t, err)

	f.clock.Advance(3*time.Minute + time.Second)
	fresh := f.openBank(t, "new", 10_000)

	n, err := f.svc.ExpirePending(ctx, f.clock.Now().Add(-3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.svc.Get(ctx, stale.ID)
	assert.Equal(t, StatusRejected, got.Status)
	got, _ = f.svc.Get(ctx, fresh.ID)
	assert.Equal(t, StatusPending, got.Status)
	got, _ = f.svc.Get(ctx, settled.ID)
	assert.Equal(t, StatusApproved, got.Status)
	assert.Equal(t, int64(10_000), f.balance(t))
}

func TestConcurrentResolveCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.openBank(t, "race", 70_000)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		terminal int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := Approved("webhook")
			if i%2 == 1 {
				outcome = Rejected("sweeper")
			}
			_, err := f.svc.Resolve(ctx, req.ID, outcome)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrAlreadyTerminal):
				terminal++
			default:
				t.Errorf("resolve: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 15, terminal)

	final, _ := f.svc.Get(ctx, req.ID)
	if final.Status == StatusApproved {
		assert.Equal(t, int64(70_000), f.balance(t))
	} else {
		assert.Zero(t, f.balance(t))
	}
	report, err := f.led.Reconcile(ctx, f.account.ID)
	require.NoError(t, err)
	assert.True(t, report.Balanced())
}

func TestRecordApprovedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := OpenInput{AccountID: f.account.ID, Amount: 150_000, Channel: ChannelBank, Token: "bank:FT999",
		Detail: BankDetail{Reference: "FT999", Memo: "SHOPGAME player1"}}

	first, created, err := f.svc.RecordApproved(ctx, in, "bank webhook")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusApproved, first.Status)

	again, created, err := f.svc.RecordApproved(ctx, in, "bank webhook")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, int64(150_000), f.balance(t))
}

func TestOpenRefusesReservedTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, token := range []string{"bank:FT777", "BANK:FT777", " card:abc"} {
		_, err := f.svc.Open(ctx, OpenInput{AccountID: f.account.ID, Amount: 5_000_000, Channel: ChannelBank, Token: token})
		assert.ErrorIs(t, err, ErrInvalidRequest, token)
	}
	_, _, err := f.svc.SubmitCard(ctx, CardInput{
		AccountID: f.account.ID, Provider: "VIETTEL", Serial: "S", PIN: "P", FaceValue: 10_000, Token: "bank:FT1",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRecordApprovedSettlesMatchingPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending, err := f.svc.open(ctx, OpenInput{AccountID: f.account.ID, Amount: 30_000, Channel: ChannelBank, Token: "bank:FT1"})
	require.NoError(t, err)

	got, created, err := f.svc.RecordApproved(ctx, OpenInput{AccountID: f.account.ID, Amount: 30_000, Channel: ChannelBank, Token: "bank:FT1"}, "bank webhook")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, pending.ID, got.ID)
	assert.Equal(t, int64(30_000), f.balance(t))
}

func TestRecordApprovedNeverCreditsMismatchedPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mallory, err := f.led.EnsureAccount(ctx, ledger.NewAccount{Handle: "mallory"})
	require.NoError(t, err)
	planted, err := f.svc.open(ctx, OpenInput{AccountID: mallory.ID, Amount: 5_000_000, Channel: ChannelBank, Token: "bank:FT777"})
	require.NoError(t, err)

	in := OpenInput{AccountID: f.account.ID, Amount: 10, Channel: ChannelBank, Token: "bank:FT777"}
	got, created, err := f.svc.RecordApproved(ctx, in, "bank webhook")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, planted.ID, got.ID)
	assert.Equal(t, f.account.ID, got.AccountID)
	assert.Equal(t, int64(10), got.CreditedAmount)
	assert.Equal(t, int64(10), f.balance(t))

	again, created, err := f.svc.RecordApproved(ctx, in, "bank webhook")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, got.ID, again.ID)
	assert.Equal(t, int64(10), f.balance(t))

	stored, err := f.svc.Get(ctx, planted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	m, err := f.led.Account(ctx, mallory.ID)
	require.NoError(t, err)
	assert.Zero(t, m.WalletBalance)
}
