package service_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// Wallet scenarios
// ═══════════════════════════════════════════════════════════════════════════

func TestLedger_TopupThenPurchases(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.tokens.Register(ctx, types.RegisterRequest{UID: "T1"})
	require.NoError(t, err)
	assigned := e.assign(t, "T1", types.TicketStandard)
	assert.Zero(t, assigned.Account.BalanceCents)

	top := e.topup(t, "T1", 5000)
	assert.Equal(t, int64(0), top.PreviousBalance)
	assert.Equal(t, int64(5000), top.NewBalance)
	assert.Equal(t, int64(5000), top.Transaction.BalanceAfterCents)

	res, err := e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 3000, Vendor: "Bar1"}, "bar")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, int64(2000), res.NewBalance)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, int64(-3000), res.Transaction.AmountCents)
	assert.Equal(t, "Bar1", res.Transaction.Vendor)

	res, err = e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 5000, Vendor: "Bar1"}, "bar")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, apperr.CodeInsufficientBalance, res.Error)
	assert.Equal(t, int64(2000), res.CurrentBalanceCents)
	assert.Equal(t, int64(3000), res.MissingCents)
	assert.Nil(t, res.Transaction)

	st, err := e.ledger.Statement(ctx, "T1", types.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), st.BalanceCents)
	require.Len(t, st.Transactions, 2, "a rejected purchase writes nothing")
	assert.Equal(t, types.TxPurchase, st.Transactions[0].Type, "most recent first")
}

func TestLedger_RefundIsOneShot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.assign(t, "T1", types.TicketStandard)
	e.topup(t, "T1", 5000)
	res, err := e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 3000, Vendor: "Bar1"}, "bar")
	require.NoError(t, err)
	require.True(t, res.Success)

	ref, err := e.ledger.Refund(ctx, res.Transaction.ID, "supervisor")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), ref.NewBalance)
	assert.Equal(t, types.TxRefund, ref.RefundTransaction.Type)
	assert.Equal(t, int64(3000), ref.RefundTransaction.AmountCents)
	assert.Equal(t, "Bar1", ref.RefundTransaction.Vendor)
	require.NotNil(t, ref.RefundTransaction.OriginalTransactionID)
	assert.Equal(t, res.Transaction.ID, *ref.RefundTransaction.OriginalTransactionID)
	assert.True(t, ref.OriginalTransaction.IsReversed)
	assert.Equal(t, "supervisor", ref.OriginalTransaction.ReversedBy)

	_, err = e.ledger.Refund(ctx, res.Transaction.ID, "supervisor")
	assert.True(t, apperr.HasCode(err, apperr.CodeAlreadyReversed))
	assert.Equal(t, int64(5000), e.balance(t, "T1"))

	_, err = e.ledger.Refund(ctx, ref.RefundTransaction.ID, "supervisor")
	assert.True(t, apperr.HasCode(err, apperr.CodeCannotRefund))

	_, err = e.ledger.Refund(ctx, "no-such-tx", "supervisor")
	assert.True(t, apperr.HasCode(err, apperr.CodeTransactionNotFound))

	check, err := e.ledger.Verify(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.Equal(t, 3, check.TransactionCount)
}

func TestLedger_ConcurrentRefundsReverseOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.assign(t, "T1", types.TicketStandard)
	e.topup(t, "T1", 1000)
	res, err := e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 400, Vendor: "Food"}, "pos")
	require.NoError(t, err)
	require.True(t, res.Success)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.ledger.Refund(ctx, res.Transaction.ID, "sup"); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(1000), e.balance(t, "T1"))
}

func TestLedger_RefundTopupNeedsFunds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.assign(t, "T1", types.TicketStandard)
	top := e.topup(t, "T1", 1000)
	res, err := e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 700, Vendor: "Merch"}, "pos")
	require.NoError(t, err)
	require.True(t, res.Success)

	_, err = e.ledger.Refund(ctx, top.Transaction.ID, "sup")
	require.True(t, apperr.HasCode(err, apperr.CodeInsufficientBalance))
	ae, ok := err.(*apperr.Error)
	require.True(t, ok)
	assert.Equal(t, int64(300), ae.Metadata["current_balance_cents"])
	assert.Equal(t, int64(700), ae.Metadata["missing_cents"])

	// The failed reversal must not leave the original flagged.
	st, err := e.ledger.Statement(ctx, "T1", types.Page{})
	require.NoError(t, err)
	for _, tx := range st.Transactions {
		assert.False(t, tx.IsReversed, "tx %s", tx.ID)
	}
	assert.Equal(t, int64(300), st.BalanceCents)
}

// ── Validation and state ─────────────────────────────────────────────────────

func TestLedger_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.assign(t, "T1", types.TicketStandard)

	_, err := e.ledger.Topup(ctx, types.TopupRequest{UID: "T1", AmountCents: 0}, "c")
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
	_, err = e.ledger.Topup(ctx, types.TopupRequest{UID: "T1", AmountCents: 10, Method: "barter"}, "c")
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
	_, err = e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: -5}, "c")
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
	_, err = e.ledger.Topup(ctx, types.TopupRequest{UID: "ghost", AmountCents: 10}, "c")
	assert.True(t, apperr.HasCode(err, apperr.CodeWristbandNotFound))

	// Registered but never assigned: no wallet yet.
	_, err = e.tokens.Register(ctx, types.RegisterRequest{UID: "T2"})
	require.NoError(t, err)
	_, err = e.ledger.Topup(ctx, types.TopupRequest{UID: "T2", AmountCents: 10}, "c")
	assert.True(t, apperr.HasCode(err, apperr.CodeAccountNotFound))

	top := e.topup(t, "T1", 10)
	assert.Equal(t, types.MethodCash, top.Transaction.Method, "method defaults to cash")
}

func TestLedger_AmountCeilings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.assign(t, "T1", types.TicketStandard)

	for _, amount := range []int64{math.MaxInt64, types.MaxAmountCents + 1} {
		_, err := e.ledger.Topup(ctx, types.TopupRequest{UID: "T1", AmountCents: amount}, "c")
		assert.True(t, apperr.HasCode(err, apperr.CodeValidation), "topup %d", amount)
		_, err = e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: amount, Vendor: "Bar1"}, "c")
		assert.True(t, apperr.HasCode(err, apperr.CodeValidation), "purchase %d", amount)
	}
	assert.Zero(t, e.balance(t, "T1"))

	// Fill the wallet to its ceiling.
	for range types.MaxBalanceCents / types.MaxAmountCents {
		e.topup(t, "T1", types.MaxAmountCents)
	}
	require.Equal(t, types.MaxBalanceCents, e.balance(t, "T1"))

	_, err := e.ledger.Topup(ctx, types.TopupRequest{UID: "T1", AmountCents: 100}, "c")
	require.True(t, apperr.HasCode(err, apperr.CodeValidation), "got %v", err)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, types.MaxBalanceCents, ae.Metadata["max_balance_cents"])

	// Refunding a purchase after the wallet was refilled would cross the
	// ceiling too; the purchase stays unreversed.
	res, err := e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 500, Vendor: "Bar1"}, "bar")
	require.NoError(t, err)
	require.True(t, res.Success)
	e.topup(t, "T1", 500)
	_, err = e.ledger.Refund(ctx, res.Transaction.ID, "sup")
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation), "got %v", err)

	check, err := e.ledger.Verify(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.Equal(t, types.MaxBalanceCents, check.BalanceCents)
}

func TestLedger_BlockedWalletRejectsMovements(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.assign(t, "T1", types.TicketStandard)
	top := e.topup(t, "T1", 1000)
	_, err := e.tokens.Block(ctx, "T1", "fraud", "ops")
	require.NoError(t, err)

	_, err = e.ledger.Topup(ctx, types.TopupRequest{UID: "T1", AmountCents: 10}, "c")
	assert.True(t, apperr.HasCode(err, apperr.CodeWristbandBlocked))
	_, err = e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 10}, "c")
	assert.True(t, apperr.HasCode(err, apperr.CodeWristbandBlocked))

	// Refunds stay possible so operators can pay the holder back.
	_, err = e.ledger.Refund(ctx, top.Transaction.ID, "sup")
	require.NoError(t, err)
	assert.Zero(t, e.balance(t, "T1"))

	e.assign(t, "T2", types.TicketStandard)
	_, err = e.tokens.MarkReturned(ctx, "T2", "ops")
	require.NoError(t, err)
	_, err = e.ledger.Topup(ctx, types.TopupRequest{UID: "T2", AmountCents: 10}, "c")
	assert.True(t, apperr.HasCode(err, apperr.CodeWristbandRetired))
}

func TestLedger_InactiveAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.assign(t, "T1", types.TicketStandard)
	e.topup(t, "T1", 1000)

	acct, err := e.ledger.UpdateSettings(ctx, "T1", types.AccountSettings{IsActive: ptr(false)})
	require.NoError(t, err)
	assert.False(t, acct.IsActive)
	assert.Equal(t, int64(1000), acct.BalanceCents)

	_, err = e.ledger.Topup(ctx, types.TopupRequest{UID: "T1", AmountCents: 10}, "c")
	assert.True(t, apperr.HasCode(err, apperr.CodeAccountInactive))
	_, err = e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 10}, "c")
	assert.True(t, apperr.HasCode(err, apperr.CodeAccountInactive))

	_, err = e.ledger.UpdateSettings(ctx, "T1", types.AccountSettings{TxLimitCents: ptr(int64(0))})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
}

// ── Limits ───────────────────────────────────────────────────────────────────

func TestLedger_TransactionLimit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.assign(t, "T1", types.TicketStandard)
	e.topup(t, "T1", 5000)
	_, err := e.ledger.UpdateSettings(ctx, "T1", types.AccountSettings{TxLimitCents: ptr(int64(500))})
	require.NoError(t, err)

	res, err := e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 600}, "pos")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, apperr.CodeTxLimitExceeded, res.Error)
	assert.Equal(t, int64(500), res.LimitCents)

	// Insufficient balance is reported ahead of the limit.
	res, err = e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 9000}, "pos")
	require.NoError(t, err)
	assert.Equal(t, apperr.CodeInsufficientBalance, res.Error)

	res, err = e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 500}, "pos")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(4500), e.balance(t, "T1"))
}

func TestLedger_DailyLimitResetsAtUTCMidnight(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Date(2026, 7, 4, 22, 0, 0, 0, time.UTC)
	e.ledger.SetClock(func() time.Time { return now })

	e.assign(t, "T1", types.TicketStandard)
	e.topup(t, "T1", 10000)
	_, err := e.ledger.UpdateSettings(ctx, "T1", types.AccountSettings{DailyLimitCents: ptr(int64(1000))})
	require.NoError(t, err)

	res, err := e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 600}, "pos")
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 500}, "pos")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, apperr.CodeDailyLimitExceeded, res.Error)
	assert.Equal(t, int64(1000), res.LimitCents)

	assert.Nil(t, res.Transaction)

	// A refunded purchase no longer counts towards the day.
	first, err := e.ledger.Statement(ctx, "T1", types.Page{})
	require.NoError(t, err)
	_, err = e.ledger.Refund(ctx, first.Transactions[0].ID, "sup")
	require.NoError(t, err)
	res, err = e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 1000}, "pos")
	require.NoError(t, err)
	assert.True(t, res.Success)

	now = now.Add(3 * time.Hour)
	res, err = e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 1000}, "pos")
	require.NoError(t, err)
	assert.True(t, res.Success, "a new UTC day starts a new window")
}

// ── Reporting ────────────────────────────────────────────────────────────────

func TestLedger_Summary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.assign(t, "T1", types.TicketStandard)
	e.assign(t, "T2", types.TicketVIP)
	e.topup(t, "T1", 3000)
	_, err := e.ledger.Topup(ctx, types.TopupRequest{UID: "T2", AmountCents: 2000, Method: types.MethodCard}, "c")
	require.NoError(t, err)
	for _, p := range []struct {
		uid    string
		amount int64
		vendor string
	}{{"T1", 500, "Bar1"}, {"T2", 700, "Bar1"}, {"T2", 300, "Food"}} {
		res, err := e.ledger.Purchase(ctx, types.PurchaseRequest{UID: p.uid, AmountCents: p.amount, Vendor: p.vendor}, "pos")
		require.NoError(t, err)
		require.True(t, res.Success)
	}

	sum, err := e.ledger.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.TransactionCount)
	assert.Equal(t, int64(3500), sum.NetCents)
	assert.Equal(t, types.Sum{Count: 1, AmountCents: 3000}, sum.ByMethod[types.MethodCash])
	assert.Equal(t, types.Sum{Count: 1, AmountCents: 2000}, sum.ByMethod[types.MethodCard])
	assert.Equal(t, types.Sum{Count: 2, AmountCents: 1200}, sum.ByVendor["Bar1"])
	assert.Equal(t, types.Sum{Count: 1, AmountCents: 300}, sum.ByVendor["Food"])
}

// ═══════════════════════════════════════════════════════════════════════════
// Invariants under load
// ═══════════════════════════════════════════════════════════════════════════

func TestLedger_ConcurrentPurchasesNeverOverdraw(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.assign(t, "T1", types.TicketStandard)
	e.topup(t, "T1", 1000)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 100, Vendor: "Bar"}, "pos")
			if err != nil {
				t.Errorf("purchase: %v", err)
				return
			}
			if res.Success {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	assert.Zero(t, e.balance(t, "T1"))
	check, err := e.ledger.Verify(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, check.Consistent)
}

// TestLedger_RandomWalkStaysConsistent drives a wallet through a seeded
// random sequence of movements and replays the ledger after every step.
func TestLedger_RandomWalkStaysConsistent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.assign(t, "T1", types.TicketStandard)
	rng := rand.New(rand.NewSource(20260704))

	var txIDs []string
	for step := range 300 {
		switch rng.Intn(3) {
		case 0:
			top := e.topup(t, "T1", 1+rng.Int63n(5000))
			txIDs = append(txIDs, top.Transaction.ID)
		case 1:
			res, err := e.ledger.Purchase(ctx, types.PurchaseRequest{UID: "T1", AmountCents: 1 + rng.Int63n(4000), Vendor: "V"}, "pos")
			require.NoError(t, err)
			if res.Success {
				txIDs = append(txIDs, res.Transaction.ID)
			} else {
				assert.Equal(t, apperr.CodeInsufficientBalance, res.Error)
			}
		case 2:
			if len(txIDs) == 0 {
				continue
			}
			ref, err := e.ledger.Refund(ctx, txIDs[rng.Intn(len(txIDs))], "sup")
			switch {
			case err == nil:
				txIDs = append(txIDs, ref.RefundTransaction.ID)
			case apperr.HasCode(err, apperr.CodeAlreadyReversed),
				apperr.HasCode(err, apperr.CodeCannotRefund),
				apperr.HasCode(err, apperr.CodeInsufficientBalance):
			default:
				t.Fatalf("step %d: unexpected refund error: %v", step, err)
			}
		}

		check, err := e.ledger.Verify(ctx, "T1")
		require.NoError(t, err)
		require.True(t, check.Consistent, "step %d: %+v", step, check)
		require.GreaterOrEqual(t, check.BalanceCents, int64(0))
	}
}
