package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

func seedAccount(t *testing.T, s store.Store, uid string, balance int64) types.Account {
	t.Helper()
	ctx := context.Background()

	tok := types.Token{UID: uid, Status: types.TokenAssigned}
	if err := s.CreateToken(ctx, &tok); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	acct := types.Account{TokenID: tok.ID, IsActive: true}
	if err := s.CreateAccount(ctx, &acct); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if balance > 0 {
		if _, err := s.AdjustBalance(ctx, acct.ID, balance, time.Now()); err != nil {
			t.Fatalf("AdjustBalance: %v", err)
		}
	}
	return acct
}

// ── Balance constraint ───────────────────────────────────────────────────────

func TestLedgerStore_BalanceCheckConstraint(t *testing.T) {
	s, conn := newTestStore(t)
	acct := seedAccount(t, s, "chk", 100)

	_, err := conn.ExecContext(context.Background(),
		`UPDATE accounts SET balance_cents = -1 WHERE account_id = ?`, acct.ID)
	if err == nil {
		t.Fatal("expected CHECK(balance_cents >= 0) to reject a negative balance")
	}
}

func TestLedgerStore_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	s, _ := newTestStore(t)
	acct := seedAccount(t, s, "race", 1000)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AdjustBalance(ctx, acct.ID, -100, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, store.ErrInsufficientFunds):
				fail++
			default:
				t.Errorf("AdjustBalance: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 10 || fail != 15 {
		t.Errorf("expected 10 debits and 15 refusals, got %d and %d", ok, fail)
	}
	got, err := s.AccountByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("AccountByID: %v", err)
	}
	if got.BalanceCents != 0 {
		t.Errorf("balance: got %d, want 0", got.BalanceCents)
	}
}

// ── Transaction immutability ─────────────────────────────────────────────────

func TestLedgerStore_TransactionsAppendOnly(t *testing.T) {
	s, conn := newTestStore(t)
	acct := seedAccount(t, s, "imm", 0)
	ctx := context.Background()

	tx := types.Transaction{AccountID: acct.ID, Type: types.TxTopup, AmountCents: 500, BalanceAfterCents: 500, Method: types.MethodCard}
	if err := s.InsertTransaction(ctx, &tx); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	if _, err := conn.ExecContext(ctx, `UPDATE transactions SET amount_cents = 1 WHERE transaction_id = ?`, tx.ID); err == nil {
		t.Error("expected amount update to be rejected")
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM transactions WHERE transaction_id = ?`, tx.ID); err == nil {
		t.Error("expected delete to be rejected")
	}

	// The reversal flag may be set exactly once.
	if err := s.MarkReversed(ctx, tx.ID, time.Now(), "ops"); err != nil {
		t.Fatalf("MarkReversed: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `UPDATE transactions SET is_reversed = 0 WHERE transaction_id = ?`, tx.ID); err == nil {
		t.Error("expected clearing the reversal flag to be rejected")
	}
	if err := s.MarkReversed(ctx, tx.ID, time.Now(), "ops"); !errors.Is(err, store.ErrAlreadyReversed) {
		t.Errorf("second MarkReversed: got %v, want ErrAlreadyReversed", err)
	}
}
