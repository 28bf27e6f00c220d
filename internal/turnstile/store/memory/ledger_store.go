package memory

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// ── Accounts ─────────────────────────────────────────────────────────────────

func (r *repos) CreateAccount(_ context.Context, acct *types.Account) error {
	if _, ok := r.s.accountByToken[acct.TokenID]; ok {
		return store.ErrConflict
	}
	if _, ok := r.s.tokens[acct.TokenID]; !ok {
		return store.ErrNotFound
	}
	if acct.BalanceCents != 0 {
		return errors.New("accounts are created with a zero balance")
	}
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	stamp(&acct.CreatedAt)
	if acct.UpdatedAt.IsZero() {
		acct.UpdatedAt = acct.CreatedAt
	}
	remember(r, r.s.accounts, acct.ID)
	remember(r, r.s.accountByToken, acct.TokenID)
	r.s.accounts[acct.ID] = *acct
	r.s.accountByToken[acct.TokenID] = acct.ID
	return nil
}

func (r *repos) AccountByID(_ context.Context, id string) (types.Account, error) {
	acct, ok := r.s.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return acct, nil
}

func (r *repos) AccountByTokenID(ctx context.Context, tokenID string) (types.Account, error) {
	id, ok := r.s.accountByToken[tokenID]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return r.AccountByID(ctx, id)
}

func (r *repos) AdjustBalance(_ context.Context, accountID string, delta int64, at time.Time) (int64, error) {
	acct, ok := r.s.accounts[accountID]
	if !ok {
		return 0, store.ErrNotFound
	}
	switch err := acct.ApplyDelta(delta, at); {
	case errors.Is(err, types.ErrBalanceCeiling):
		return acct.BalanceCents, store.ErrBalanceCeiling
	case err != nil:
		return acct.BalanceCents, store.ErrInsufficientFunds
	}
	remember(r, r.s.accounts, accountID)
	r.s.accounts[accountID] = acct
	return acct.BalanceCents, nil
}

// UpdateAccountSettings copies the non-monetary fields of acct.
func (r *repos) UpdateAccountSettings(_ context.Context, acct types.Account) error {
	cur, ok := r.s.accounts[acct.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.IsActive = acct.IsActive
	cur.TxLimitCents = acct.TxLimitCents
	cur.DailyLimitCents = acct.DailyLimitCents
	cur.UpdatedAt = acct.UpdatedAt
	remember(r, r.s.accounts, acct.ID)
	r.s.accounts[acct.ID] = cur
	return nil
}

// ── Transactions ─────────────────────────────────────────────────────────────

func (r *repos) InsertTransaction(_ context.Context, tx *types.Transaction) error {
	if _, ok := r.s.accounts[tx.AccountID]; !ok {
		return store.ErrNotFound
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if _, dup := r.s.txs[tx.ID]; dup {
		return store.ErrConflict
	}
	stamp(&tx.CreatedAt)
	remember(r, r.s.txs, tx.ID)
	remember(r, r.s.txOrder, tx.AccountID)
	r.s.txs[tx.ID] = *tx
	// Copy so a rolled-back header never shares a backing array with the
	// restored one.
	r.s.txOrder[tx.AccountID] = append(slices.Clip(r.s.txOrder[tx.AccountID]), tx.ID)
	return nil
}

func (r *repos) TransactionByID(_ context.Context, id string) (types.Transaction, error) {
	tx, ok := r.s.txs[id]
	if !ok {
		return types.Transaction{}, store.ErrNotFound
	}
	return tx, nil
}

func (r *repos) MarkReversed(_ context.Context, id string, at time.Time, by string) error {
	tx, ok := r.s.txs[id]
	if !ok {
		return store.ErrNotFound
	}
	if tx.IsReversed {
		return store.ErrAlreadyReversed
	}
	tx.IsReversed = true
	tx.ReversedAt = &at
	tx.ReversedBy = by
	remember(r, r.s.txs, id)
	r.s.txs[id] = tx
	return nil
}

func (r *repos) ListTransactions(_ context.Context, accountID string, page types.Page) ([]types.Transaction, int, error) {
	ids := r.s.txOrder[accountID]
	out := make([]types.Transaction, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, r.s.txs[ids[i]])
	}
	lo, hi := page.Window(len(out))
	return out[lo:hi], len(out), nil
}

func (r *repos) SumPurchasesSince(_ context.Context, accountID string, since time.Time) (int64, error) {
	var spent int64
	for _, id := range r.s.txOrder[accountID] {
		tx := r.s.txs[id]
		if tx.Type != types.TxPurchase || tx.IsReversed || tx.CreatedAt.Before(since) {
			continue
		}
		spent -= tx.AmountCents
	}
	return spent, nil
}

type totalKey struct {
	typ    types.TransactionType
	method types.TopupMethod
	vendor string
}

func (r *repos) TransactionTotals(_ context.Context) ([]types.TransactionTotal, error) {
	groups := make(map[totalKey]*types.TransactionTotal)
	var order []totalKey
	for _, tx := range r.s.txs {
		k := totalKey{tx.Type, tx.Method, tx.Vendor}
		g, ok := groups[k]
		if !ok {
			g = &types.TransactionTotal{Type: tx.Type, Method: tx.Method, Vendor: tx.Vendor}
			groups[k] = g
			order = append(order, k)
		}
		g.Count++
		g.AmountCents += tx.AmountCents
	}
	out := make([]types.TransactionTotal, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out, nil
}

// ── Locked wrappers ──────────────────────────────────────────────────────────

func (s *Store) CreateAccount(ctx context.Context, acct *types.Account) error {
	return s.locked(func(r *repos) error { return r.CreateAccount(ctx, acct) })
}

func (s *Store) AccountByID(ctx context.Context, id string) (acct types.Account, err error) {
	err = s.locked(func(r *repos) error {
		acct, err = r.AccountByID(ctx, id)
		return err
	})
	return acct, err
}

func (s *Store) AccountByTokenID(ctx context.Context, tokenID string) (acct types.Account, err error) {
	err = s.locked(func(r *repos) error {
		acct, err = r.AccountByTokenID(ctx, tokenID)
		return err
	})
	return acct, err
}

func (s *Store) AdjustBalance(ctx context.Context, accountID string, delta int64, at time.Time) (bal int64, err error) {
	err = s.locked(func(r *repos) error {
		bal, err = r.AdjustBalance(ctx, accountID, delta, at)
		return err
	})
	return bal, err
}

func (s *Store) UpdateAccountSettings(ctx context.Context, acct types.Account) error {
	return s.locked(func(r *repos) error { return r.UpdateAccountSettings(ctx, acct) })
}

func (s *Store) InsertTransaction(ctx context.Context, tx *types.Transaction) error {
	return s.locked(func(r *repos) error { return r.InsertTransaction(ctx, tx) })
}

func (s *Store) TransactionByID(ctx context.Context, id string) (tx types.Transaction, err error) {
	err = s.locked(func(r *repos) error {
		tx, err = r.TransactionByID(ctx, id)
		return err
	})
	return tx, err
}

func (s *Store) MarkReversed(ctx context.Context, id string, at time.Time, by string) error {
	return s.locked(func(r *repos) error { return r.MarkReversed(ctx, id, at, by) })
}

func (s *Store) ListTransactions(ctx context.Context, accountID string, page types.Page) (out []types.Transaction, total int, err error) {
	err = s.locked(func(r *repos) error {
		out, total, err = r.ListTransactions(ctx, accountID, page)
		return err
	})
	return out, total, err
}

func (s *Store) SumPurchasesSince(ctx context.Context, accountID string, since time.Time) (spent int64, err error) {
	err = s.locked(func(r *repos) error {
		spent, err = r.SumPurchasesSince(ctx, accountID, since)
		return err
	})
	return spent, err
}

func (s *Store) TransactionTotals(ctx context.Context) (out []types.TransactionTotal, err error) {
	err = s.locked(func(r *repos) error {
		out, err = r.TransactionTotals(ctx)
		return err
	})
	return out, err
}
