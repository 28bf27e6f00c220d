package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// ── Accounts ─────────────────────────────────────────────────────────────────

const accountCols = `account_id, token_id, balance_cents, is_active, tx_limit_cents,
  daily_limit_cents, created_at_ms, updated_at_ms`

func (r repos) CreateAccount(ctx context.Context, acct *types.Account) error {
	if acct.BalanceCents != 0 {
		return errors.New("accounts are created with a zero balance")
	}
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now()
	}
	if acct.UpdatedAt.IsZero() {
		acct.UpdatedAt = acct.CreatedAt
	}
	_, err := r.q.ExecContext(ctx, `
INSERT INTO accounts(`+accountCols+`)
VALUES (?, ?, 0, ?, ?, ?, ?, ?);`,
		acct.ID, acct.TokenID, boolInt(acct.IsActive), nullInt(acct.TxLimitCents),
		nullInt(acct.DailyLimitCents), ms(acct.CreatedAt), ms(acct.UpdatedAt),
	)
	return writeErr("CreateAccount", err)
}

func (r repos) accountWhere(ctx context.Context, where string, arg any) (types.Account, error) {
	var (
		acct             types.Account
		active           int
		txLimit, daily   sql.NullInt64
		created, updated int64
	)
	err := r.q.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE `+where+`;`, arg).
		Scan(&acct.ID, &acct.TokenID, &acct.BalanceCents, &active, &txLimit, &daily, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Account{}, store.ErrNotFound
	}
	if err != nil {
		return types.Account{}, fmt.Errorf("account query: %w", err)
	}
	acct.IsActive = active == 1
	acct.TxLimitCents = intPtr(txLimit)
	acct.DailyLimitCents = intPtr(daily)
	acct.CreatedAt = fromMs(created)
	acct.UpdatedAt = fromMs(updated)
	return acct, nil
}

func (r repos) AccountByID(ctx context.Context, id string) (types.Account, error) {
	return r.accountWhere(ctx, "account_id = ?", id)
}

func (r repos) AccountByTokenID(ctx context.Context, tokenID string) (types.Account, error) {
	return r.accountWhere(ctx, "token_id = ?", tokenID)
}

// AdjustBalance applies delta with a conditional update so the balance can
// never be observed below zero or above types.MaxBalanceCents, whatever the
// caller checked beforehand.  The bounds are compared against the stored
// balance, never against balance + delta, so the addition cannot overflow.
func (r repos) AdjustBalance(ctx context.Context, accountID string, delta int64, at time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
UPDATE accounts
SET balance_cents = balance_cents + ?, updated_at_ms = ?
WHERE account_id = ? AND balance_cents >= -? AND balance_cents <= ? - ?;`,
		delta, ms(at), accountID, delta, types.MaxBalanceCents, delta,
	)
	if isCheck(err) {
		return 0, store.ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("AdjustBalance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	var balance int64
	qerr := r.q.QueryRowContext(ctx, `SELECT balance_cents FROM accounts WHERE account_id = ?;`, accountID).Scan(&balance)
	if errors.Is(qerr, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if qerr != nil {
		return 0, fmt.Errorf("AdjustBalance read back: %w", qerr)
	}
	if n == 0 {
		if delta > 0 {
			return balance, store.ErrBalanceCeiling
		}
		return balance, store.ErrInsufficientFunds
	}
	return balance, nil
}

func (r repos) UpdateAccountSettings(ctx context.Context, acct types.Account) error {
	if acct.UpdatedAt.IsZero() {
		acct.UpdatedAt = now()
	}
	res, err := r.q.ExecContext(ctx, `
UPDATE accounts SET is_active = ?, tx_limit_cents = ?, daily_limit_cents = ?, updated_at_ms = ?
WHERE account_id = ?;`,
		boolInt(acct.IsActive), nullInt(acct.TxLimitCents), nullInt(acct.DailyLimitCents),
		ms(acct.UpdatedAt), acct.ID,
	)
	if err != nil {
		return writeErr("UpdateAccountSettings", err)
	}
	return mustAffect(res)
}

// ── Transactions ─────────────────────────────────────────────────────────────

const txCols = `transaction_id, account_id, type, amount_cents, balance_after_cents, method,
  vendor, created_by, created_at_ms, is_reversed, reversed_at_ms, reversed_by, original_transaction_id`

func scanTransaction(row rowScanner) (types.Transaction, error) {
	var (
		tx       types.Transaction
		created  int64
		reversed int
		revAt    sql.NullInt64
		original sql.NullString
	)
	if err := row.Scan(&tx.ID, &tx.AccountID, &tx.Type, &tx.AmountCents, &tx.BalanceAfterCents,
		&tx.Method, &tx.Vendor, &tx.CreatedBy, &created, &reversed, &revAt, &tx.ReversedBy, &original); err != nil {
		return types.Transaction{}, err
	}
	tx.CreatedAt = fromMs(created)
	tx.IsReversed = reversed == 1
	tx.ReversedAt = timePtr(revAt)
	tx.OriginalTransactionID = strPtr(original)
	return tx, nil
}

func (r repos) InsertTransaction(ctx context.Context, tx *types.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now()
	}
	_, err := r.q.ExecContext(ctx, `
INSERT INTO transactions(`+txCols+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		tx.ID, tx.AccountID, tx.Type, tx.AmountCents, tx.BalanceAfterCents, tx.Method,
		tx.Vendor, tx.CreatedBy, ms(tx.CreatedAt), boolInt(tx.IsReversed), nullMs(tx.ReversedAt),
		tx.ReversedBy, nullStr(tx.OriginalTransactionID),
	)
	return writeErr("InsertTransaction", err)
}

func (r repos) TransactionByID(ctx context.Context, id string) (types.Transaction, error) {
	tx, err := scanTransaction(r.q.QueryRowContext(ctx,
		`SELECT `+txCols+` FROM transactions WHERE transaction_id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Transaction{}, store.ErrNotFound
	}
	if err != nil {
		return types.Transaction{}, fmt.Errorf("TransactionByID: %w", err)
	}
	return tx, nil
}

// MarkReversed flips the reversal flag only if it is still clear, so two
// concurrent refunds of one transaction cannot both succeed.
func (r repos) MarkReversed(ctx context.Context, id string, at time.Time, by string) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE transactions SET is_reversed = 1, reversed_at_ms = ?, reversed_by = ?
WHERE transaction_id = ? AND is_reversed = 0;`,
		ms(at), by, id,
	)
	if err != nil {
		return fmt.Errorf("MarkReversed: %w", err)
	}
	if err := mustAffect(res); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if _, err := r.TransactionByID(ctx, id); err != nil {
		return err
	}
	return store.ErrAlreadyReversed
}

func (r repos) ListTransactions(ctx context.Context, accountID string, page types.Page) ([]types.Transaction, int, error) {
	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = ?;`, accountID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListTransactions count: %w", err)
	}

	limit, offset := limitOffset(page.PerPage, page.Offset())
	rows, err := r.q.QueryContext(ctx, `
SELECT `+txCols+` FROM transactions
WHERE account_id = ?
ORDER BY created_at_ms DESC, rowid DESC
LIMIT ? OFFSET ?;`, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListTransactions: %w", err)
	}
	defer rows.Close()

	var out []types.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListTransactions scan: %w", err)
		}
		out = append(out, tx)
	}
	return out, total, rows.Err()
}

func (r repos) SumPurchasesSince(ctx context.Context, accountID string, since time.Time) (int64, error) {
	var spent int64
	err := r.q.QueryRowContext(ctx, `
SELECT COALESCE(-SUM(amount_cents), 0) FROM transactions
WHERE account_id = ? AND type = 'purchase' AND is_reversed = 0 AND created_at_ms >= ?;`,
		accountID, ms(since)).Scan(&spent)
	if err != nil {
		return 0, fmt.Errorf("SumPurchasesSince: %w", err)
	}
	return spent, nil
}

func (r repos) TransactionTotals(ctx context.Context) ([]types.TransactionTotal, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT type, method, vendor, COUNT(*), COALESCE(SUM(amount_cents), 0)
FROM transactions
GROUP BY type, method, vendor
ORDER BY type, method, vendor;`)
	if err != nil {
		return nil, fmt.Errorf("TransactionTotals: %w", err)
	}
	defer rows.Close()

	var out []types.TransactionTotal
	for rows.Next() {
		var t types.TransactionTotal
		if err := rows.Scan(&t.Type, &t.Method, &t.Vendor, &t.Count, &t.AmountCents); err != nil {
			return nil, fmt.Errorf("TransactionTotals scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ── Worker-routed writes ─────────────────────────────────────────────────────

func (s *Store) CreateAccount(ctx context.Context, acct *types.Account) error {
	return s.write(ctx, func(ctx context.Context, r repos) error { return r.CreateAccount(ctx, acct) })
}

func (s *Store) AdjustBalance(ctx context.Context, accountID string, delta int64, at time.Time) (balance int64, err error) {
	err = s.write(ctx, func(ctx context.Context, r repos) error {
		balance, err = r.AdjustBalance(ctx, accountID, delta, at)
		return err
	})
	return balance, err
}

func (s *Store) UpdateAccountSettings(ctx context.Context, acct types.Account) error {
	return s.write(ctx, func(ctx context.Context, r repos) error { return r.UpdateAccountSettings(ctx, acct) })
}

func (s *Store) InsertTransaction(ctx context.Context, tx *types.Transaction) error {
	return s.write(ctx, func(ctx context.Context, r repos) error { return r.InsertTransaction(ctx, tx) })
}

func (s *Store) MarkReversed(ctx context.Context, id string, at time.Time, by string) error {
	return s.write(ctx, func(ctx context.Context, r repos) error { return r.MarkReversed(ctx, id, at, by) })
}
