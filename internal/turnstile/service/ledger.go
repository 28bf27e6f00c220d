package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// Ledger moves money between wristband wallets and the outside world.  Every
// balance change is a new transaction row written in the same unit of work
// as the balance update.
type Ledger struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewLedger(st store.Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: st, logger: logger, now: utcNow}
}

// SetClock replaces the time source.  Daily limits are evaluated per UTC day
// of this clock.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// checkAmount rejects non-positive amounts and amounts above the per-movement
// ceiling.
func checkAmount(amount int64) error {
	switch {
	case amount <= 0:
		return apperr.Validation("amount_cents must be positive")
	case amount > types.MaxAmountCents:
		return apperr.WithMetadata(apperr.CodeValidation, "amount_cents exceeds the per-transaction ceiling",
			map[string]any{"max_amount_cents": types.MaxAmountCents})
	}
	return nil
}

// wallet resolves the token and account behind uid for a money movement.
// The token must be assigned and the account active.
func wallet(ctx context.Context, repos store.Repos, uid string) (types.Token, types.Account, error) {
	tok, err := repos.TokenByUID(ctx, uid)
	if err != nil {
		return types.Token{}, types.Account{}, storeErr(err, apperr.CodeWristbandNotFound, "wristband")
	}
	acct, err := repos.AccountByTokenID(ctx, tok.ID)
	if err != nil {
		return types.Token{}, types.Account{}, storeErr(err, apperr.CodeAccountNotFound, "account")
	}
	switch tok.Status {
	case types.TokenAssigned:
	case types.TokenBlocked, types.TokenLost:
		return tok, acct, apperr.WithMetadata(apperr.CodeWristbandBlocked, "wristband is "+string(tok.Status),
			map[string]any{"status": tok.Status, "block_reason": tok.BlockReason})
	case types.TokenReturned, types.TokenDamaged:
		return tok, acct, apperr.WithMetadata(apperr.CodeWristbandRetired, "wristband is "+string(tok.Status),
			map[string]any{"status": tok.Status})
	default:
		return tok, acct, apperr.New(apperr.CodeAccountNotFound, "wristband has no active wallet")
	}
	if !acct.IsActive {
		return tok, acct, apperr.New(apperr.CodeAccountInactive, "account is inactive")
	}
	return tok, acct, nil
}

func (l *Ledger) Topup(ctx context.Context, req types.TopupRequest, actor string) (types.TopupResponse, error) {
	uid := normalizeUID(req.UID)
	if uid == "" {
		return types.TopupResponse{}, apperr.Validation("uid is required")
	}
	if err := checkAmount(req.AmountCents); err != nil {
		return types.TopupResponse{}, err
	}
	method := req.Method
	if method == "" {
		method = types.MethodCash
	}
	if !method.Valid() {
		return types.TopupResponse{}, apperr.WithMetadata(apperr.CodeValidation, "unknown top-up method",
			map[string]any{"method": method})
	}

	ctx, span := tracer.Start(ctx, "Ledger.Topup")
	defer span.End()
	span.SetAttributes(attribute.String("wristband.uid", uid), attribute.Int64("amount_cents", req.AmountCents))

	var out types.TopupResponse
	err := l.store.WithinTx(ctx, func(ctx context.Context, repos store.Repos) error {
		_, acct, err := wallet(ctx, repos, uid)
		if err != nil {
			return err
		}
		now := l.now()
		balance, err := repos.AdjustBalance(ctx, acct.ID, req.AmountCents, now)
		if err != nil {
			return storeErr(err, apperr.CodeAccountNotFound, "account")
		}
		tx := types.Transaction{
			AccountID:         acct.ID,
			Type:              types.TxTopup,
			AmountCents:       req.AmountCents,
			BalanceAfterCents: balance,
			Method:            method,
			CreatedBy:         actor,
			CreatedAt:         now,
		}
		if err := repos.InsertTransaction(ctx, &tx); err != nil {
			return storeErr(err, apperr.CodeAccountNotFound, "account")
		}
		out = types.TopupResponse{Transaction: tx, PreviousBalance: acct.BalanceCents, NewBalance: balance}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return types.TopupResponse{}, err
	}
	l.logger.Info("wallet topped up",
		zap.String("uid", uid),
		zap.Int64("amount_cents", req.AmountCents),
		zap.Int64("balance_cents", out.NewBalance),
		zap.String("actor", actor),
	)
	return out, nil
}

// Purchase debits the wallet.  Rule violations (insufficient balance, limits)
// come back as a PurchaseResult with Success=false and a nil error; the
// error return is reserved for validation, lookup and state failures.
func (l *Ledger) Purchase(ctx context.Context, req types.PurchaseRequest, actor string) (types.PurchaseResult, error) {
	uid := normalizeUID(req.UID)
	if uid == "" {
		return types.PurchaseResult{}, apperr.Validation("uid is required")
	}
	if err := checkAmount(req.AmountCents); err != nil {
		return types.PurchaseResult{}, err
	}

	ctx, span := tracer.Start(ctx, "Ledger.Purchase")
	defer span.End()
	span.SetAttributes(attribute.String("wristband.uid", uid), attribute.Int64("amount_cents", req.AmountCents))

	var res types.PurchaseResult
	err := l.store.WithinTx(ctx, func(ctx context.Context, repos store.Repos) error {
		_, acct, err := wallet(ctx, repos, uid)
		if err != nil {
			return err
		}
		now := l.now()
		res = types.PurchaseResult{
			PreviousBalance:     acct.BalanceCents,
			NewBalance:          acct.BalanceCents,
			CurrentBalanceCents: acct.BalanceCents,
		}

		if acct.BalanceCents < req.AmountCents {
			res.Error = apperr.CodeInsufficientBalance
			res.MissingCents = req.AmountCents - acct.BalanceCents
			return nil
		}
		if acct.TxLimitCents != nil && req.AmountCents > *acct.TxLimitCents {
			res.Error = apperr.CodeTxLimitExceeded
			res.LimitCents = *acct.TxLimitCents
			return nil
		}
		if acct.DailyLimitCents != nil {
			day := now.UTC().Truncate(24 * time.Hour)
			spent, err := repos.SumPurchasesSince(ctx, acct.ID, day)
			if err != nil {
				return err
			}
			if spent+req.AmountCents > *acct.DailyLimitCents {
				res.Error = apperr.CodeDailyLimitExceeded
				res.LimitCents = *acct.DailyLimitCents
				return nil
			}
		}

		balance, err := repos.AdjustBalance(ctx, acct.ID, -req.AmountCents, now)
		if errors.Is(err, store.ErrInsufficientFunds) {
			res.Error = apperr.CodeInsufficientBalance
			res.CurrentBalanceCents = balance
			res.MissingCents = req.AmountCents - balance
			return nil
		}
		if err != nil {
			return storeErr(err, apperr.CodeAccountNotFound, "account")
		}
		tx := types.Transaction{
			AccountID:         acct.ID,
			Type:              types.TxPurchase,
			AmountCents:       -req.AmountCents,
			BalanceAfterCents: balance,
			Vendor:            req.Vendor,
			CreatedBy:         actor,
			CreatedAt:         now,
		}
		if err := repos.InsertTransaction(ctx, &tx); err != nil {
			return storeErr(err, apperr.CodeAccountNotFound, "account")
		}
		res.Success = true
		res.Transaction = &tx
		res.NewBalance = balance
		res.CurrentBalanceCents = balance
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return types.PurchaseResult{}, err
	}

	if !res.Success {
		span.SetAttributes(attribute.String("purchase.rejected", string(res.Error)))
		l.logger.Info("purchase rejected",
			zap.String("uid", uid),
			zap.String("code", string(res.Error)),
			zap.Int64("amount_cents", req.AmountCents),
			zap.Int64("balance_cents", res.CurrentBalanceCents),
		)
	}
	return res, nil
}

// Refund reverses a transaction by appending its negation.  The original is
// flagged reversed in the same unit of work, so a transaction is refunded at
// most once.
func (l *Ledger) Refund(ctx context.Context, transactionID, actor string) (types.RefundResponse, error) {
	if transactionID == "" {
		return types.RefundResponse{}, apperr.Validation("transaction id is required")
	}

	ctx, span := tracer.Start(ctx, "Ledger.Refund")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))

	var out types.RefundResponse
	err := l.store.WithinTx(ctx, func(ctx context.Context, repos store.Repos) error {
		orig, err := repos.TransactionByID(ctx, transactionID)
		if err != nil {
			return storeErr(err, apperr.CodeTransactionNotFound, "transaction")
		}
		if orig.Type == types.TxRefund {
			return apperr.New(apperr.CodeCannotRefund, "a refund cannot be refunded")
		}
		if orig.IsReversed {
			return apperr.New(apperr.CodeAlreadyReversed, "transaction already reversed")
		}

		now := l.now()
		if err := repos.MarkReversed(ctx, orig.ID, now, actor); err != nil {
			if errors.Is(err, store.ErrAlreadyReversed) {
				return apperr.New(apperr.CodeAlreadyReversed, "transaction already reversed")
			}
			return storeErr(err, apperr.CodeTransactionNotFound, "transaction")
		}

		balance, err := repos.AdjustBalance(ctx, orig.AccountID, -orig.AmountCents, now)
		if errors.Is(err, store.ErrInsufficientFunds) {
			return apperr.WithMetadata(apperr.CodeInsufficientBalance,
				"balance too low to reverse this transaction",
				map[string]any{
					"current_balance_cents": balance,
					"missing_cents":         orig.AmountCents - balance,
				})
		}
		if err != nil {
			return storeErr(err, apperr.CodeAccountNotFound, "account")
		}

		origID := orig.ID
		refund := types.Transaction{
			AccountID:             orig.AccountID,
			Type:                  types.TxRefund,
			AmountCents:           -orig.AmountCents,
			BalanceAfterCents:     balance,
			Method:                orig.Method,
			Vendor:                orig.Vendor,
			CreatedBy:             actor,
			CreatedAt:             now,
			OriginalTransactionID: &origID,
		}
		if err := repos.InsertTransaction(ctx, &refund); err != nil {
			return storeErr(err, apperr.CodeAccountNotFound, "account")
		}

		orig.IsReversed = true
		orig.ReversedAt = &now
		orig.ReversedBy = actor
		out = types.RefundResponse{RefundTransaction: refund, OriginalTransaction: orig, NewBalance: balance}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return types.RefundResponse{}, err
	}
	l.logger.Info("transaction refunded",
		zap.String("transaction_id", transactionID),
		zap.String("refund_id", out.RefundTransaction.ID),
		zap.Int64("balance_cents", out.NewBalance),
		zap.String("actor", actor),
	)
	return out, nil
}

// account resolves uid to its wallet for reads, whatever the token status.
func (l *Ledger) account(ctx context.Context, uid string) (types.Account, error) {
	uid = normalizeUID(uid)
	if uid == "" {
		return types.Account{}, apperr.Validation("uid is required")
	}
	tok, err := l.store.TokenByUID(ctx, uid)
	if err != nil {
		return types.Account{}, storeErr(err, apperr.CodeWristbandNotFound, "wristband")
	}
	acct, err := l.store.AccountByTokenID(ctx, tok.ID)
	if err != nil {
		return types.Account{}, storeErr(err, apperr.CodeAccountNotFound, "account")
	}
	return acct, nil
}

func (l *Ledger) Statement(ctx context.Context, uid string, page types.Page) (types.Statement, error) {
	acct, err := l.account(ctx, uid)
	if err != nil {
		return types.Statement{}, err
	}
	page = page.Normalize()
	txs, total, err := l.store.ListTransactions(ctx, acct.ID, page)
	if err != nil {
		return types.Statement{}, err
	}
	if txs == nil {
		txs = []types.Transaction{}
	}
	return types.Statement{
		UID:          normalizeUID(uid),
		AccountID:    acct.ID,
		BalanceCents: acct.BalanceCents,
		IsActive:     acct.IsActive,
		Transactions: txs,
		Page:         page.Info(total),
	}, nil
}

func (l *Ledger) Summary(ctx context.Context) (types.LedgerSummary, error) {
	totals, err := l.store.TransactionTotals(ctx)
	if err != nil {
		return types.LedgerSummary{}, err
	}
	return types.Summarize(totals), nil
}

// Verify replays the wallet's transactions against its cached balance.  The
// plain sum of every amount and the sum over rows that are neither reversed
// nor refunds must both equal the balance.
func (l *Ledger) Verify(ctx context.Context, uid string) (types.LedgerCheck, error) {
	acct, err := l.account(ctx, uid)
	if err != nil {
		return types.LedgerCheck{}, err
	}
	txs, _, err := l.store.ListTransactions(ctx, acct.ID, types.Page{})
	if err != nil {
		return types.LedgerCheck{}, err
	}
	check := types.LedgerCheck{
		UID:              normalizeUID(uid),
		AccountID:        acct.ID,
		BalanceCents:     acct.BalanceCents,
		TransactionCount: len(txs),
	}
	for _, tx := range txs {
		check.ReplayCents += tx.AmountCents
		if !tx.IsReversed && tx.Type != types.TxRefund {
			check.EffectiveCents += tx.AmountCents
		}
	}
	check.Consistent = check.ReplayCents == acct.BalanceCents && check.EffectiveCents == acct.BalanceCents
	if !check.Consistent {
		l.logger.Error("ledger replay mismatch",
			zap.String("account_id", acct.ID),
			zap.Int64("balance_cents", acct.BalanceCents),
			zap.Int64("replay_cents", check.ReplayCents),
			zap.Int64("effective_cents", check.EffectiveCents),
		)
	}
	return check, nil
}

// UpdateSettings changes the activity flag and spend limits of a wallet.
// Limits must be positive; ClearLimits removes both.
func (l *Ledger) UpdateSettings(ctx context.Context, uid string, s types.AccountSettings) (types.Account, error) {
	for _, v := range []*int64{s.TxLimitCents, s.DailyLimitCents} {
		if v != nil && *v <= 0 {
			return types.Account{}, apperr.Validation("limits must be positive")
		}
	}
	uid = normalizeUID(uid)
	if uid == "" {
		return types.Account{}, apperr.Validation("uid is required")
	}

	var out types.Account
	err := l.store.WithinTx(ctx, func(ctx context.Context, repos store.Repos) error {
		tok, err := repos.TokenByUID(ctx, uid)
		if err != nil {
			return storeErr(err, apperr.CodeWristbandNotFound, "wristband")
		}
		acct, err := repos.AccountByTokenID(ctx, tok.ID)
		if err != nil {
			return storeErr(err, apperr.CodeAccountNotFound, "account")
		}
		acct.Apply(s, l.now())
		if err := repos.UpdateAccountSettings(ctx, acct); err != nil {
			return storeErr(err, apperr.CodeAccountNotFound, "account")
		}
		out = acct
		return nil
	})
	return out, err
}
