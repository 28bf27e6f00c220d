package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// AccountDefaults are the limits given to a wallet when it is first opened.
type AccountDefaults struct {
	TxLimitCents    *int64
	DailyLimitCents *int64
}

type TokenRegistry struct {
	store    store.Store
	defaults AccountDefaults
	logger   *zap.Logger
}

func NewTokenRegistry(st store.Store, defaults AccountDefaults, logger *zap.Logger) *TokenRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenRegistry{store: st, defaults: defaults, logger: logger}
}

func (r *TokenRegistry) Register(ctx context.Context, req types.RegisterRequest) (types.Token, error) {
	uid := normalizeUID(req.UID)
	if uid == "" {
		return types.Token{}, apperr.Validation("uid is required")
	}

	now := utcNow()
	tok := types.Token{
		UID:       uid,
		BatchCode: req.BatchCode,
		Status:    types.TokenNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreateToken(ctx, &tok); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Token{}, apperr.WithMetadata(apperr.CodeConflict, "wristband already registered",
				map[string]any{"uid": uid})
		}
		return types.Token{}, storeErr(err, apperr.CodeWristbandNotFound, "wristband")
	}
	return tok, nil
}

// FindByUID reports absence as ok=false, not as an error.
func (r *TokenRegistry) FindByUID(ctx context.Context, uid string) (types.Token, bool, error) {
	return found(r.store.TokenByUID(ctx, normalizeUID(uid)))
}

func (r *TokenRegistry) FindByID(ctx context.Context, id string) (types.Token, bool, error) {
	return found(r.store.TokenByID(ctx, id))
}

func found[T any](v T, err error) (T, bool, error) {
	var zero T
	if errors.Is(err, store.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Assign links a wristband to an identity and opens its wallet.  The token
// is created when unknown and the identity when given inline; all of it is
// one unit of work.
func (r *TokenRegistry) Assign(ctx context.Context, req types.AssignRequest) (types.AssignResponse, error) {
	uid := normalizeUID(req.UID)
	if uid == "" {
		return types.AssignResponse{}, apperr.Validation("uid is required")
	}
	if (req.IdentityID == "") == (req.Identity == nil) {
		return types.AssignResponse{}, apperr.Validation("exactly one of identity_id or identity is required")
	}
	var inline *types.Identity
	if req.Identity != nil {
		ident, err := buildIdentity(*req.Identity)
		if err != nil {
			return types.AssignResponse{}, err
		}
		inline = &ident
	}

	ctx, span := tracer.Start(ctx, "TokenRegistry.Assign")
	defer span.End()

	var out types.AssignResponse
	err := r.store.WithinTx(ctx, func(ctx context.Context, repos store.Repos) error {
		now := utcNow()

		tok, err := repos.TokenByUID(ctx, uid)
		if errors.Is(err, store.ErrNotFound) {
			tok = types.Token{UID: uid, Status: types.TokenNew, CreatedAt: now, UpdatedAt: now}
			err = repos.CreateToken(ctx, &tok)
		}
		if err != nil {
			return storeErr(err, apperr.CodeWristbandNotFound, "wristband")
		}

		var ident types.Identity
		if inline != nil {
			ident = *inline
			ident.CreatedAt, ident.UpdatedAt = now, now
			if err := repos.CreateIdentity(ctx, &ident); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return apperr.New(apperr.CodeConflict, "an identity with this email already exists")
				}
				return storeErr(err, apperr.CodeIdentityNotFound, "identity")
			}
		} else {
			ident, err = repos.IdentityByID(ctx, req.IdentityID)
			if err != nil {
				return storeErr(err, apperr.CodeIdentityNotFound, "identity")
			}
		}
		if !ident.Active() {
			return apperr.WithMetadata(apperr.CodeIdentityInactive, "identity is "+string(ident.State),
				map[string]any{"identity_id": ident.ID})
		}

		if err := tok.AssignTo(ident.ID, now); err != nil {
			return err
		}
		if err := repos.UpdateToken(ctx, tok); err != nil {
			return storeErr(err, apperr.CodeWristbandNotFound, "wristband")
		}

		acct, err := repos.AccountByTokenID(ctx, tok.ID)
		if errors.Is(err, store.ErrNotFound) {
			acct = types.Account{
				TokenID:         tok.ID,
				IsActive:        true,
				TxLimitCents:    r.defaults.TxLimitCents,
				DailyLimitCents: r.defaults.DailyLimitCents,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			err = repos.CreateAccount(ctx, &acct)
		}
		if err != nil {
			return storeErr(err, apperr.CodeAccountNotFound, "account")
		}

		out = types.AssignResponse{Token: tok, Identity: ident, Account: acct}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return types.AssignResponse{}, err
	}

	r.logger.Info("wristband assigned",
		zap.String("uid", uid),
		zap.String("identity_id", out.Identity.ID),
		zap.String("account_id", out.Account.ID),
	)
	return out, nil
}

func (r *TokenRegistry) Block(ctx context.Context, uid, reason, actor string) (types.Token, error) {
	if reason == "" {
		return types.Token{}, apperr.Validation("reason is required")
	}
	return r.transition(ctx, uid, func(tok *types.Token, at time.Time) error {
		return tok.Block(reason, actor, at)
	})
}

func (r *TokenRegistry) Unblock(ctx context.Context, uid string) (types.Token, error) {
	return r.transition(ctx, uid, func(tok *types.Token, at time.Time) error {
		return tok.Unblock(at)
	})
}

func (r *TokenRegistry) MarkLost(ctx context.Context, uid, actor string) (types.Token, error) {
	return r.transition(ctx, uid, func(tok *types.Token, at time.Time) error {
		return tok.MarkLost(actor, at)
	})
}

func (r *TokenRegistry) MarkReturned(ctx context.Context, uid, actor string) (types.Token, error) {
	return r.transition(ctx, uid, func(tok *types.Token, at time.Time) error {
		return tok.Retire(types.TokenReturned, actor, at)
	})
}

func (r *TokenRegistry) MarkDamaged(ctx context.Context, uid, actor string) (types.Token, error) {
	return r.transition(ctx, uid, func(tok *types.Token, at time.Time) error {
		return tok.Retire(types.TokenDamaged, actor, at)
	})
}

// transition loads the token, applies fn and stores the result in one unit
// of work.
func (r *TokenRegistry) transition(ctx context.Context, uid string, fn func(*types.Token, time.Time) error) (types.Token, error) {
	uid = normalizeUID(uid)
	if uid == "" {
		return types.Token{}, apperr.Validation("uid is required")
	}

	var out types.Token
	err := r.store.WithinTx(ctx, func(ctx context.Context, repos store.Repos) error {
		tok, err := repos.TokenByUID(ctx, uid)
		if err != nil {
			return storeErr(err, apperr.CodeWristbandNotFound, "wristband")
		}
		from := tok.Status
		if err := fn(&tok, utcNow()); err != nil {
			return err
		}
		if err := repos.UpdateToken(ctx, tok); err != nil {
			return storeErr(err, apperr.CodeWristbandNotFound, "wristband")
		}
		if from != tok.Status {
			r.logger.Info("wristband status changed",
				zap.String("uid", uid),
				zap.String("from", string(from)),
				zap.String("to", string(tok.Status)),
			)
		}
		out = tok
		return nil
	})
	return out, err
}

// Status is the operator snapshot of a wristband.  An unknown uid is a
// normal result with Found=false.
func (r *TokenRegistry) Status(ctx context.Context, uid string) (types.TokenStatusView, error) {
	uid = normalizeUID(uid)
	view := types.TokenStatusView{UID: uid}

	tok, ok, err := r.FindByUID(ctx, uid)
	if err != nil || !ok {
		return view, err
	}
	view.Found = true
	view.Status = tok.Status
	view.Token = &tok

	identityActive := false
	if tok.Linked() {
		ident, err := r.store.IdentityByID(ctx, *tok.IdentityID)
		switch {
		case err == nil:
			s := ident.Summary()
			view.Identity = &s
			identityActive = ident.Active()
		case !errors.Is(err, store.ErrNotFound):
			return view, err
		}
	}

	acct, err := r.store.AccountByTokenID(ctx, tok.ID)
	switch {
	case err == nil:
		view.Account = &acct
	case !errors.Is(err, store.ErrNotFound):
		return view, err
	}

	view.CanAccess = tok.Status == types.TokenAssigned && identityActive
	return view, nil
}

func (r *TokenRegistry) List(ctx context.Context, f store.TokenFilter, page types.Page) ([]types.Token, types.PageInfo, error) {
	page = page.Normalize()
	toks, total, err := r.store.ListTokens(ctx, f, page)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	return toks, page.Info(total), nil
}
