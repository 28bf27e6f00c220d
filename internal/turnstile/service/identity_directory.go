package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

type IdentityDirectory struct {
	store  store.Store
	logger *zap.Logger
}

func NewIdentityDirectory(st store.Store, logger *zap.Logger) *IdentityDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityDirectory{store: st, logger: logger}
}

// buildIdentity validates n and returns the identity to insert.  Emails are
// compared case-insensitively, so they are stored lower-cased.
func buildIdentity(n types.NewIdentity) (types.Identity, error) {
	first := strings.TrimSpace(n.FirstName)
	last := strings.TrimSpace(n.LastName)
	if first == "" && last == "" {
		return types.Identity{}, apperr.Validation("first_name or last_name is required")
	}
	tt := n.TicketType
	if tt == "" {
		tt = types.TicketStandard
	}
	if !tt.Valid() {
		return types.Identity{}, apperr.WithMetadata(apperr.CodeValidation, "unknown ticket_type",
			map[string]any{"ticket_type": tt})
	}

	ident := types.Identity{
		FirstName:        first,
		LastName:         last,
		TicketType:       tt,
		MarketingConsent: n.MarketingConsent,
		State:            types.IdentityActive,
	}
	if email := strings.ToLower(strings.TrimSpace(n.Email)); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return types.Identity{}, apperr.Validation("email is not a valid address")
		}
		ident.Email = &email
	}
	if phone := strings.TrimSpace(n.Phone); phone != "" {
		ident.Phone = &phone
	}
	return ident, nil
}

func (d *IdentityDirectory) Create(ctx context.Context, n types.NewIdentity) (types.Identity, error) {
	ident, err := buildIdentity(n)
	if err != nil {
		return types.Identity{}, err
	}
	now := utcNow()
	ident.CreatedAt, ident.UpdatedAt = now, now
	if err := d.store.CreateIdentity(ctx, &ident); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Identity{}, apperr.New(apperr.CodeConflict, "an identity with this email already exists")
		}
		return types.Identity{}, storeErr(err, apperr.CodeIdentityNotFound, "identity")
	}
	return ident, nil
}

func (d *IdentityDirectory) Get(ctx context.Context, id string) (types.Identity, error) {
	ident, err := d.store.IdentityByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return types.Identity{}, storeErr(err, apperr.CodeIdentityNotFound, "identity")
	}
	return ident, nil
}

// SoftDelete flags an active identity as deleted.  Linked wristbands keep
// their link but stop passing gates.
func (d *IdentityDirectory) SoftDelete(ctx context.Context, id, actor string) (types.Identity, error) {
	return d.update(ctx, id, actor, "identity soft-deleted", func(ident *types.Identity) {
		ident.SoftDelete(utcNow())
	})
}

// Anonymize erases every personal field of the identity.  The row and its
// wristband links survive so ledger and access statistics stay intact.
func (d *IdentityDirectory) Anonymize(ctx context.Context, id, actor string) (types.Identity, error) {
	return d.update(ctx, id, actor, "identity anonymized", func(ident *types.Identity) {
		if ident.State != types.IdentityAnonymized {
			ident.Anonymize(utcNow())
		}
	})
}

func (d *IdentityDirectory) update(ctx context.Context, id, actor, msg string, fn func(*types.Identity)) (types.Identity, error) {
	id = strings.TrimSpace(id)
	var out types.Identity
	err := d.store.WithinTx(ctx, func(ctx context.Context, repos store.Repos) error {
		ident, err := repos.IdentityByID(ctx, id)
		if err != nil {
			return storeErr(err, apperr.CodeIdentityNotFound, "identity")
		}
		fn(&ident)
		if err := repos.UpdateIdentity(ctx, ident); err != nil {
			return storeErr(err, apperr.CodeIdentityNotFound, "identity")
		}
		out = ident
		return nil
	})
	if err != nil {
		return types.Identity{}, err
	}
	d.logger.Info(msg, zap.String("identity_id", id), zap.String("actor", actor))
	return out, nil
}
