package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

const identityCols = `identity_id, first_name, last_name, email, phone, ticket_type,
  marketing_consent, state, deleted_at_ms, anonymized_at_ms, created_at_ms, updated_at_ms`

func (r repos) CreateIdentity(ctx context.Context, id *types.Identity) error {
	if id.ID == "" {
		id.ID = uuid.NewString()
	}
	if id.State == "" {
		id.State = types.IdentityActive
	}
	if id.CreatedAt.IsZero() {
		id.CreatedAt = now()
	}
	if id.UpdatedAt.IsZero() {
		id.UpdatedAt = id.CreatedAt
	}
	_, err := r.q.ExecContext(ctx, `
INSERT INTO identities(`+identityCols+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		id.ID, id.FirstName, id.LastName, nullStr(id.Email), nullStr(id.Phone), id.TicketType,
		boolInt(id.MarketingConsent), id.State, nullMs(id.DeletedAt), nullMs(id.AnonymizedAt),
		ms(id.CreatedAt), ms(id.UpdatedAt),
	)
	return writeErr("CreateIdentity", err)
}

func (r repos) IdentityByID(ctx context.Context, id string) (types.Identity, error) {
	var (
		ident               types.Identity
		email, phone        sql.NullString
		consent             int
		deleted, anonymized sql.NullInt64
		created, updated    int64
	)
	err := r.q.QueryRowContext(ctx, `SELECT `+identityCols+` FROM identities WHERE identity_id = ?;`, id).
		Scan(&ident.ID, &ident.FirstName, &ident.LastName, &email, &phone, &ident.TicketType,
			&consent, &ident.State, &deleted, &anonymized, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Identity{}, store.ErrNotFound
	}
	if err != nil {
		return types.Identity{}, fmt.Errorf("IdentityByID: %w", err)
	}
	ident.Email = strPtr(email)
	ident.Phone = strPtr(phone)
	ident.MarketingConsent = consent == 1
	ident.DeletedAt = timePtr(deleted)
	ident.AnonymizedAt = timePtr(anonymized)
	ident.CreatedAt = fromMs(created)
	ident.UpdatedAt = fromMs(updated)
	return ident, nil
}

func (r repos) UpdateIdentity(ctx context.Context, ident types.Identity) error {
	if ident.UpdatedAt.IsZero() {
		ident.UpdatedAt = now()
	}
	res, err := r.q.ExecContext(ctx, `
UPDATE identities SET
  first_name = ?, last_name = ?, email = ?, phone = ?, ticket_type = ?,
  marketing_consent = ?, state = ?, deleted_at_ms = ?, anonymized_at_ms = ?, updated_at_ms = ?
WHERE identity_id = ?;`,
		ident.FirstName, ident.LastName, nullStr(ident.Email), nullStr(ident.Phone), ident.TicketType,
		boolInt(ident.MarketingConsent), ident.State, nullMs(ident.DeletedAt), nullMs(ident.AnonymizedAt),
		ms(ident.UpdatedAt), ident.ID,
	)
	if err != nil {
		return writeErr("UpdateIdentity", err)
	}
	return mustAffect(res)
}

func (s *Store) CreateIdentity(ctx context.Context, id *types.Identity) error {
	return s.write(ctx, func(ctx context.Context, r repos) error { return r.CreateIdentity(ctx, id) })
}

func (s *Store) UpdateIdentity(ctx context.Context, ident types.Identity) error {
	return s.write(ctx, func(ctx context.Context, r repos) error { return r.UpdateIdentity(ctx, ident) })
}
