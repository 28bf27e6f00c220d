package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

func (r *repos) CreateIdentity(_ context.Context, id *types.Identity) error {
	if id.Email != nil {
		if _, taken := r.s.emails[*id.Email]; taken {
			return store.ErrConflict
		}
	}
	if id.ID == "" {
		id.ID = uuid.NewString()
	}
	if id.State == "" {
		id.State = types.IdentityActive
	}
	stamp(&id.CreatedAt)
	if id.UpdatedAt.IsZero() {
		id.UpdatedAt = id.CreatedAt
	}
	remember(r, r.s.identities, id.ID)
	r.s.identities[id.ID] = *id
	if id.Email != nil {
		remember(r, r.s.emails, *id.Email)
		r.s.emails[*id.Email] = id.ID
	}
	return nil
}

func (r *repos) IdentityByID(_ context.Context, id string) (types.Identity, error) {
	ident, ok := r.s.identities[id]
	if !ok {
		return types.Identity{}, store.ErrNotFound
	}
	return ident, nil
}

func (r *repos) UpdateIdentity(_ context.Context, ident types.Identity) error {
	cur, ok := r.s.identities[ident.ID]
	if !ok {
		return store.ErrNotFound
	}
	if ident.Email != nil {
		if owner, taken := r.s.emails[*ident.Email]; taken && owner != ident.ID {
			return store.ErrConflict
		}
	}
	if cur.Email != nil && (ident.Email == nil || *ident.Email != *cur.Email) {
		remember(r, r.s.emails, *cur.Email)
		delete(r.s.emails, *cur.Email)
	}
	if ident.Email != nil {
		remember(r, r.s.emails, *ident.Email)
		r.s.emails[*ident.Email] = ident.ID
	}
	ident.CreatedAt = cur.CreatedAt
	remember(r, r.s.identities, ident.ID)
	r.s.identities[ident.ID] = ident
	return nil
}

func (s *Store) CreateIdentity(ctx context.Context, id *types.Identity) error {
	return s.locked(func(r *repos) error { return r.CreateIdentity(ctx, id) })
}

func (s *Store) IdentityByID(ctx context.Context, id string) (ident types.Identity, err error) {
	err = s.locked(func(r *repos) error {
		ident, err = r.IdentityByID(ctx, id)
		return err
	})
	return ident, err
}

func (s *Store) UpdateIdentity(ctx context.Context, ident types.Identity) error {
	return s.locked(func(r *repos) error { return r.UpdateIdentity(ctx, ident) })
}
