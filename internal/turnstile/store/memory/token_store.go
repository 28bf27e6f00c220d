package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

func (r *repos) CreateToken(_ context.Context, tok *types.Token) error {
	if _, ok := r.s.tokenIDs[tok.UID]; ok {
		return store.ErrConflict
	}
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	stamp(&tok.CreatedAt)
	if tok.UpdatedAt.IsZero() {
		tok.UpdatedAt = tok.CreatedAt
	}
	remember(r, r.s.tokens, tok.ID)
	remember(r, r.s.tokenIDs, tok.UID)
	r.s.tokens[tok.ID] = *tok
	r.s.tokenIDs[tok.UID] = tok.ID
	return nil
}

func (r *repos) TokenByUID(_ context.Context, uid string) (types.Token, error) {
	id, ok := r.s.tokenIDs[uid]
	if !ok {
		return types.Token{}, store.ErrNotFound
	}
	return r.s.tokens[id], nil
}

func (r *repos) TokenByID(_ context.Context, id string) (types.Token, error) {
	tok, ok := r.s.tokens[id]
	if !ok {
		return types.Token{}, store.ErrNotFound
	}
	return tok, nil
}

// UpdateToken replaces the stored token.  The uid is immutable.
func (r *repos) UpdateToken(_ context.Context, tok types.Token) error {
	cur, ok := r.s.tokens[tok.ID]
	if !ok {
		return store.ErrNotFound
	}
	tok.UID = cur.UID
	tok.CreatedAt = cur.CreatedAt
	remember(r, r.s.tokens, tok.ID)
	r.s.tokens[tok.ID] = tok
	return nil
}

func (r *repos) ListTokens(_ context.Context, f store.TokenFilter, page types.Page) ([]types.Token, int, error) {
	var out []types.Token
	for _, tok := range r.s.tokens {
		if f.Status != "" && tok.Status != f.Status {
			continue
		}
		if f.IdentityID != "" && !tok.LinkedTo(f.IdentityID) {
			continue
		}
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UID < out[j].UID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	lo, hi := page.Window(len(out))
	return out[lo:hi], len(out), nil
}

func (s *Store) CreateToken(ctx context.Context, tok *types.Token) error {
	return s.locked(func(r *repos) error { return r.CreateToken(ctx, tok) })
}

func (s *Store) TokenByUID(ctx context.Context, uid string) (tok types.Token, err error) {
	err = s.locked(func(r *repos) error {
		tok, err = r.TokenByUID(ctx, uid)
		return err
	})
	return tok, err
}

func (s *Store) TokenByID(ctx context.Context, id string) (tok types.Token, err error) {
	err = s.locked(func(r *repos) error {
		tok, err = r.TokenByID(ctx, id)
		return err
	})
	return tok, err
}

func (s *Store) UpdateToken(ctx context.Context, tok types.Token) error {
	return s.locked(func(r *repos) error { return r.UpdateToken(ctx, tok) })
}

func (s *Store) ListTokens(ctx context.Context, f store.TokenFilter, page types.Page) (out []types.Token, total int, err error) {
	err = s.locked(func(r *repos) error {
		out, total, err = r.ListTokens(ctx, f, page)
		return err
	})
	return out, total, err
}
