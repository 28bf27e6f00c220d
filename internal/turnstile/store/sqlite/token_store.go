package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

const tokenCols = `token_id, uid, batch_code, status, identity_id, block_reason, blocked_by,
  blocked_at_ms, assigned_at_ms, created_at_ms, updated_at_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (types.Token, error) {
	var (
		tok                 types.Token
		identityID          sql.NullString
		blockedAt, assigned sql.NullInt64
		created, updated    int64
	)
	if err := row.Scan(&tok.ID, &tok.UID, &tok.BatchCode, &tok.Status, &identityID,
		&tok.BlockReason, &tok.BlockedBy, &blockedAt, &assigned, &created, &updated); err != nil {
		return types.Token{}, err
	}
	tok.IdentityID = strPtr(identityID)
	tok.BlockedAt = timePtr(blockedAt)
	tok.AssignedAt = timePtr(assigned)
	tok.CreatedAt = fromMs(created)
	tok.UpdatedAt = fromMs(updated)
	return tok, nil
}

func (r repos) CreateToken(ctx context.Context, tok *types.Token) error {
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = now()
	}
	if tok.UpdatedAt.IsZero() {
		tok.UpdatedAt = tok.CreatedAt
	}
	_, err := r.q.ExecContext(ctx, `
INSERT INTO tokens(`+tokenCols+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		tok.ID, tok.UID, tok.BatchCode, tok.Status, nullStr(tok.IdentityID),
		tok.BlockReason, tok.BlockedBy, nullMs(tok.BlockedAt), nullMs(tok.AssignedAt),
		ms(tok.CreatedAt), ms(tok.UpdatedAt),
	)
	return writeErr("CreateToken", err)
}

func (r repos) tokenWhere(ctx context.Context, where string, arg any) (types.Token, error) {
	tok, err := scanToken(r.q.QueryRowContext(ctx,
		`SELECT `+tokenCols+` FROM tokens WHERE `+where+`;`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Token{}, store.ErrNotFound
	}
	if err != nil {
		return types.Token{}, fmt.Errorf("token query: %w", err)
	}
	return tok, nil
}

func (r repos) TokenByUID(ctx context.Context, uid string) (types.Token, error) {
	return r.tokenWhere(ctx, "uid = ?", uid)
}

func (r repos) TokenByID(ctx context.Context, id string) (types.Token, error) {
	return r.tokenWhere(ctx, "token_id = ?", id)
}

func (r repos) UpdateToken(ctx context.Context, tok types.Token) error {
	if tok.UpdatedAt.IsZero() {
		tok.UpdatedAt = now()
	}
	res, err := r.q.ExecContext(ctx, `
UPDATE tokens SET
  batch_code = ?, status = ?, identity_id = ?, block_reason = ?, blocked_by = ?,
  blocked_at_ms = ?, assigned_at_ms = ?, updated_at_ms = ?
WHERE token_id = ?;`,
		tok.BatchCode, tok.Status, nullStr(tok.IdentityID), tok.BlockReason, tok.BlockedBy,
		nullMs(tok.BlockedAt), nullMs(tok.AssignedAt), ms(tok.UpdatedAt), tok.ID,
	)
	if err != nil {
		return writeErr("UpdateToken", err)
	}
	return mustAffect(res)
}

func (r repos) ListTokens(ctx context.Context, f store.TokenFilter, page types.Page) ([]types.Token, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.IdentityID != "" {
		conds = append(conds, "identity_id = ?")
		args = append(args, f.IdentityID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tokens`+where+`;`, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListTokens count: %w", err)
	}

	limit, offset := limitOffset(page.PerPage, page.Offset())
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+tokenCols+` FROM tokens`+where+` ORDER BY created_at_ms, uid LIMIT ? OFFSET ?;`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListTokens: %w", err)
	}
	defer rows.Close()

	var out []types.Token
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListTokens scan: %w", err)
		}
		out = append(out, tok)
	}
	return out, total, rows.Err()
}

func (s *Store) CreateToken(ctx context.Context, tok *types.Token) error {
	return s.write(ctx, func(ctx context.Context, r repos) error { return r.CreateToken(ctx, tok) })
}

func (s *Store) UpdateToken(ctx context.Context, tok types.Token) error {
	return s.write(ctx, func(ctx context.Context, r repos) error { return r.UpdateToken(ctx, tok) })
}
