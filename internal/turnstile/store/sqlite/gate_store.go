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

const gateCols = `gate_id, name, code, zone_type, allowed_ticket_types, is_active, created_at_ms, updated_at_ms`

func joinTicketTypes(ts []types.TicketType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func splitTicketTypes(s string) []types.TicketType {
	if s == "" {
		return nil
	}
	var out []types.TicketType
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, types.TicketType(p))
		}
	}
	return out
}

func scanGate(row rowScanner) (types.Gate, error) {
	var (
		g                types.Gate
		code             sql.NullString
		allowed          string
		active           int
		created, updated int64
	)
	if err := row.Scan(&g.ID, &g.Name, &code, &g.ZoneType, &allowed, &active, &created, &updated); err != nil {
		return types.Gate{}, err
	}
	g.Code = code.String
	g.AllowedTicketTypes = splitTicketTypes(allowed)
	g.IsActive = active == 1
	g.CreatedAt = fromMs(created)
	g.UpdatedAt = fromMs(updated)
	return g, nil
}

// upsertGate inserts g or updates the gate with the same name.  Names and
// codes share one namespace, so a name or code already used by another gate
// is a conflict.
func (r repos) upsertGate(ctx context.Context, g *types.Gate) error {
	var code any
	if g.Code != "" {
		code = g.Code
	}

	var existingID string
	var createdMs int64
	err := r.q.QueryRowContext(ctx, `SELECT gate_id, created_at_ms FROM gates WHERE name = ?;`, g.Name).
		Scan(&existingID, &createdMs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("UpsertGate lookup: %w", err)
	}

	var clashes int
	if err := r.q.QueryRowContext(ctx, `
SELECT COUNT(*) FROM gates
WHERE gate_id <> ? AND (code = ? OR name = ? OR code = ?);`,
		existingID, g.Name, code, code).Scan(&clashes); err != nil {
		return fmt.Errorf("UpsertGate clash check: %w", err)
	}
	if clashes > 0 {
		return store.ErrConflict
	}

	at := now()
	g.UpdatedAt = at
	if existingID != "" {
		g.ID = existingID
		g.CreatedAt = fromMs(createdMs)
		_, err = r.q.ExecContext(ctx, `
UPDATE gates SET code = ?, zone_type = ?, allowed_ticket_types = ?, is_active = ?, updated_at_ms = ?
WHERE gate_id = ?;`,
			code, g.ZoneType, joinTicketTypes(g.AllowedTicketTypes), boolInt(g.IsActive), ms(at), g.ID)
		return writeErr("UpsertGate update", err)
	}

	g.ID = uuid.NewString()
	g.CreatedAt = at
	_, err = r.q.ExecContext(ctx, `
INSERT INTO gates(`+gateCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		g.ID, g.Name, code, g.ZoneType, joinTicketTypes(g.AllowedTicketTypes), boolInt(g.IsActive),
		ms(at), ms(at))
	return writeErr("UpsertGate insert", err)
}

func (s *Store) UpsertGate(ctx context.Context, g *types.Gate) error {
	return s.write(ctx, func(ctx context.Context, r repos) error { return r.upsertGate(ctx, g) })
}

// GateByName matches name or code case-insensitively.
func (r repos) GateByName(ctx context.Context, nameOrCode string) (types.Gate, error) {
	key := strings.TrimSpace(nameOrCode)
	g, err := scanGate(r.q.QueryRowContext(ctx,
		`SELECT `+gateCols+` FROM gates WHERE name = ? OR code = ? ORDER BY name = ? DESC LIMIT 1;`,
		key, key, key))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Gate{}, store.ErrNotFound
	}
	if err != nil {
		return types.Gate{}, fmt.Errorf("GateByName: %w", err)
	}
	return g, nil
}

func (r repos) ListGates(ctx context.Context) ([]types.Gate, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+gateCols+` FROM gates ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("ListGates: %w", err)
	}
	defer rows.Close()

	var out []types.Gate
	for rows.Next() {
		g, err := scanGate(rows)
		if err != nil {
			return nil, fmt.Errorf("ListGates scan: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
