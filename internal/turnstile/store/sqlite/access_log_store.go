package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

const accessCols = `log_id, token_id, token_uid, gate, direction, status, reason_code, reason,
  operator, latitude, longitude, requested_at_ms, created_at_ms`

// RecordEvent appends one audit row and sets e.ID from the autoincrement key.
func (s *Store) RecordEvent(ctx context.Context, e *types.AccessLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}

	var lat, lon any
	if e.Latitude != nil {
		lat = *e.Latitude
	}
	if e.Longitude != nil {
		lon = *e.Longitude
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO access_log(
  token_id, token_uid, gate, direction, status, reason_code, reason,
  operator, latitude, longitude, requested_at_ms, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			nullStr(e.TokenID), e.TokenUID, e.Gate, e.Direction, e.Status, e.ReasonCode, e.Reason,
			e.Operator, lat, lon, nullMs(e.RequestedAt), ms(e.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("RecordEvent id: %w", err)
		}
		e.ID = id
		return nil
	})
}

func scanAccess(row rowScanner) (types.AccessLogEntry, error) {
	var (
		e         types.AccessLogEntry
		tokenID   sql.NullString
		lat, lon  sql.NullFloat64
		requested sql.NullInt64
		created   int64
	)
	if err := row.Scan(&e.ID, &tokenID, &e.TokenUID, &e.Gate, &e.Direction, &e.Status,
		&e.ReasonCode, &e.Reason, &e.Operator, &lat, &lon, &requested, &created); err != nil {
		return types.AccessLogEntry{}, err
	}
	e.TokenID = strPtr(tokenID)
	if lat.Valid {
		v := lat.Float64
		e.Latitude = &v
	}
	if lon.Valid {
		v := lon.Float64
		e.Longitude = &v
	}
	e.RequestedAt = timePtr(requested)
	e.CreatedAt = fromMs(created)
	return e, nil
}

func (r repos) scanAccessRows(ctx context.Context, query string, args ...any) ([]types.AccessLogEntry, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.AccessLogEntry
	for rows.Next() {
		e, err := scanAccess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r repos) ListEvents(ctx context.Context, f store.AccessLogFilter, page types.Page) ([]types.AccessLogEntry, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if f.TokenUID != "" {
		add("token_uid = ?", f.TokenUID)
	}
	if f.Gate != "" {
		add("gate = ? COLLATE NOCASE", f.Gate)
	}
	if f.Status != "" {
		add("status = ?", f.Status)
	}
	if f.Direction != "" {
		add("direction = ?", f.Direction)
	}
	if f.Since != nil {
		add("created_at_ms >= ?", ms(*f.Since))
	}
	if f.Until != nil {
		add("created_at_ms < ?", ms(*f.Until))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_log`+where+`;`, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}
	limit, offset := limitOffset(page.PerPage, page.Offset())
	out, err := r.scanAccessRows(ctx,
		`SELECT `+accessCols+` FROM access_log`+where+` ORDER BY log_id DESC LIMIT ? OFFSET ?;`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents: %w", err)
	}
	return out, total, nil
}

func (r repos) EventsAfter(ctx context.Context, afterID int64, limit int) ([]types.AccessLogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	out, err := r.scanAccessRows(ctx,
		`SELECT `+accessCols+` FROM access_log WHERE log_id > ? ORDER BY log_id LIMIT ?;`,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("EventsAfter: %w", err)
	}
	return out, nil
}
