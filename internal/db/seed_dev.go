package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SeedDev creates a public "Main" entrance and a "Backstage" gate restricted
// to backstage and staff tickets.  Existing gates are left alone.
func SeedDev(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC().UnixMilli()

	gates := []struct {
		name, code, zone, allowed string
	}{
		{"Main", "MAIN", "entrance", ""},
		{"Backstage", "BS", "backstage", "backstage,staff"},
	}
	for _, g := range gates {
		if _, err := db.ExecContext(ctx, `
INSERT INTO gates(gate_id, name, code, zone_type, allowed_ticket_types, is_active, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, 1, ?, ?)
ON CONFLICT(name) DO NOTHING;`,
			uuid.NewString(), g.name, g.code, g.zone, g.allowed, now, now,
		); err != nil {
			return fmt.Errorf("seed gate %s: %w", g.name, err)
		}
	}
	return nil
}
