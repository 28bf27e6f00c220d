// Package sqlite implements store.Store on SQLite.  Reads go straight to the
// pool; every write runs as a transaction on the single-writer db.Worker.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	dbpkg "github.com/BrandonDHaskell/turnstile/internal/db"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repos implements the repository methods against q.  Bound to the pool it
// serves reads; bound to a worker transaction it serves a unit of work.
type repos struct {
	q queryer
}

// Store embeds a pool-bound repos for reads and shadows each write method so
// it runs through the worker.
type Store struct {
	repos
	db     *sql.DB
	writer *dbpkg.Worker
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{repos: repos{q: db}, db: db, writer: writer}
}

func (s *Store) WithinTx(ctx context.Context, fn store.TxFn) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, repos{q: tx})
	})
}

func (s *Store) write(ctx context.Context, fn func(ctx context.Context, r repos) error) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, repos{q: tx})
	})
}

// ── Error mapping ────────────────────────────────────────────────────────────

func sqliteCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

func isUnique(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func isForeignKey(err error) bool {
	return sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

func isCheck(err error) bool {
	return sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_CHECK
}

// writeErr turns constraint violations into store sentinels and annotates
// anything else with op.
func writeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isUnique(err):
		return store.ErrConflict
	case isForeignKey(err):
		return store.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// mustAffect reports store.ErrNotFound when an UPDATE matched no row.
func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ── Column helpers ───────────────────────────────────────────────────────────

func ms(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMs(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullMs(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ms(*t)
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMs(v.Int64)
	return &t
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func now() time.Time { return time.Now().UTC() }

// limitOffset renders a page as LIMIT/OFFSET arguments.  SQLite treats a
// negative limit as "no limit".
func limitOffset(perPage, offset int) (int, int) {
	if perPage <= 0 {
		return -1, 0
	}
	return perPage, offset
}
