package memory

import (
	"context"
	"strings"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

func (s *Store) RecordEvent(_ context.Context, e *types.AccessLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&e.CreatedAt)
	e.ID = int64(len(s.events)) + 1
	s.events = append(s.events, *e)
	return nil
}

func matches(e types.AccessLogEntry, f store.AccessLogFilter) bool {
	switch {
	case f.TokenUID != "" && e.TokenUID != f.TokenUID:
		return false
	case f.Gate != "" && !strings.EqualFold(e.Gate, f.Gate):
		return false
	case f.Status != "" && e.Status != f.Status:
		return false
	case f.Direction != "" && e.Direction != f.Direction:
		return false
	case f.Since != nil && e.CreatedAt.Before(*f.Since):
		return false
	case f.Until != nil && !e.CreatedAt.Before(*f.Until):
		return false
	}
	return true
}

func (s *Store) ListEvents(_ context.Context, f store.AccessLogFilter, page types.Page) ([]types.AccessLogEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.AccessLogEntry
	for i := len(s.events) - 1; i >= 0; i-- {
		if matches(s.events[i], f) {
			out = append(out, s.events[i])
		}
	}
	lo, hi := page.Window(len(out))
	return out[lo:hi], len(out), nil
}

func (s *Store) EventsAfter(_ context.Context, afterID int64, limit int) ([]types.AccessLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if afterID < 0 {
		afterID = 0
	}
	if afterID >= int64(len(s.events)) {
		return nil, nil
	}
	rest := s.events[afterID:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	return append([]types.AccessLogEntry(nil), rest...), nil
}

// Events returns a copy of the whole log in insertion order.
func (s *Store) Events() []types.AccessLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.AccessLogEntry(nil), s.events...)
}
