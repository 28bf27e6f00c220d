package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

func gateKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// UpsertGate inserts g or updates the gate with the same name.  A code that
// already belongs to another gate is a conflict.
func (s *Store) UpsertGate(_ context.Context, g *types.Gate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := s.gateKeys[gateKey(g.Name)]; ok {
		cur := s.gates[id]
		if gateKey(cur.Name) != gateKey(g.Name) {
			// The name collides with another gate's code.
			return store.ErrConflict
		}
		g.ID = id
		g.CreatedAt = cur.CreatedAt
	}
	if g.Code != "" {
		if owner, ok := s.gateKeys[gateKey(g.Code)]; ok && owner != g.ID {
			return store.ErrConflict
		}
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
		g.CreatedAt = now
	}
	if old, ok := s.gates[g.ID]; ok && old.Code != "" && gateKey(old.Code) != gateKey(g.Code) {
		delete(s.gateKeys, gateKey(old.Code))
	}
	g.UpdatedAt = now
	g.AllowedTicketTypes = slices.Clone(g.AllowedTicketTypes)
	s.gates[g.ID] = *g
	s.gateKeys[gateKey(g.Name)] = g.ID
	if g.Code != "" {
		s.gateKeys[gateKey(g.Code)] = g.ID
	}
	return nil
}

func (s *Store) GateByName(_ context.Context, nameOrCode string) (types.Gate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.gateKeys[gateKey(nameOrCode)]
	if !ok {
		return types.Gate{}, store.ErrNotFound
	}
	g := s.gates[id]
	g.AllowedTicketTypes = slices.Clone(g.AllowedTicketTypes)
	return g, nil
}

func (s *Store) ListGates(_ context.Context) ([]types.Gate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Gate, 0, len(s.gates))
	for _, g := range s.gates {
		g.AllowedTicketTypes = slices.Clone(g.AllowedTicketTypes)
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
