// Package memory is a process-local implementation of store.Store.  It is
// intended for tests and dev environments: nothing is persisted and there is
// no cross-process safety.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// Store keeps every entity in maps guarded by a single mutex.  WithinTx holds
// the mutex for the whole unit of work, so units of work are serialised.
type Store struct {
	mu sync.Mutex

	tokens   map[string]types.Token // by id
	tokenIDs map[string]string      // uid -> id

	identities map[string]types.Identity
	emails     map[string]string // email -> identity id

	accounts       map[string]types.Account
	accountByToken map[string]string

	txs     map[string]types.Transaction
	txOrder map[string][]string // account id -> tx ids, insert order

	gates    map[string]types.Gate
	gateKeys map[string]string // lower(name|code) -> gate id

	events []types.AccessLogEntry
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tokens:         make(map[string]types.Token),
		tokenIDs:       make(map[string]string),
		identities:     make(map[string]types.Identity),
		emails:         make(map[string]string),
		accounts:       make(map[string]types.Account),
		accountByToken: make(map[string]string),
		txs:            make(map[string]types.Transaction),
		txOrder:        make(map[string][]string),
		gates:          make(map[string]types.Gate),
		gateKeys:       make(map[string]string),
	}
}

// WithinTx runs fn while holding the store lock.  If fn fails, every write
// made through the Repos it was handed is undone in reverse order.  fn must
// only use the Repos argument; calling methods on s would deadlock.
func (s *Store) WithinTx(ctx context.Context, fn store.TxFn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &repos{s: s, undo: []func(){}}
	if err := fn(ctx, r); err != nil {
		r.rollback()
		return err
	}
	return nil
}

// repos implements store.Repos on the maps of s.  The caller holds s.mu.
// undo is nil outside a unit of work.
type repos struct {
	s    *Store
	undo []func()
}

func (r *repos) rollback() {
	for i := len(r.undo) - 1; i >= 0; i-- {
		r.undo[i]()
	}
	r.undo = nil
}

// locked runs fn on a non-transactional repos under the store lock.
func (s *Store) locked(fn func(r *repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&repos{s: s})
}

// remember records how to restore m[k] to its current state.
func remember[K comparable, V any](r *repos, m map[K]V, k K) {
	if r.undo == nil {
		return
	}
	old, ok := m[k]
	r.undo = append(r.undo, func() {
		if ok {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	}
}
