// Package store declares the repository interfaces the turnstile services
// depend on.  Two implementations exist: store/sqlite (durable) and
// store/memory (tests and local development only).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrInsufficientFunds is returned by AdjustBalance when the balance
	// would drop below zero.  Nothing is written.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrBalanceCeiling is returned by AdjustBalance when the balance would
	// exceed types.MaxBalanceCents.  Nothing is written.
	ErrBalanceCeiling = errors.New("balance ceiling exceeded")
	// ErrAlreadyReversed is returned by MarkReversed when the transaction's
	// reversal flag is already set.
	ErrAlreadyReversed = errors.New("transaction already reversed")
)

type TokenFilter struct {
	Status     types.TokenStatus
	IdentityID string
}

type TokenStore interface {
	CreateToken(ctx context.Context, tok *types.Token) error
	TokenByUID(ctx context.Context, uid string) (types.Token, error)
	TokenByID(ctx context.Context, id string) (types.Token, error)
	UpdateToken(ctx context.Context, tok types.Token) error
	ListTokens(ctx context.Context, f TokenFilter, page types.Page) ([]types.Token, int, error)
}

type IdentityStore interface {
	CreateIdentity(ctx context.Context, id *types.Identity) error
	IdentityByID(ctx context.Context, id string) (types.Identity, error)
	UpdateIdentity(ctx context.Context, id types.Identity) error
}

// AccountStore never exposes a balance setter.  AdjustBalance is the only
// way to move money and it refuses to go below zero.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct *types.Account) error
	AccountByID(ctx context.Context, id string) (types.Account, error)
	AccountByTokenID(ctx context.Context, tokenID string) (types.Account, error)
	AdjustBalance(ctx context.Context, accountID string, delta int64, at time.Time) (int64, error)
	UpdateAccountSettings(ctx context.Context, acct types.Account) error
}

// TransactionStore is append-only apart from MarkReversed.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByID(ctx context.Context, id string) (types.Transaction, error)
	MarkReversed(ctx context.Context, id string, at time.Time, by string) error
	// ListTransactions returns an account's transactions most recent first.
	ListTransactions(ctx context.Context, accountID string, page types.Page) ([]types.Transaction, int, error)
	// SumPurchasesSince returns the positive spend of non-reversed purchases
	// created at or after since.
	SumPurchasesSince(ctx context.Context, accountID string, since time.Time) (int64, error)
	TransactionTotals(ctx context.Context) ([]types.TransactionTotal, error)
}

// Repos is the set of repositories usable inside a unit of work.
type Repos interface {
	TokenStore
	IdentityStore
	AccountStore
	TransactionStore
}

type GateStore interface {
	UpsertGate(ctx context.Context, g *types.Gate) error
	// GateByName resolves a gate by its name or its code.
	GateByName(ctx context.Context, nameOrCode string) (types.Gate, error)
	ListGates(ctx context.Context) ([]types.Gate, error)
}

type AccessLogFilter struct {
	TokenUID  string
	Gate      string
	Status    types.AccessStatus
	Direction types.Direction
	Since     *time.Time
	Until     *time.Time
}

// AccessLogStore persists access decisions as an append-only audit log.
type AccessLogStore interface {
	// RecordEvent inserts e and sets e.ID.
	RecordEvent(ctx context.Context, e *types.AccessLogEntry) error
	// ListEvents returns matching entries most recent first.
	ListEvents(ctx context.Context, f AccessLogFilter, page types.Page) ([]types.AccessLogEntry, int, error)
	// EventsAfter returns up to limit entries with ID > afterID in ID order.
	EventsAfter(ctx context.Context, afterID int64, limit int) ([]types.AccessLogEntry, error)
}

// TxFn is a unit of work.  Returning an error rolls back every write made
// through r.
type TxFn func(ctx context.Context, r Repos) error

type Store interface {
	Repos
	GateStore
	AccessLogStore
	WithinTx(ctx context.Context, fn TxFn) error
}
