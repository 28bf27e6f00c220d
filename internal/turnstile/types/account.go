package types

import (
	"errors"
	"time"
)

// Monetary ceilings.  A single movement is at most MaxAmountCents and a
// wallet holds at most MaxBalanceCents, so no balance or ledger sum can get
// near the int64 range.
const (
	MaxAmountCents  int64 = 10_000_000_000    // 100 million major units
	MaxBalanceCents int64 = 1_000_000_000_000 // 10 billion major units
)

var (
	// ErrNegativeBalance is returned by Account.ApplyDelta when the change
	// would take the balance below zero.
	ErrNegativeBalance = errors.New("balance would become negative")
	// ErrBalanceCeiling is returned by Account.ApplyDelta when the change
	// would take the balance above MaxBalanceCents.
	ErrBalanceCeiling = errors.New("balance would exceed the wallet ceiling")
)

// Account is the wallet bound to one assigned token.  BalanceCents is a cache
// of the ledger and only changes through ApplyDelta (in memory) or the
// store's conditional balance update (SQLite).
type Account struct {
	ID              string    `json:"id"`
	TokenID         string    `json:"token_id"`
	BalanceCents    int64     `json:"balance_cents"`
	IsActive        bool      `json:"is_active"`
	TxLimitCents    *int64    `json:"tx_limit_cents,omitempty"`
	DailyLimitCents *int64    `json:"daily_limit_cents,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ApplyDelta adds delta to the balance, keeping it within
// [0, MaxBalanceCents].
func (a *Account) ApplyDelta(delta int64, at time.Time) error {
	if delta > MaxBalanceCents-a.BalanceCents {
		return ErrBalanceCeiling
	}
	if delta < -a.BalanceCents {
		return ErrNegativeBalance
	}
	next := a.BalanceCents + delta
	a.BalanceCents = next
	a.UpdatedAt = at
	return nil
}

// AccountSettings is the mutable, non-monetary part of an Account.
type AccountSettings struct {
	IsActive        *bool  `json:"is_active,omitempty"`
	TxLimitCents    *int64 `json:"tx_limit_cents,omitempty"`
	DailyLimitCents *int64 `json:"daily_limit_cents,omitempty"`
	// ClearLimits removes both limits before applying the ones above.
	ClearLimits bool `json:"clear_limits,omitempty"`
}

func (a *Account) Apply(s AccountSettings, at time.Time) {
	if s.ClearLimits {
		a.TxLimitCents = nil
		a.DailyLimitCents = nil
	}
	if s.IsActive != nil {
		a.IsActive = *s.IsActive
	}
	if s.TxLimitCents != nil {
		v := *s.TxLimitCents
		a.TxLimitCents = &v
	}
	if s.DailyLimitCents != nil {
		v := *s.DailyLimitCents
		a.DailyLimitCents = &v
	}
	a.UpdatedAt = at
}
