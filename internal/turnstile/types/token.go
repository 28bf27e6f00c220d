package types

import (
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
)

type TokenStatus string

const (
	TokenNew      TokenStatus = "new"
	TokenAssigned TokenStatus = "assigned"
	TokenBlocked  TokenStatus = "blocked"
	TokenLost     TokenStatus = "lost"
	TokenReturned TokenStatus = "returned"
	TokenDamaged  TokenStatus = "damaged"
)

// LostReason is the synthetic block reason recorded by MarkLost.
const LostReason = "reported lost"

func (s TokenStatus) Valid() bool {
	switch s {
	case TokenNew, TokenAssigned, TokenBlocked, TokenLost, TokenReturned, TokenDamaged:
		return true
	}
	return false
}

// Retired reports whether the status has no way back into circulation.
func (s TokenStatus) Retired() bool {
	return s == TokenLost || s == TokenReturned || s == TokenDamaged
}

// Token is a physical wristband.  IdentityID is nil until the token is
// assigned and stays set afterwards, even while blocked.
type Token struct {
	ID          string      `json:"id"`
	UID         string      `json:"uid"`
	BatchCode   string      `json:"batch_code,omitempty"`
	Status      TokenStatus `json:"status"`
	IdentityID  *string     `json:"identity_id,omitempty"`
	BlockReason string      `json:"block_reason,omitempty"`
	BlockedBy   string      `json:"blocked_by,omitempty"`
	BlockedAt   *time.Time  `json:"blocked_at,omitempty"`
	AssignedAt  *time.Time  `json:"assigned_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (t Token) Linked() bool {
	return t.IdentityID != nil && *t.IdentityID != ""
}

func (t Token) LinkedTo(identityID string) bool {
	return t.Linked() && *t.IdentityID == identityID
}

// AssignTo links the token to identityID and moves it to assigned.
// Re-assigning to the same identity is a no-op.
func (t *Token) AssignTo(identityID string, at time.Time) error {
	switch t.Status {
	case TokenBlocked, TokenLost:
		return apperr.WithMetadata(apperr.CodeWristbandBlocked, "wristband is "+string(t.Status),
			map[string]any{"status": t.Status, "block_reason": t.BlockReason})
	case TokenReturned, TokenDamaged:
		return apperr.WithMetadata(apperr.CodeWristbandRetired, "wristband is "+string(t.Status),
			map[string]any{"status": t.Status})
	}
	if t.Linked() && !t.LinkedTo(identityID) {
		return apperr.New(apperr.CodeAlreadyAssigned, "wristband is assigned to another identity")
	}
	if t.LinkedTo(identityID) && t.Status == TokenAssigned {
		return nil
	}
	id := identityID
	t.IdentityID = &id
	t.Status = TokenAssigned
	t.AssignedAt = &at
	t.UpdatedAt = at
	return nil
}

// Block disables the token.  Blocking a blocked token replaces the reason.
func (t *Token) Block(reason, actor string, at time.Time) error {
	if t.Status.Retired() {
		return retiredErr(t.Status)
	}
	t.Status = TokenBlocked
	t.BlockReason = reason
	t.BlockedBy = actor
	t.BlockedAt = &at
	t.UpdatedAt = at
	return nil
}

// Unblock returns a blocked token to assigned when linked, else to new.
func (t *Token) Unblock(at time.Time) error {
	if t.Status.Retired() {
		return retiredErr(t.Status)
	}
	if t.Status != TokenBlocked {
		return apperr.New(apperr.CodeNotBlocked, "wristband is not blocked")
	}
	if t.Linked() {
		t.Status = TokenAssigned
	} else {
		t.Status = TokenNew
	}
	t.BlockReason = ""
	t.BlockedBy = ""
	t.BlockedAt = nil
	t.UpdatedAt = at
	return nil
}

// MarkLost moves any non-retired token to lost.  Marking a lost token lost
// again is accepted and changes nothing.
func (t *Token) MarkLost(actor string, at time.Time) error {
	if t.Status == TokenLost {
		return nil
	}
	if t.Status.Retired() {
		return retiredErr(t.Status)
	}
	t.Status = TokenLost
	t.BlockReason = LostReason
	t.BlockedBy = actor
	t.BlockedAt = &at
	t.UpdatedAt = at
	return nil
}

// Retire moves a token to returned or damaged.
func (t *Token) Retire(status TokenStatus, actor string, at time.Time) error {
	if status != TokenReturned && status != TokenDamaged {
		return apperr.Validation("retire status must be returned or damaged")
	}
	if t.Status == status {
		return nil
	}
	if t.Status.Retired() {
		return retiredErr(t.Status)
	}
	t.Status = status
	t.BlockedBy = actor
	t.UpdatedAt = at
	return nil
}

func retiredErr(s TokenStatus) error {
	return apperr.WithMetadata(apperr.CodeWristbandRetired, "wristband is "+string(s),
		map[string]any{"status": s})
}
