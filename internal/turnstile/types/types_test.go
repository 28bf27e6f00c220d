package types_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

var now = time.Date(2026, 7, 4, 18, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

// ── Token lifecycle ──────────────────────────────────────────────────────────

func TestToken_AssignFromNew(t *testing.T) {
	tok := types.Token{UID: "T1", Status: types.TokenNew}

	require.NoError(t, tok.AssignTo("id-1", now))
	assert.Equal(t, types.TokenAssigned, tok.Status)
	assert.True(t, tok.LinkedTo("id-1"))
	require.NotNil(t, tok.AssignedAt)
}

func TestToken_AssignSameIdentityIsNoop(t *testing.T) {
	tok := types.Token{UID: "T1", Status: types.TokenNew}
	require.NoError(t, tok.AssignTo("id-1", now))

	require.NoError(t, tok.AssignTo("id-1", now.Add(time.Hour)))
	assert.Equal(t, now, *tok.AssignedAt)
}

func TestToken_AssignRejections(t *testing.T) {
	tests := []struct {
		name   string
		token  types.Token
		target string
		code   apperr.Code
	}{
		{"blocked", types.Token{Status: types.TokenBlocked}, "id-1", apperr.CodeWristbandBlocked},
		{"lost", types.Token{Status: types.TokenLost}, "id-1", apperr.CodeWristbandBlocked},
		{"returned", types.Token{Status: types.TokenReturned}, "id-1", apperr.CodeWristbandRetired},
		{"damaged", types.Token{Status: types.TokenDamaged}, "id-1", apperr.CodeWristbandRetired},
		{"other identity", types.Token{Status: types.TokenAssigned, IdentityID: ptr("id-2")}, "id-1", apperr.CodeAlreadyAssigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := tt.token
			err := tok.AssignTo(tt.target, now)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
			assert.Equal(t, tt.token.Status, tok.Status)
		})
	}
}

func TestToken_BlockUnblockRoundTrip(t *testing.T) {
	tok := types.Token{Status: types.TokenNew}
	require.NoError(t, tok.AssignTo("id-1", now))

	require.NoError(t, tok.Block("reported stolen", "ops", now))
	assert.Equal(t, types.TokenBlocked, tok.Status)
	assert.Equal(t, "reported stolen", tok.BlockReason)

	require.NoError(t, tok.Block("fraud review", "ops", now))
	assert.Equal(t, "fraud review", tok.BlockReason, "re-block updates the reason")

	require.NoError(t, tok.Unblock(now))
	assert.Equal(t, types.TokenAssigned, tok.Status)
	assert.Empty(t, tok.BlockReason)
}

func TestToken_UnblockUnlinkedReturnsToNew(t *testing.T) {
	tok := types.Token{Status: types.TokenNew}
	require.NoError(t, tok.Block("batch recall", "ops", now))

	require.NoError(t, tok.Unblock(now))
	assert.Equal(t, types.TokenNew, tok.Status)
}

func TestToken_UnblockRequiresBlocked(t *testing.T) {
	tok := types.Token{Status: types.TokenNew}
	assert.Equal(t, apperr.CodeNotBlocked, apperr.CodeOf(tok.Unblock(now)))
}

func TestToken_LostHasNoWayBack(t *testing.T) {
	tok := types.Token{Status: types.TokenAssigned, IdentityID: ptr("id-1")}
	require.NoError(t, tok.MarkLost("ops", now))
	assert.Equal(t, types.TokenLost, tok.Status)
	assert.Equal(t, types.LostReason, tok.BlockReason)

	require.NoError(t, tok.MarkLost("ops", now), "marking lost twice is accepted")
	assert.Equal(t, apperr.CodeWristbandRetired, apperr.CodeOf(tok.Unblock(now)))
	assert.Equal(t, apperr.CodeWristbandRetired, apperr.CodeOf(tok.Block("x", "ops", now)))
}

func TestToken_Retire(t *testing.T) {
	tok := types.Token{Status: types.TokenAssigned, IdentityID: ptr("id-1")}
	require.NoError(t, tok.Retire(types.TokenReturned, "ops", now))
	assert.Equal(t, types.TokenReturned, tok.Status)

	require.NoError(t, tok.Retire(types.TokenReturned, "ops", now))
	assert.Equal(t, apperr.CodeWristbandRetired, apperr.CodeOf(tok.Retire(types.TokenDamaged, "ops", now)))
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(tok.Retire(types.TokenBlocked, "ops", now)))
}

// ── Identity ─────────────────────────────────────────────────────────────────

func TestIdentity_AnonymizeClearsPII(t *testing.T) {
	id := types.Identity{
		FirstName:        "Jane",
		LastName:         "Doe",
		Email:            ptr("jane@example.com"),
		Phone:            ptr("+100000"),
		TicketType:       types.TicketVIP,
		MarketingConsent: true,
		State:            types.IdentityActive,
	}

	id.Anonymize(now)

	assert.Empty(t, id.FirstName)
	assert.Empty(t, id.LastName)
	assert.Nil(t, id.Email)
	assert.Nil(t, id.Phone)
	assert.False(t, id.MarketingConsent)
	assert.Equal(t, types.IdentityAnonymized, id.State)
	assert.Equal(t, types.TicketVIP, id.TicketType, "ticket type is kept for statistics")
	assert.False(t, id.Active())
}

func TestIdentity_SummaryHasNoContactData(t *testing.T) {
	id := types.Identity{FirstName: "Jane", LastName: "Doe", Email: ptr("jane@example.com"), TicketType: types.TicketStandard}
	assert.Equal(t, types.IdentitySummary{Name: "Jane Doe", TicketType: types.TicketStandard}, id.Summary())
}

// ── Gate / Account ───────────────────────────────────────────────────────────

func TestGate_Allows(t *testing.T) {
	open := types.Gate{Name: "Main"}
	backstage := types.Gate{Name: "Backstage", AllowedTicketTypes: []types.TicketType{types.TicketBackstage, types.TicketStaff}}

	assert.True(t, open.Allows(types.TicketStandard))
	assert.True(t, backstage.Allows(types.TicketStaff))
	assert.False(t, backstage.Allows(types.TicketStandard))
}

func TestAccount_ApplyDeltaNeverNegative(t *testing.T) {
	acct := types.Account{BalanceCents: 2000}

	assert.ErrorIs(t, acct.ApplyDelta(-2001, now), types.ErrNegativeBalance)
	assert.Equal(t, int64(2000), acct.BalanceCents)

	require.NoError(t, acct.ApplyDelta(-2000, now))
	assert.Equal(t, int64(0), acct.BalanceCents)
}

func TestAccount_ApplyDeltaCeiling(t *testing.T) {
	acct := types.Account{BalanceCents: 10}

	assert.ErrorIs(t, acct.ApplyDelta(math.MaxInt64, now), types.ErrBalanceCeiling)
	assert.ErrorIs(t, acct.ApplyDelta(math.MinInt64, now), types.ErrNegativeBalance)
	assert.Equal(t, int64(10), acct.BalanceCents)

	require.NoError(t, acct.ApplyDelta(types.MaxBalanceCents-10, now))
	assert.Equal(t, types.MaxBalanceCents, acct.BalanceCents)
	assert.ErrorIs(t, acct.ApplyDelta(1, now), types.ErrBalanceCeiling)
}

func TestAccount_ApplySettings(t *testing.T) {
	acct := types.Account{IsActive: true, TxLimitCents: ptr(int64(500))}

	acct.Apply(types.AccountSettings{IsActive: ptr(false), DailyLimitCents: ptr(int64(10000))}, now)
	assert.False(t, acct.IsActive)
	assert.Equal(t, int64(500), *acct.TxLimitCents)
	assert.Equal(t, int64(10000), *acct.DailyLimitCents)

	acct.Apply(types.AccountSettings{ClearLimits: true}, now)
	assert.Nil(t, acct.TxLimitCents)
	assert.Nil(t, acct.DailyLimitCents)
}

// ── Ledger summary / paging ──────────────────────────────────────────────────

func TestSummarize(t *testing.T) {
	s := types.Summarize([]types.TransactionTotal{
		{Type: types.TxTopup, Method: types.MethodCash, Count: 2, AmountCents: 7000},
		{Type: types.TxTopup, Method: types.MethodCard, Count: 1, AmountCents: 3000},
		{Type: types.TxPurchase, Vendor: "Bar1", Count: 2, AmountCents: -4500},
		{Type: types.TxRefund, Count: 1, AmountCents: 1500},
	})

	assert.Equal(t, 6, s.TransactionCount)
	assert.Equal(t, int64(7000), s.NetCents)
	assert.Equal(t, types.Sum{Count: 3, AmountCents: 10000}, s.ByType[types.TxTopup])
	assert.Equal(t, types.Sum{Count: 2, AmountCents: 7000}, s.ByMethod[types.MethodCash])
	assert.Equal(t, types.Sum{Count: 2, AmountCents: 4500}, s.ByVendor["Bar1"])
}

func TestPage_Window(t *testing.T) {
	lo, hi := types.Page{Page: 2, PerPage: 3}.Window(7)
	assert.Equal(t, 3, lo)
	assert.Equal(t, 6, hi)

	lo, hi = types.Page{Page: 5, PerPage: 3}.Window(7)
	assert.Equal(t, 7, lo)
	assert.Equal(t, 7, hi)

	lo, hi = types.Page{}.Window(7)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 7, hi)

	assert.Equal(t, types.Page{Page: 1, PerPage: types.MaxPerPage}, types.Page{PerPage: 10000}.Normalize())
}

func TestPage_HugePageIsPastTheEnd(t *testing.T) {
	p := types.Page{Page: math.MaxInt/types.MaxPerPage + 3, PerPage: types.MaxPerPage}.Normalize()
	assert.Equal(t, math.MaxInt, p.Offset())

	lo, hi := p.Window(7)
	assert.Equal(t, 7, lo)
	assert.Equal(t, 7, hi)

	assert.Equal(t, math.MaxInt, types.Page{Page: math.MaxInt, PerPage: 2}.Offset())
	assert.Equal(t, 0, types.Page{Page: math.MinInt, PerPage: 2}.Offset())
}
