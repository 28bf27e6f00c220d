// Package storetest is a conformance suite every store.Store implementation
// must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("Tokens", func(t *testing.T) { testTokens(t, newStore(t)) })
	t.Run("Identities", func(t *testing.T) { testIdentities(t, newStore(t)) })
	t.Run("Balance", func(t *testing.T) { testBalance(t, newStore(t)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("WithinTxRollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("Gates", func(t *testing.T) { testGates(t, newStore(t)) })
	t.Run("AccessLog", func(t *testing.T) { testAccessLog(t, newStore(t)) })
}

var base = time.Date(2026, 7, 4, 18, 0, 0, 0, time.UTC)

// account registers a token with uid and opens its account.
func account(t *testing.T, s store.Store, uid string) types.Account {
	t.Helper()
	ctx := context.Background()
	tok := types.Token{UID: uid, Status: types.TokenAssigned, CreatedAt: base}
	require.NoError(t, s.CreateToken(ctx, &tok))
	acct := types.Account{TokenID: tok.ID, IsActive: true, CreatedAt: base}
	require.NoError(t, s.CreateAccount(ctx, &acct))
	return acct
}

// ── Tokens ───────────────────────────────────────────────────────────────────

func testTokens(t *testing.T, s store.Store) {
	ctx := context.Background()

	tok := types.Token{UID: "04:A1:B2", BatchCode: "B1", Status: types.TokenNew}
	require.NoError(t, s.CreateToken(ctx, &tok))
	require.NotEmpty(t, tok.ID)

	dup := types.Token{UID: "04:A1:B2", Status: types.TokenNew}
	assert.ErrorIs(t, s.CreateToken(ctx, &dup), store.ErrConflict)

	got, err := s.TokenByUID(ctx, "04:A1:B2")
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	assert.Equal(t, "B1", got.BatchCode)
	assert.Nil(t, got.IdentityID)

	_, err = s.TokenByUID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.TokenByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	ident := types.Identity{FirstName: "Ada", TicketType: types.TicketVIP}
	require.NoError(t, s.CreateIdentity(ctx, &ident))

	require.NoError(t, got.AssignTo(ident.ID, base))
	require.NoError(t, s.UpdateToken(ctx, got))

	byID, err := s.TokenByID(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TokenAssigned, byID.Status)
	require.NotNil(t, byID.IdentityID)
	assert.Equal(t, ident.ID, *byID.IdentityID)
	require.NotNil(t, byID.AssignedAt)
	assert.True(t, byID.AssignedAt.Equal(base))

	assert.ErrorIs(t, s.UpdateToken(ctx, types.Token{ID: "missing", UID: "x", Status: types.TokenNew}), store.ErrNotFound)

	for i := range 3 {
		extra := types.Token{UID: fmt.Sprintf("extra-%d", i), Status: types.TokenNew, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.CreateToken(ctx, &extra))
	}
	all, total, err := s.ListTokens(ctx, store.TokenFilter{}, types.Page{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, all, 4)

	fresh, total, err := s.ListTokens(ctx, store.TokenFilter{Status: types.TokenNew}, types.Page{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, fresh, 2)

	linked, total, err := s.ListTokens(ctx, store.TokenFilter{IdentityID: ident.ID}, types.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "04:A1:B2", linked[0].UID)
}

// ── Identities ───────────────────────────────────────────────────────────────

func testIdentities(t *testing.T, s store.Store) {
	ctx := context.Background()
	email := "ada@example.com"

	a := types.Identity{FirstName: "Ada", LastName: "Lovelace", Email: &email, TicketType: types.TicketStandard, MarketingConsent: true}
	require.NoError(t, s.CreateIdentity(ctx, &a))
	assert.Equal(t, types.IdentityActive, a.State)

	b := types.Identity{FirstName: "Bob", Email: &email, TicketType: types.TicketStandard}
	assert.ErrorIs(t, s.CreateIdentity(ctx, &b), store.ErrConflict)

	got, err := s.IdentityByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.DisplayName())
	require.NotNil(t, got.Email)
	assert.Equal(t, email, *got.Email)

	got.Anonymize(base)
	require.NoError(t, s.UpdateIdentity(ctx, got))

	anon, err := s.IdentityByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.IdentityAnonymized, anon.State)
	assert.Nil(t, anon.Email)
	assert.Empty(t, anon.FirstName)
	assert.False(t, anon.MarketingConsent)

	// The anonymized identity released its email.
	b.ID = ""
	require.NoError(t, s.CreateIdentity(ctx, &b))

	_, err = s.IdentityByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// ── Balance ──────────────────────────────────────────────────────────────────

func testBalance(t *testing.T, s store.Store) {
	ctx := context.Background()
	acct := account(t, s, "bal-1")

	again := types.Account{TokenID: acct.TokenID}
	assert.ErrorIs(t, s.CreateAccount(ctx, &again), store.ErrConflict)

	bal, err := s.AdjustBalance(ctx, acct.ID, 5000, base)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), bal)

	bal, err = s.AdjustBalance(ctx, acct.ID, -1200, base)
	require.NoError(t, err)
	assert.Equal(t, int64(3800), bal)

	_, err = s.AdjustBalance(ctx, acct.ID, -3801, base)
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)

	got, err := s.AccountByTokenID(ctx, acct.TokenID)
	require.NoError(t, err)
	assert.Equal(t, int64(3800), got.BalanceCents)

	_, err = s.AdjustBalance(ctx, "missing", 1, base)
	assert.ErrorIs(t, err, store.ErrNotFound)

	limit := int64(2500)
	got.IsActive = false
	got.TxLimitCents = &limit
	got.BalanceCents = 999999
	require.NoError(t, s.UpdateAccountSettings(ctx, got))

	after, err := s.AccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.False(t, after.IsActive)
	require.NotNil(t, after.TxLimitCents)
	assert.Equal(t, limit, *after.TxLimitCents)
	assert.Equal(t, int64(3800), after.BalanceCents, "settings never move money")

	// Deltas that would wrap int64 are refused, never stored.
	bal, err = s.AdjustBalance(ctx, acct.ID, math.MaxInt64, base)
	assert.ErrorIs(t, err, store.ErrBalanceCeiling)
	assert.Equal(t, int64(3800), bal)
	_, err = s.AdjustBalance(ctx, acct.ID, math.MinInt64, base)
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)

	bal, err = s.AdjustBalance(ctx, acct.ID, types.MaxBalanceCents-3800, base)
	require.NoError(t, err)
	assert.Equal(t, types.MaxBalanceCents, bal)
	_, err = s.AdjustBalance(ctx, acct.ID, 1, base)
	assert.ErrorIs(t, err, store.ErrBalanceCeiling)

	got, err = s.AccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MaxBalanceCents, got.BalanceCents)
}

// ── Transactions ─────────────────────────────────────────────────────────────

func testTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()
	acct := account(t, s, "tx-1")

	topup := types.Transaction{AccountID: acct.ID, Type: types.TxTopup, AmountCents: 5000, BalanceAfterCents: 5000,
		Method: types.MethodCash, CreatedAt: base}
	require.NoError(t, s.InsertTransaction(ctx, &topup))
	beer := types.Transaction{AccountID: acct.ID, Type: types.TxPurchase, AmountCents: -700, BalanceAfterCents: 4300,
		Vendor: "bar", CreatedAt: base.Add(time.Minute)}
	require.NoError(t, s.InsertTransaction(ctx, &beer))
	food := types.Transaction{AccountID: acct.ID, Type: types.TxPurchase, AmountCents: -1200, BalanceAfterCents: 3100,
		Vendor: "food", CreatedAt: base.Add(2 * time.Minute)}
	require.NoError(t, s.InsertTransaction(ctx, &food))

	orphan := types.Transaction{AccountID: "missing", Type: types.TxTopup, AmountCents: 1, BalanceAfterCents: 1}
	assert.ErrorIs(t, s.InsertTransaction(ctx, &orphan), store.ErrNotFound)

	list, total, err := s.ListTransactions(ctx, acct.ID, types.Page{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 3)
	assert.Equal(t, []string{food.ID, beer.ID, topup.ID}, []string{list[0].ID, list[1].ID, list[2].ID})

	page2, _, err := s.ListTransactions(ctx, acct.ID, types.Page{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, topup.ID, page2[0].ID)

	beyond, total, err := s.ListTransactions(ctx, acct.ID, types.Page{Page: math.MaxInt / 2, PerPage: 4})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, beyond)

	spent, err := s.SumPurchasesSince(ctx, acct.ID, base)
	require.NoError(t, err)
	assert.Equal(t, int64(1900), spent)

	require.NoError(t, s.MarkReversed(ctx, beer.ID, base.Add(time.Hour), "op"))
	assert.ErrorIs(t, s.MarkReversed(ctx, beer.ID, base.Add(time.Hour), "op"), store.ErrAlreadyReversed)
	assert.ErrorIs(t, s.MarkReversed(ctx, "missing", base, "op"), store.ErrNotFound)

	rev, err := s.TransactionByID(ctx, beer.ID)
	require.NoError(t, err)
	assert.True(t, rev.IsReversed)
	assert.Equal(t, "op", rev.ReversedBy)
	require.NotNil(t, rev.ReversedAt)

	spent, err = s.SumPurchasesSince(ctx, acct.ID, base)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), spent, "reversed purchases do not count")

	spent, err = s.SumPurchasesSince(ctx, acct.ID, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1200), spent)

	totals, err := s.TransactionTotals(ctx)
	require.NoError(t, err)
	sum := types.Summarize(totals)
	assert.Equal(t, 3, sum.TransactionCount)
	assert.Equal(t, int64(3100), sum.NetCents)
	assert.Equal(t, int64(700), sum.ByVendor["bar"].AmountCents)
	assert.Equal(t, int64(5000), sum.ByMethod[types.MethodCash].AmountCents)

	_, err = s.TransactionByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// ── Units of work ────────────────────────────────────────────────────────────

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	acct := account(t, s, "rb-1")
	_, err := s.AdjustBalance(ctx, acct.ID, 1000, base)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(ctx context.Context, r store.Repos) error {
		if _, err := r.AdjustBalance(ctx, acct.ID, -400, base); err != nil {
			return err
		}
		tx := types.Transaction{AccountID: acct.ID, Type: types.TxPurchase, AmountCents: -400, BalanceAfterCents: 600}
		if err := r.InsertTransaction(ctx, &tx); err != nil {
			return err
		}
		ident := types.Identity{FirstName: "Ghost", TicketType: types.TicketStandard}
		if err := r.CreateIdentity(ctx, &ident); err != nil {
			return err
		}
		tok := types.Token{UID: "rb-2", Status: types.TokenNew}
		if err := r.CreateToken(ctx, &tok); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.AccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.BalanceCents)

	_, total, err := s.ListTransactions(ctx, acct.ID, types.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = s.TokenByUID(ctx, "rb-2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A committed unit of work is visible afterwards.
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, r store.Repos) error {
		_, err := r.AdjustBalance(ctx, acct.ID, 250, base)
		return err
	}))
	got, err = s.AccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), got.BalanceCents)
}

// ── Gates ────────────────────────────────────────────────────────────────────

func testGates(t *testing.T, s store.Store) {
	ctx := context.Background()

	main := types.Gate{Name: "Main", Code: "M1", ZoneType: types.ZoneEntrance, IsActive: true}
	require.NoError(t, s.UpsertGate(ctx, &main))
	require.NotEmpty(t, main.ID)

	bs := types.Gate{Name: "Backstage", Code: "BS", ZoneType: types.ZoneBackstage, IsActive: true,
		AllowedTicketTypes: []types.TicketType{types.TicketBackstage, types.TicketStaff}}
	require.NoError(t, s.UpsertGate(ctx, &bs))

	got, err := s.GateByName(ctx, "backstage")
	require.NoError(t, err)
	assert.Equal(t, bs.ID, got.ID)
	assert.Equal(t, bs.AllowedTicketTypes, got.AllowedTicketTypes)

	byCode, err := s.GateByName(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, main.ID, byCode.ID)

	_, err = s.GateByName(ctx, "nowhere")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Upsert by name updates in place.
	update := types.Gate{Name: "Main", Code: "M1", ZoneType: types.ZoneEntrance, IsActive: false}
	require.NoError(t, s.UpsertGate(ctx, &update))
	assert.Equal(t, main.ID, update.ID)
	got, err = s.GateByName(ctx, "Main")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	clash := types.Gate{Name: "Side", Code: "BS", ZoneType: types.ZoneExit, IsActive: true}
	assert.ErrorIs(t, s.UpsertGate(ctx, &clash), store.ErrConflict)

	gates, err := s.ListGates(ctx)
	require.NoError(t, err)
	require.Len(t, gates, 2)
	assert.Equal(t, "Backstage", gates[0].Name)
	assert.Equal(t, "Main", gates[1].Name)
}

// ── Access log ───────────────────────────────────────────────────────────────

func testAccessLog(t *testing.T, s store.Store) {
	ctx := context.Background()

	var ids []int64
	for i := range 5 {
		e := types.AccessLogEntry{
			TokenUID:  fmt.Sprintf("uid-%d", i%2),
			Gate:      "Main",
			Direction: types.DirectionIn,
			Status:    types.AccessAllowed,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if i == 4 {
			e.Status = types.AccessDenied
			e.ReasonCode = types.DenyNotRegistered
			e.Gate = "Backstage"
			e.Direction = types.DirectionOut
		}
		require.NoError(t, s.RecordEvent(ctx, &e))
		ids = append(ids, e.ID)
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}

	all, total, err := s.ListEvents(ctx, store.AccessLogFilter{}, types.Page{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, ids[4], all[0].ID, "most recent first")

	denied, total, err := s.ListEvents(ctx, store.AccessLogFilter{Status: types.AccessDenied}, types.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, types.DenyNotRegistered, denied[0].ReasonCode)
	assert.Nil(t, denied[0].TokenID)

	mine, total, err := s.ListEvents(ctx, store.AccessLogFilter{TokenUID: "uid-1"}, types.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, mine, 2)

	gate, total, err := s.ListEvents(ctx, store.AccessLogFilter{Gate: "main"}, types.Page{Page: 1, PerPage: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, gate, 3)

	far := types.Page{Page: math.MaxInt/types.MaxPerPage + 3, PerPage: types.MaxPerPage}
	beyond, total, err := s.ListEvents(ctx, store.AccessLogFilter{}, far)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, beyond)

	out, total, err := s.ListEvents(ctx, store.AccessLogFilter{Direction: types.DirectionOut}, types.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, out, 1)

	since := base.Add(2 * time.Minute)
	until := base.Add(4 * time.Minute)
	window, total, err := s.ListEvents(ctx, store.AccessLogFilter{Since: &since, Until: &until}, types.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, window, 2)

	after, err := s.EventsAfter(ctx, ids[1], 2)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, ids[2], after[0].ID)
	assert.Equal(t, ids[3], after[1].ID)

	tail, err := s.EventsAfter(ctx, ids[4], 10)
	require.NoError(t, err)
	assert.Empty(t, tail)
}
