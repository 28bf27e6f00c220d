package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/service"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store/memory"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// env wires every service on one in-memory store.
type env struct {
	store      *memory.Store
	tokens     *service.TokenRegistry
	identities *service.IdentityDirectory
	gates      *service.GateRegistry
	ledger     *service.Ledger
	stats      *service.StatsAggregator
	access     *service.AccessService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memory.New()
	return newEnvWithLog(t, st, st)
}

// newEnvWithLog lets a test substitute the audit log the access service
// writes to.
func newEnvWithLog(t *testing.T, st *memory.Store, events store.AccessLogStore) *env {
	t.Helper()
	log := zap.NewNop()
	e := &env{
		store:      st,
		tokens:     service.NewTokenRegistry(st, service.AccountDefaults{}, log),
		identities: service.NewIdentityDirectory(st, log),
		gates:      service.NewGateRegistry(st, log),
		ledger:     service.NewLedger(st, log),
		stats:      service.NewStatsAggregator(events, service.StatsConfig{}, log),
	}
	e.access = service.NewAccessService(e.tokens, e.identities, e.gates, events, e.stats, log)
	return e
}

// assign registers uid to a fresh identity with the given ticket type.
func (e *env) assign(t *testing.T, uid string, tt types.TicketType) types.AssignResponse {
	t.Helper()
	resp, err := e.tokens.Assign(context.Background(), types.AssignRequest{
		UID: uid,
		Identity: &types.NewIdentity{
			FirstName:  "Jane",
			LastName:   "Doe",
			TicketType: tt,
		},
	})
	require.NoError(t, err)
	return resp
}

func (e *env) topup(t *testing.T, uid string, cents int64) types.TopupResponse {
	t.Helper()
	resp, err := e.ledger.Topup(context.Background(), types.TopupRequest{UID: uid, AmountCents: cents, Method: types.MethodCash}, "cashier")
	require.NoError(t, err)
	return resp
}

func (e *env) balance(t *testing.T, uid string) int64 {
	t.Helper()
	st, err := e.ledger.Statement(context.Background(), uid, types.Page{})
	require.NoError(t, err)
	return st.BalanceCents
}

// seedGates creates "Main" (no whitelist) and "Backstage" (backstage and
// staff only).
func (e *env) seedGates(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := e.gates.Upsert(ctx, types.Gate{Name: "Main", Code: "MAIN", ZoneType: types.ZoneEntrance, IsActive: true})
	require.NoError(t, err)
	_, err = e.gates.Upsert(ctx, types.Gate{
		Name: "Backstage", Code: "BS", ZoneType: types.ZoneBackstage, IsActive: true,
		AllowedTicketTypes: []types.TicketType{types.TicketBackstage, types.TicketStaff},
	})
	require.NoError(t, err)
}

func ptr[T any](v T) *T { return &v }
