// Package httpapi is the HTTP surface of turnstile.  Every route except
// /healthz requires a bearer token granting the route's scope.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/auth"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/service"
)

type Dependencies struct {
	Logger *zap.Logger
	Addr   string
	Signer *auth.Signer

	Tokens     *service.TokenRegistry
	Identities *service.IdentityDirectory
	Gates      *service.GateRegistry
	Ledger     *service.Ledger
	Access     *service.AccessService
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	signer     *auth.Signer

	tokens     *service.TokenRegistry
	identities *service.IdentityDirectory
	gates      *service.GateRegistry
	ledger     *service.Ledger
	access     *service.AccessService
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		logger:     logger,
		mux:        mux,
		signer:     d.Signer,
		tokens:     d.Tokens,
		identities: d.Identities,
		gates:      d.Gates,
		ledger:     d.Ledger,
		access:     d.Access,
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Wristbands
	mux.HandleFunc("POST /v1/tokens/register", s.requireScope(auth.ScopeTokensWrite, s.handleRegister))
	mux.HandleFunc("POST /v1/tokens/assign", s.requireScope(auth.ScopeTokensWrite, s.handleAssign))
	mux.HandleFunc("POST /v1/tokens/{uid}/block", s.requireScope(auth.ScopeTokensWrite, s.handleBlock))
	mux.HandleFunc("POST /v1/tokens/{uid}/unblock", s.requireScope(auth.ScopeTokensWrite, s.handleUnblock))
	mux.HandleFunc("POST /v1/tokens/{uid}/lost", s.requireScope(auth.ScopeTokensWrite, s.handleLost))
	mux.HandleFunc("POST /v1/tokens/{uid}/returned", s.requireScope(auth.ScopeTokensWrite, s.handleReturned))
	mux.HandleFunc("POST /v1/tokens/{uid}/damaged", s.requireScope(auth.ScopeTokensWrite, s.handleDamaged))
	mux.HandleFunc("GET /v1/tokens/{uid}/status", s.requireScope(auth.ScopeTokensRead, s.handleTokenStatus))
	mux.HandleFunc("GET /v1/tokens", s.requireScope(auth.ScopeTokensRead, s.handleListTokens))

	// Identities
	mux.HandleFunc("POST /v1/identities", s.requireScope(auth.ScopeIdentitiesWrite, s.handleCreateIdentity))
	mux.HandleFunc("GET /v1/identities/{id}", s.requireScope(auth.ScopeIdentitiesRead, s.handleGetIdentity))
	mux.HandleFunc("DELETE /v1/identities/{id}", s.requireScope(auth.ScopeIdentitiesWrite, s.handleDeleteIdentity))
	mux.HandleFunc("POST /v1/identities/{id}/anonymize", s.requireScope(auth.ScopeIdentitiesWrite, s.handleAnonymizeIdentity))

	// Gates and access
	mux.HandleFunc("POST /v1/gates", s.requireScope(auth.ScopeGatesWrite, s.handleUpsertGate))
	mux.HandleFunc("GET /v1/gates", s.requireScope(auth.ScopeGatesRead, s.handleListGates))
	mux.HandleFunc("POST /v1/access/check-in", s.requireScope(auth.ScopeAccessCheck, s.handleCheckIn))
	mux.HandleFunc("GET /v1/access", s.requireScope(auth.ScopeAccessRead, s.handleListAccess))
	mux.HandleFunc("GET /v1/access/stats", s.requireScope(auth.ScopeAccessRead, s.handleAccessStats))
	mux.HandleFunc("GET /v1/access/gates", s.requireScope(auth.ScopeAccessRead, s.handleGateStats))

	// Wallet
	mux.HandleFunc("POST /v1/wallet/topup", s.requireScope(auth.ScopeWalletWrite, s.handleTopup))
	mux.HandleFunc("POST /v1/wallet/purchase", s.requireScope(auth.ScopeWalletWrite, s.handlePurchase))
	mux.HandleFunc("POST /v1/wallet/{id}/refund", s.requireScope(auth.ScopeWalletRefund, s.handleRefund))
	mux.HandleFunc("GET /v1/wallet/summary", s.requireScope(auth.ScopeWalletRead, s.handleSummary))
	mux.HandleFunc("GET /v1/wallet/{uid}/statement", s.requireScope(auth.ScopeWalletRead, s.handleStatement))
	mux.HandleFunc("GET /v1/wallet/{uid}/verify", s.requireScope(auth.ScopeWalletRead, s.handleVerify))
	mux.HandleFunc("PATCH /v1/wallet/{uid}/settings", s.requireScope(auth.ScopeWalletWrite, s.handleSettings))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           instrument(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
