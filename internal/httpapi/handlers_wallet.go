package httpapi

import (
	"net/http"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

func (s *Server) handleTopup(w http.ResponseWriter, r *http.Request) {
	var req types.TopupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.ledger.Topup(r.Context(), req, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePurchase answers rule rejections (insufficient balance, limits) with
// 400 and the result body, so terminals can show the shortfall.
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req types.PurchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.ledger.Purchase(r.Context(), req, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = res.Error.HTTPStatus()
	}
	writeJSON(w, status, res)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Refund(r.Context(), r.PathValue("id"), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.ledger.Statement(r.Context(), r.PathValue("uid"), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	check, err := s.ledger.Verify(r.Context(), r.PathValue("uid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req types.AccountSettings
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	acct, err := s.ledger.UpdateSettings(r.Context(), r.PathValue("uid"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.ledger.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
