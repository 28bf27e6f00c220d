package httpapi

import (
	"context"
	"net/http"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// ── Wristbands ───────────────────────────────────────────────────────────────

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, err := s.tokens.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req types.AssignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.tokens.Assign(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req types.BlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, err := s.tokens.Block(r.Context(), r.PathValue("uid"), req.Reason, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(ctx context.Context, uid, _ string) (types.Token, error) {
		return s.tokens.Unblock(ctx, uid)
	})
}

func (s *Server) handleLost(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.tokens.MarkLost)
}

func (s *Server) handleReturned(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.tokens.MarkReturned)
}

func (s *Server) handleDamaged(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.tokens.MarkDamaged)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, uid, actor string) (types.Token, error)) {
	tok, err := fn(r.Context(), r.PathValue("uid"), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleTokenStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.tokens.Status(r.Context(), r.PathValue("uid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := store.TokenFilter{
		Status:     types.TokenStatus(q.Get("status")),
		IdentityID: q.Get("identity_id"),
	}
	if f.Status != "" && !f.Status.Valid() {
		s.writeError(w, r, apperr.WithMetadata(apperr.CodeValidation, "unknown status",
			map[string]any{"status": f.Status}))
		return
	}
	toks, info, err := s.tokens.List(r.Context(), f, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(toks, info))
}

// ── Identities ───────────────────────────────────────────────────────────────

func (s *Server) handleCreateIdentity(w http.ResponseWriter, r *http.Request) {
	var req types.NewIdentity
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ident, err := s.identities.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ident)
}

func (s *Server) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	ident, err := s.identities.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

func (s *Server) handleDeleteIdentity(w http.ResponseWriter, r *http.Request) {
	ident, err := s.identities.SoftDelete(r.Context(), r.PathValue("id"), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

func (s *Server) handleAnonymizeIdentity(w http.ResponseWriter, r *http.Request) {
	ident, err := s.identities.Anonymize(r.Context(), r.PathValue("id"), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}
