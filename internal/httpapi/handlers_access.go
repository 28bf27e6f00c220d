package httpapi

import (
	"errors"
	"net/http"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// ── Gates ────────────────────────────────────────────────────────────────────

func (s *Server) handleUpsertGate(w http.ResponseWriter, r *http.Request) {
	var req types.Gate
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.gates.Upsert(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleListGates(w http.ResponseWriter, r *http.Request) {
	gates, err := s.gates.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if gates == nil {
		gates = []types.Gate{}
	}
	writeJSON(w, http.StatusOK, gates)
}

// ── Check-in ─────────────────────────────────────────────────────────────────

func checkInStatus(resp types.CheckInResponse) int {
	if resp.Allowed {
		return http.StatusOK
	}
	return http.StatusForbidden
}

// handleCheckIn answers 200 when the wristband may pass and 403 when it may
// not.  Protobuf terminals get the same body as a google.protobuf.Struct.
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	if isProtobuf(r) {
		s.handleCheckInProto(w, r)
		return
	}

	var req types.CheckInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.access.CheckAccess(r.Context(), req, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, checkInStatus(resp), resp)
}

func (s *Server) handleCheckInProto(w http.ResponseWriter, r *http.Request) {
	fail := func(err error) {
		var ae *apperr.Error
		if !errors.As(err, &ae) || ae.Code == apperr.CodeInternal {
			s.writeError(w, r, err)
			return
		}
		writeProto(w, ae.Code.HTTPStatus(), errorToStruct(errorDetail{
			Code: ae.Code, Message: ae.Message, Metadata: ae.Metadata,
		}))
	}

	var body structpb.Struct
	if err := readProto(w, r, &body); err != nil {
		fail(err)
		return
	}
	req, err := checkInFromStruct(&body)
	if err != nil {
		fail(err)
		return
	}
	resp, err := s.access.CheckAccess(r.Context(), req, actorFrom(r.Context()))
	if err != nil {
		fail(err)
		return
	}
	out, err := checkInResponseToStruct(resp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeProto(w, checkInStatus(resp), out)
}

// ── Audit log ────────────────────────────────────────────────────────────────

func (s *Server) handleListAccess(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := store.AccessLogFilter{
		TokenUID:  q.Get("uid"),
		Gate:      q.Get("gate"),
		Status:    types.AccessStatus(q.Get("status")),
		Direction: types.Direction(q.Get("direction")),
	}
	if f.Status != "" && f.Status != types.AccessAllowed && f.Status != types.AccessDenied {
		s.writeError(w, r, apperr.WithMetadata(apperr.CodeValidation, "status must be allowed or denied",
			map[string]any{"status": f.Status}))
		return
	}
	if f.Direction != "" && !f.Direction.Valid() {
		s.writeError(w, r, apperr.WithMetadata(apperr.CodeValidation, "direction must be in or out",
			map[string]any{"direction": f.Direction}))
		return
	}
	if f.Since, err = timeParam(r, "since"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if f.Until, err = timeParam(r, "until"); err != nil {
		s.writeError(w, r, err)
		return
	}

	events, info, err := s.access.ListEvents(r.Context(), f, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(events, info))
}

func (s *Server) handleAccessStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.access.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGateStats(w http.ResponseWriter, r *http.Request) {
	overview, err := s.access.GateStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}
