package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// maxRequestBody caps JSON and protobuf request bodies.  The largest payload
// (assign with an inline identity) is well under 2 KiB.
const maxRequestBody = 16 << 10

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     apperr.Code    `json:"code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status for err's code.  Errors without a code
// are logged and reported as a generic internal error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code == apperr.CodeInternal || ae.Code == apperr.CodeUnknown {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
			Code:    apperr.CodeInternal,
			Message: "unexpected server error",
		}})
		return
	}
	writeJSON(w, ae.Code.HTTPStatus(), errorBody{Error: errorDetail{
		Code:     ae.Code,
		Message:  ae.Message,
		Metadata: ae.Metadata,
	}})
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid JSON body: " + err.Error())
	}
	return nil
}

// pageFrom reads ?page= and ?per_page=.
func pageFrom(r *http.Request) (types.Page, error) {
	var p types.Page
	for _, f := range []struct {
		name string
		dst  *int
	}{{"page", &p.Page}, {"per_page", &p.PerPage}} {
		raw := r.URL.Query().Get(f.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return types.Page{}, apperr.WithMetadata(apperr.CodeValidation, f.name+" must be a non-negative integer",
				map[string]any{f.name: raw})
		}
		*f.dst = n
	}
	return p, nil
}

// timeParam parses an optional RFC 3339 query parameter.
func timeParam(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, apperr.WithMetadata(apperr.CodeValidation, name+" must be an RFC 3339 timestamp",
			map[string]any{name: raw})
	}
	t = t.UTC()
	return &t, nil
}

type listResponse[T any] struct {
	Items []T            `json:"items"`
	Page  types.PageInfo `json:"page"`
}

func list[T any](items []T, info types.PageInfo) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Page: info}
}
