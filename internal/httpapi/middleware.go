package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
)

var tracer = otel.Tracer("github.com/BrandonDHaskell/turnstile/internal/httpapi")

// statusRecorder captures the status written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// instrument wraps the router with tracing, access logging and panic
// recovery.
func instrument(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now().UTC()
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		req := r.WithContext(ctx)

		defer func() {
			if p := recover(); p != nil {
				logger.Error("panic in handler",
					zap.Any("panic", p),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				span.SetStatus(codes.Error, "panic")
				rec.status = http.StatusInternalServerError
				writeJSON(rec, http.StatusInternalServerError, errorBody{Error: errorDetail{
					Code:    apperr.CodeInternal,
					Message: "unexpected server error",
				}})
			}

			route := req.Pattern
			if route == "" {
				route = "unmatched"
			}
			span.SetName(route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", rec.status),
			)
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", rec.status),
				zap.String("from", r.RemoteAddr),
				zap.Duration("dur", time.Since(start)),
			)
		}()

		next.ServeHTTP(rec, req)
	})
}

type actorKey struct{}

// actorFrom returns the authenticated subject of the request.
func actorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// requireScope authenticates the bearer token and checks it grants scope.
func (s *Server) requireScope(scope string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.signer.Verify(r.Header.Get("Authorization"))
		if err != nil {
			s.logger.Debug("authentication failed", zap.String("path", r.URL.Path), zap.Error(err))
			s.writeError(w, r, apperr.Wrap(apperr.CodeUnauthorized, "authentication required", err))
			return
		}
		if !claims.Has(scope) {
			s.writeError(w, r, apperr.WithMetadata(apperr.CodeForbidden, "missing scope",
				map[string]any{"scope": scope}))
			return
		}
		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("enduser.id", claims.Subject))
		ctx := context.WithValue(r.Context(), actorKey{}, claims.Subject)
		h(w, r.WithContext(ctx))
	}
}
