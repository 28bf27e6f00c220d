// Package service implements the wristband lifecycle, the wallet ledger and
// the gate access decisions on top of a store.Store.
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

var tracer = otel.Tracer("github.com/BrandonDHaskell/turnstile/internal/turnstile/service")

func utcNow() time.Time { return time.Now().UTC() }

func normalizeUID(uid string) string { return strings.TrimSpace(uid) }

// storeErr translates store sentinels into application errors for the entity
// named by what.  Application errors pass through untouched.
func storeErr(err error, notFound apperr.Code, what string) error {
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperr.New(notFound, what+" not found")
	case errors.Is(err, store.ErrConflict):
		return apperr.New(apperr.CodeConflict, what+" already exists")
	case errors.Is(err, store.ErrBalanceCeiling):
		return apperr.WithMetadata(apperr.CodeValidation, "balance would exceed the wallet ceiling",
			map[string]any{"max_balance_cents": types.MaxBalanceCents})
	}
	return fmt.Errorf("%s: %w", what, err)
}
