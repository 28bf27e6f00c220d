// Package apperr defines the machine-readable error codes returned by the
// turnstile services and their mapping onto gRPC and HTTP status codes.
package apperr

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a stable, machine-readable error code.
type Code string

const (
	CodeUnknown  Code = "UNKNOWN"
	CodeInternal Code = "INTERNAL"

	// Validation
	CodeValidation Code = "VALIDATION_ERROR"

	// Auth
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"

	// Not found
	CodeWristbandNotFound   Code = "WRISTBAND_NOT_FOUND"
	CodeIdentityNotFound    Code = "IDENTITY_NOT_FOUND"
	CodeAccountNotFound     Code = "ACCOUNT_NOT_FOUND"
	CodeTransactionNotFound Code = "TRANSACTION_NOT_FOUND"
	CodeGateNotFound        Code = "GATE_NOT_FOUND"

	// Conflict
	CodeConflict        Code = "CONFLICT"
	CodeAlreadyAssigned Code = "ALREADY_ASSIGNED"

	// Invalid state
	CodeWristbandBlocked Code = "WRISTBAND_BLOCKED"
	CodeWristbandRetired Code = "WRISTBAND_RETIRED"
	CodeNotBlocked       Code = "NOT_BLOCKED"
	CodeIdentityInactive Code = "IDENTITY_INACTIVE"
	CodeAccountInactive  Code = "ACCOUNT_INACTIVE"
	CodeAlreadyReversed  Code = "ALREADY_REVERSED"
	CodeCannotRefund     Code = "CANNOT_REFUND_REFUND"

	// Business rule violations
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeTxLimitExceeded     Code = "TRANSACTION_LIMIT_EXCEEDED"
	CodeDailyLimitExceeded  Code = "DAILY_LIMIT_EXCEEDED"
)

// GRPCCode maps a code onto its gRPC category.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeValidation:
		return codes.InvalidArgument
	case CodeUnauthorized:
		return codes.Unauthenticated
	case CodeForbidden:
		return codes.PermissionDenied
	case CodeWristbandNotFound,
		CodeIdentityNotFound,
		CodeAccountNotFound,
		CodeTransactionNotFound,
		CodeGateNotFound:
		return codes.NotFound
	case CodeConflict,
		CodeAlreadyAssigned:
		return codes.AlreadyExists
	case CodeWristbandBlocked,
		CodeWristbandRetired,
		CodeNotBlocked,
		CodeIdentityInactive,
		CodeAccountInactive,
		CodeAlreadyReversed,
		CodeCannotRefund,
		CodeInsufficientBalance,
		CodeTxLimitExceeded,
		CodeDailyLimitExceeded:
		return codes.FailedPrecondition
	case CodeInternal:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// HTTPStatus maps a code onto the status the HTTP surface answers with.
func (c Code) HTTPStatus() int {
	switch c.GRPCCode() {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.FailedPrecondition:
		// Ledger rule violations are answered with 400 so terminals can show
		// the shortfall; lifecycle conflicts are 409.
		switch c {
		case CodeInsufficientBalance, CodeTxLimitExceeded, CodeDailyLimitExceeded:
			return http.StatusBadRequest
		}
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type carrying a code and optional metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]any
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata creates an error that carries structured details for callers.
func WithMetadata(code Code, message string, md map[string]any) *Error {
	return &Error{Code: code, Message: message, Metadata: md}
}

// Wrap creates an error with a code that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation is shorthand for a VALIDATION_ERROR.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// CodeOf returns the code of the first *Error in err's chain, CodeInternal
// for any other non-nil error, and "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}
