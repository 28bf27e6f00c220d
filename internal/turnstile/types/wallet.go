package types

import "github.com/BrandonDHaskell/turnstile/internal/apperr"

type TopupRequest struct {
	UID         string      `json:"uid"`
	AmountCents int64       `json:"amount_cents"`
	Method      TopupMethod `json:"method"`
}

type TopupResponse struct {
	Transaction     Transaction `json:"transaction"`
	PreviousBalance int64       `json:"previous_balance"`
	NewBalance      int64       `json:"new_balance"`
}

type PurchaseRequest struct {
	UID         string `json:"uid"`
	AmountCents int64  `json:"amount_cents"`
	Vendor      string `json:"vendor"`
}

// PurchaseResult is returned for both accepted and rule-rejected purchases.
// On rejection Success is false, Error names the rule, and for insufficient
// balance MissingCents is the shortfall the holder has to top up.
type PurchaseResult struct {
	Success             bool         `json:"success"`
	Error               apperr.Code  `json:"error,omitempty"`
	Transaction         *Transaction `json:"transaction,omitempty"`
	PreviousBalance     int64        `json:"previous_balance"`
	NewBalance          int64        `json:"new_balance"`
	CurrentBalanceCents int64        `json:"current_balance_cents"`
	MissingCents        int64        `json:"missing_cents,omitempty"`
	LimitCents          int64        `json:"limit_cents,omitempty"`
}

type RefundResponse struct {
	RefundTransaction   Transaction `json:"refund_transaction"`
	OriginalTransaction Transaction `json:"original_transaction"`
	NewBalance          int64       `json:"new_balance"`
}

type Statement struct {
	UID          string        `json:"uid"`
	AccountID    string        `json:"account_id"`
	BalanceCents int64         `json:"balance_cents"`
	IsActive     bool          `json:"is_active"`
	Transactions []Transaction `json:"transactions"`
	Page         PageInfo      `json:"page"`
}

// LedgerCheck is the result of replaying an account's transactions.
type LedgerCheck struct {
	UID              string `json:"uid"`
	AccountID        string `json:"account_id"`
	BalanceCents     int64  `json:"balance_cents"`
	ReplayCents      int64  `json:"replay_cents"`
	EffectiveCents   int64  `json:"effective_cents"`
	TransactionCount int    `json:"transaction_count"`
	Consistent       bool   `json:"consistent"`
}
