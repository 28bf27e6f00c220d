package types

import "time"

type TransactionType string

const (
	TxTopup    TransactionType = "topup"
	TxPurchase TransactionType = "purchase"
	TxRefund   TransactionType = "refund"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxTopup, TxPurchase, TxRefund:
		return true
	}
	return false
}

type TopupMethod string

const (
	MethodCash       TopupMethod = "cash"
	MethodCard       TopupMethod = "card"
	MethodOnline     TopupMethod = "online"
	MethodVoucher    TopupMethod = "voucher"
	MethodAdjustment TopupMethod = "adjustment"
)

func (m TopupMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodOnline, MethodVoucher, MethodAdjustment:
		return true
	}
	return false
}

// Transaction is one immutable ledger row.  AmountCents is signed: topups are
// positive, purchases negative, refunds the negation of their original.
// Only the reversal fields are ever written after insert, exactly once.
type Transaction struct {
	ID                    string          `json:"id"`
	AccountID             string          `json:"account_id"`
	Type                  TransactionType `json:"type"`
	AmountCents           int64           `json:"amount_cents"`
	BalanceAfterCents     int64           `json:"balance_after_cents"`
	Method                TopupMethod     `json:"method,omitempty"`
	Vendor                string          `json:"vendor,omitempty"`
	CreatedBy             string          `json:"created_by,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	IsReversed            bool            `json:"is_reversed"`
	ReversedAt            *time.Time      `json:"reversed_at,omitempty"`
	ReversedBy            string          `json:"reversed_by,omitempty"`
	OriginalTransactionID *string         `json:"original_transaction_id,omitempty"`
}

// TransactionTotal is one group of the cross-account aggregation.
type TransactionTotal struct {
	Type        TransactionType
	Method      TopupMethod
	Vendor      string
	Count       int
	AmountCents int64
}

// LedgerSummary is the reporting projection over every account.
type LedgerSummary struct {
	TransactionCount int                     `json:"transaction_count"`
	NetCents         int64                   `json:"net_cents"`
	ByType           map[TransactionType]Sum `json:"by_type"`
	ByMethod         map[TopupMethod]Sum     `json:"by_method"`
	ByVendor         map[string]Sum          `json:"by_vendor"`
}

type Sum struct {
	Count       int   `json:"count"`
	AmountCents int64 `json:"amount_cents"`
}

func (s Sum) add(n int, cents int64) Sum {
	return Sum{Count: s.Count + n, AmountCents: s.AmountCents + cents}
}

// Summarize folds grouped totals into a LedgerSummary.  Purchase amounts are
// reported per vendor as positive spend.
func Summarize(totals []TransactionTotal) LedgerSummary {
	out := LedgerSummary{
		ByType:   make(map[TransactionType]Sum),
		ByMethod: make(map[TopupMethod]Sum),
		ByVendor: make(map[string]Sum),
	}
	for _, t := range totals {
		out.TransactionCount += t.Count
		out.NetCents += t.AmountCents
		out.ByType[t.Type] = out.ByType[t.Type].add(t.Count, t.AmountCents)
		switch t.Type {
		case TxTopup:
			out.ByMethod[t.Method] = out.ByMethod[t.Method].add(t.Count, t.AmountCents)
		case TxPurchase:
			out.ByVendor[t.Vendor] = out.ByVendor[t.Vendor].add(t.Count, -t.AmountCents)
		}
	}
	return out
}
