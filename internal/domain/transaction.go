package domain

import "time"

// TransactionType is the closed set of monetizable events the ledger records.
type TransactionType string

const (
	TypeCommission      TransactionType = "commission"
	TypeRefund          TransactionType = "refund"
	TypeChargeback      TransactionType = "chargeback"
	TypeAdjustment      TransactionType = "adjustment"
	TypePayout          TransactionType = "payout"
	TypeSubscriptionFee TransactionType = "subscription_fee"
)

// ValidTransactionType reports whether t is a known ledger entry type.
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TypeCommission, TypeRefund, TypeChargeback, TypeAdjustment,
		TypePayout, TypeSubscriptionFee:
		return true
	}
	return false
}

// PayoutDirection is the sign a transaction type contributes to a vendor's
// payout: +1 pays the vendor, -1 claws back, 0 is platform-internal.
func (t TransactionType) PayoutDirection() int64 {
	switch t {
	case TypeCommission:
		return 1
	case TypeRefund, TypeChargeback, TypeSubscriptionFee:
		return -1
	default:
		return 0
	}
}

// FinancialTransaction is one immutable ledger row. All monetary fields are
// integer minor-currency units (cents) and non-negative; the sign of a row's
// contribution to a payout comes from its type, not from the amounts.
//
// After creation the only permitted mutations are the settlement flags
// (flipped by the payout batcher) and the paid-to-vendor flags. Rows are
// never deleted.
type FinancialTransaction struct {
	ID             string          `json:"id"`
	Type           TransactionType `json:"type"`
	VendorID       string          `json:"vendor_id"`
	OrderID        string          `json:"order_id,omitempty"`
	SubscriptionID string          `json:"subscription_id,omitempty"`

	GrossAmountCents     int64  `json:"gross_amount_cents"`
	CommissionPercentage string `json:"commission_percentage"` // 4dp decimal string
	CommissionCents      int64  `json:"commission_cents"`
	FixedFeeCents        int64  `json:"fixed_fee_cents"`
	ProcessorFeeCents    int64  `json:"processor_fee_cents"` // estimated, informational
	NetAmountCents       int64  `json:"net_amount_cents"`
	Currency             string `json:"currency"`

	IdempotencyKey string `json:"idempotency_key"`

	IsSettled         bool       `json:"is_settled"`
	SettledAt         *time.Time `json:"settled_at,omitempty"`
	SettlementBatchID string     `json:"settlement_batch_id,omitempty"`

	IsPaidToVendor bool       `json:"is_paid_to_vendor"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
