package domain

import "time"

// BatchStatus tracks a payout batch through its lifecycle.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchProcessed  BatchStatus = "processed"
	BatchFailed     BatchStatus = "failed"
)

// PayoutBatch groups the unsettled ledger rows claimed by one payout run.
// Invariant: TotalAmountCents equals the sum of the child payout amounts.
// A failed batch does not un-settle its transactions; failures are resolved
// operationally by re-issuing payouts, never by re-batching.
type PayoutBatch struct {
	ID               string      `json:"id"`
	PayoutDate       time.Time   `json:"payout_date"`
	Status           BatchStatus `json:"status"`
	TotalVendors     int         `json:"total_vendors"`
	TotalAmountCents int64       `json:"total_amount_cents"`
	CreatedAt        time.Time   `json:"created_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

// VendorPayout is one vendor's share of a payout batch.
type VendorPayout struct {
	ID               string      `json:"id"`
	BatchID          string      `json:"batch_id"`
	VendorID         string      `json:"vendor_id"`
	AmountCents      int64       `json:"amount_cents"`
	TransactionCount int         `json:"transaction_count"`
	Status           BatchStatus `json:"status"`
	CreatedAt        time.Time   `json:"created_at"`
}
