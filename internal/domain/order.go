package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus mirrors the order subsystem's payment states. The settlement
// engine only cares about the transition onto "paid".
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Order is the read-model projection of an order owned by the (external)
// order subsystem. The engine reads amount, vendor and creation date, and
// flips payment status on confirmation; nothing else.
type Order struct {
	ID            string          `json:"id"`
	VendorID      string          `json:"vendor_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"` // currency units, >= 0
	Currency      string          `json:"currency"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	CreatedAt     time.Time       `json:"created_at"`
}
