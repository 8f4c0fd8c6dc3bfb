package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateSource identifies how specific a commission rate is. Vendor-specific
// rates always outrank global defaults during resolution.
type RateSource string

const (
	RateSourceGlobal  RateSource = "global"
	RateSourceVendor  RateSource = "vendor"
	RateSourceDefault RateSource = "default"
)

// RateVariant identifies which of a rate's fee schedules was applied.
type RateVariant string

const (
	RateVariantBase        RateVariant = "base"
	RateVariantPromotional RateVariant = "promotional"
)

// CommissionRate is a commission pricing rule. VendorID empty means the rate
// is a global default. A rate referenced by a settled transaction is never
// mutated in place; administrative changes deactivate and replace it.
type CommissionRate struct {
	ID       string `json:"id"`
	VendorID string `json:"vendor_id,omitempty"`

	Percentage decimal.Decimal `json:"percentage"` // fraction of gross, 0-1, 4dp
	FixedFee   decimal.Decimal `json:"fixed_fee"`  // currency units per order
	Currency   string          `json:"currency"`

	PromoPercentage *decimal.Decimal `json:"promo_percentage,omitempty"`
	PromoFixedFee   *decimal.Decimal `json:"promo_fixed_fee,omitempty"`
	PromoEndDate    *time.Time       `json:"promo_end_date,omitempty"`

	// Optional order-amount band, inclusive on both ends, currency units.
	MinOrderAmount *decimal.Decimal `json:"min_order_amount,omitempty"`
	MaxOrderAmount *decimal.Decimal `json:"max_order_amount,omitempty"`

	EffectiveFrom  time.Time  `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Validate enforces the rate invariants at creation time so an invalid rate
// never reaches the calculator.
func (r *CommissionRate) Validate() error {
	if r.Percentage.IsNegative() || r.Percentage.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidRate
	}
	if r.FixedFee.IsNegative() {
		return ErrInvalidRate
	}
	if r.PromoPercentage != nil &&
		(r.PromoPercentage.IsNegative() || r.PromoPercentage.GreaterThan(decimal.NewFromInt(1))) {
		return ErrInvalidRate
	}
	if r.PromoFixedFee != nil && r.PromoFixedFee.IsNegative() {
		return ErrInvalidRate
	}
	if r.EffectiveUntil != nil && !r.EffectiveUntil.After(r.EffectiveFrom) {
		return ErrInvalidRate
	}
	if r.MinOrderAmount != nil && r.MaxOrderAmount != nil &&
		r.MaxOrderAmount.LessThan(*r.MinOrderAmount) {
		return ErrInvalidRate
	}
	return nil
}

// EffectiveAt reports whether the rate's validity window covers asOf.
func (r *CommissionRate) EffectiveAt(asOf time.Time) bool {
	if asOf.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveUntil != nil && !asOf.Before(*r.EffectiveUntil) {
		return false
	}
	return true
}

// CoversAmount reports whether the order amount falls inside the rate's
// amount band. Missing bounds are open-ended.
func (r *CommissionRate) CoversAmount(amount decimal.Decimal) bool {
	if r.MinOrderAmount != nil && amount.LessThan(*r.MinOrderAmount) {
		return false
	}
	if r.MaxOrderAmount != nil && amount.GreaterThan(*r.MaxOrderAmount) {
		return false
	}
	return true
}

// PromoActiveAt reports whether the promotional schedule applies at asOf.
func (r *CommissionRate) PromoActiveAt(asOf time.Time) bool {
	if r.PromoPercentage == nil || r.PromoEndDate == nil {
		return false
	}
	return !asOf.After(*r.PromoEndDate)
}

// ResolvedRate is the outcome of rate resolution: the concrete percentage and
// fixed fee to charge, tagged with where they came from.
type ResolvedRate struct {
	RateID     string          `json:"rate_id,omitempty"` // empty for the hard-coded default
	Source     RateSource      `json:"source"`
	Variant    RateVariant     `json:"variant"`
	Percentage decimal.Decimal `json:"percentage"`
	FixedFee   decimal.Decimal `json:"fixed_fee"`
	Currency   string          `json:"currency"`
}
