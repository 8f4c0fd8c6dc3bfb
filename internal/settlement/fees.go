package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/feastly/settlement/internal/money"
)

// FeeEstimator approximates what the payment processor will charge for a
// given gross amount. The estimate is informational: the authoritative fee
// arrives later from the processor and is reconciled out of band.
type FeeEstimator interface {
	Estimate(gross decimal.Decimal) decimal.Decimal
}

// CardFeeEstimator is a local approximation of card-processing cost:
// gross * rate + fixed, rounded half-up to 2 decimal places. No network
// dependency.
type CardFeeEstimator struct {
	Rate  decimal.Decimal
	Fixed decimal.Decimal
}

// NewCardFeeEstimator returns the default approximation (1.4% + 0.25).
func NewCardFeeEstimator() *CardFeeEstimator {
	return &CardFeeEstimator{
		Rate:  money.MustParse("0.014"),
		Fixed: money.MustParse("0.25"),
	}
}

func (e *CardFeeEstimator) Estimate(gross decimal.Decimal) decimal.Decimal {
	return money.Round2(gross.Mul(e.Rate).Add(e.Fixed))
}
