package commission

import (
	"github.com/shopspring/decimal"

	"github.com/feastly/settlement/internal/domain"
	"github.com/feastly/settlement/internal/money"
)

// Breakdown is the outcome of applying a resolved rate to an order's gross
// amount. All values are currency units; the recorder converts to minor
// units when it writes the ledger.
type Breakdown struct {
	Commission decimal.Decimal `json:"commission"`
	FixedFee   decimal.Decimal `json:"fixed_fee"`
	Net        decimal.Decimal `json:"net"`
	// Shortfall is the amount by which commission + fixed fee exceeded the
	// gross, absorbed by the platform when net clamps to zero. Zero on the
	// normal path.
	Shortfall decimal.Decimal `json:"shortfall"`
}

// Compute applies a resolved rate to a gross order amount. Pure and
// deterministic: commission is the gross times the percentage, rounded
// half-up to 2 decimal places; net is gross minus commission minus fixed fee,
// clamped at zero. The platform never reports a negative vendor payout; the
// clamped delta is surfaced as Shortfall so it can be ledgered instead of
// silently absorbed.
func Compute(rate domain.ResolvedRate, gross decimal.Decimal) Breakdown {
	commission := money.Round2(gross.Mul(rate.Percentage))
	fixedFee := money.Round2(rate.FixedFee)

	net := gross.Sub(commission).Sub(fixedFee)
	shortfall := decimal.Zero
	if net.IsNegative() {
		shortfall = net.Neg()
		net = decimal.Zero
	}

	return Breakdown{
		Commission: commission,
		FixedFee:   fixedFee,
		Net:        net,
		Shortfall:  shortfall,
	}
}
