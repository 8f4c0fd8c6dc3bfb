package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// LedgerCurrency is the platform settlement currency. Every ledger row is
// stored in this currency.
const LedgerCurrency = "usd"

// multiplierToLedger maps currency codes to the stored exchange-rate
// multiplier applied when normalizing an order amount into the ledger
// currency. Anything beyond this stored multiplier (live FX, tax handling)
// is delegated to the payment processor.
var multiplierToLedger = map[string]decimal.Decimal{
	"usd": decimal.NewFromInt(1),
	"eur": MustParse("1.08"),
	"gbp": MustParse("1.27"),
	"cad": MustParse("0.73"),
}

// ToLedger converts an amount in the given currency to the ledger currency.
func ToLedger(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	mult, ok := multiplierToLedger[strings.ToLower(currency)]
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported currency: %s", currency)
	}
	return Round2(amount.Mul(mult)), nil
}

// Supported reports whether a currency code has a stored multiplier.
func Supported(currency string) bool {
	_, ok := multiplierToLedger[strings.ToLower(currency)]
	return ok
}
