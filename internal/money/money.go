package money

import "github.com/shopspring/decimal"

// Round2 rounds a currency amount to 2 decimal places. decimal.Round rounds
// half away from zero, which for the non-negative amounts handled here is
// standard half-up rounding.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ToCents converts a currency-unit amount to integer minor units. Sub-cent
// remainders are truncated, never rounded: the ledger must not invent value.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Truncate(0).IntPart()
}

// FromCents converts integer minor units back to a currency-unit amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// MustParse parses a decimal string, panicking on malformed input. Only for
// literals known at compile time.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
