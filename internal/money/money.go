// Package money converts between decimal currency amounts and integer cents.
// Totals are always accumulated in cents; decimals only appear at the edges.
package money

import (
	"github.com/shopspring/decimal"
)

// DefaultSymbol is the currency symbol of the storefront locale (Peruvian sol).
const DefaultSymbol = "S/"

var hundred = decimal.NewFromInt(100)

// ToCents converts an amount to cents, rounding half up at the cent.
// The conversion is exact for every amount with at most two decimals.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FloatToCents converts a float amount through its shortest decimal representation,
// so 19.99 becomes 1999 rather than 1998.
func FloatToCents(amount float64) int64 {
	return ToCents(decimal.NewFromFloat(amount))
}

// FromCents formats cents as a fixed two decimal string (1999 -> "19.99").
func FromCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Format renders cents for display, e.g. "S/ 19.99".
func Format(symbol string, cents int64) string {
	if symbol == "" {
		return FromCents(cents)
	}
	return symbol + " " + FromCents(cents)
}

// RoundHalfUp multiplies cents by rate and rounds the result half up to whole cents.
func RoundHalfUp(cents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Mul(rate).Round(0).IntPart()
}

// MustParse parses a decimal literal and panics on failure.
// Intended for compile-time constants such as the built-in catalog.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
