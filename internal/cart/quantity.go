package cart

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseQuantity converts raw user input to a requested quantity.
// Fractions are truncated; anything non-numeric or below 1 becomes 1.
func ParseQuantity(raw string) int {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 1
	}
	d = d.Truncate(0)
	if !d.IsPositive() {
		return 1
	}
	if !d.LessThan(decimal.NewFromInt(maxQuantity)) {
		return maxQuantity
	}
	return int(d.IntPart())
}

const maxQuantity = math.MaxInt32

// clamp limits q to [1, stock]. With no stock the result is 0.
func clamp(q, stock int) int {
	if q > stock {
		q = stock
	}
	if q < 1 && stock >= 1 {
		q = 1
	}
	return q
}
