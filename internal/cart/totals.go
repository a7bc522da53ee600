package cart

import (
	"github.com/abgdnv/storefront/internal/money"
	"github.com/shopspring/decimal"
)

// ComputeTotals prices the entries against the catalog.
// Entries whose product cannot be resolved are left out of the sums and reported in SkippedProductIDs.
// The input slice is not modified.
func ComputeTotals(entries []Entry, products ProductLookup, taxRate decimal.Decimal) Totals {
	var t Totals
	for _, e := range entries {
		p, err := products.FindByID(e.ProductID)
		if err != nil {
			t.SkippedProductIDs = append(t.SkippedProductIDs, e.ProductID)
			continue
		}
		t.SubtotalCents += money.ToCents(p.UnitPrice) * int64(e.Quantity)
	}
	t.TaxCents = money.RoundHalfUp(t.SubtotalCents, taxRate)
	t.TotalCents = t.SubtotalCents + t.TaxCents
	return t
}

// BuildLines resolves entries into display lines, skipping unknown products.
func BuildLines(entries []Entry, products ProductLookup) []Line {
	lines := make([]Line, 0, len(entries))
	for _, e := range entries {
		p, err := products.FindByID(e.ProductID)
		if err != nil {
			continue
		}
		unit := money.ToCents(p.UnitPrice)
		lines = append(lines, Line{
			ProductID:      p.ID,
			Title:          p.Title,
			UnitPrice:      money.FromCents(unit),
			Quantity:       e.Quantity,
			Stock:          p.Stock,
			UnitPriceCents: unit,
			LineTotalCents: unit * int64(e.Quantity),
		})
	}
	return lines
}

// CountItems returns the sum of quantities.
func CountItems(entries []Entry) int {
	n := 0
	for _, e := range entries {
		n += e.Quantity
	}
	return n
}
