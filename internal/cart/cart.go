// Package cart implements the shopping cart: entries, pricing and checkout.
package cart

import (
	"context"
	"time"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/google/uuid"
)

// Entry is one product line of the cart. Quantity is always between 1 and the product stock.
type Entry struct {
	ProductID int `json:"productId"`
	Quantity  int `json:"quantity"`
}

// Line is an entry resolved against the catalog for display.
type Line struct {
	ProductID      int    `json:"productId"`
	Title          string `json:"title"`
	UnitPrice      string `json:"unitPrice"`
	Quantity       int    `json:"quantity"`
	Stock          int    `json:"stock"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	LineTotalCents int64  `json:"lineTotalCents"`
}

// Totals are derived from the cart on demand and never stored.
type Totals struct {
	SubtotalCents     int64 `json:"subtotalCents"`
	TaxCents          int64 `json:"taxCents"`
	TotalCents        int64 `json:"totalCents"`
	SkippedProductIDs []int `json:"skippedProductIds,omitempty"`
}

// Receipt describes a completed checkout.
type Receipt struct {
	CheckoutID  uuid.UUID `json:"checkoutId"`
	Lines       []Line    `json:"lines"`
	Totals      Totals    `json:"totals"`
	CompletedAt time.Time `json:"completedAt"`
}

// ProductLookup resolves product ids to catalog products.
type ProductLookup interface {
	// FindByID returns ErrProductNotFound if no product exists with the given ID.
	FindByID(id int) (*catalog.Product, error)
}

// Confirmer asks the user a yes/no question and blocks until it is answered.
// A cancelled context is treated as "no".
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// Notifier receives change signals and short user-facing messages.
type Notifier interface {
	CartChanged(ctx context.Context)
	Notice(ctx context.Context, message string)
}

// NoopNotifier discards all notifications.
type NoopNotifier struct{}

func (NoopNotifier) CartChanged(context.Context)    {}
func (NoopNotifier) Notice(context.Context, string) {}
