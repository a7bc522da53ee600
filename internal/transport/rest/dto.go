package rest

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/money"
	"github.com/google/uuid"
)

// ProductDto is the API representation of a catalog product.
type ProductDto struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Price       string `json:"price"`
	PriceCents  int64  `json:"priceCents"`
	Stock       int    `json:"stock"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
}

// AddItemRequest is the body of POST /cart/items.
type AddItemRequest struct {
	ProductID int  `json:"productId" validate:"required,gt=0"`
	Quantity  *int `json:"quantity"  validate:"omitempty,gte=1,lte=2147483647"`
}

// SetQuantityRequest carries raw user input; numbers and numeric strings are both accepted.
type SetQuantityRequest struct {
	Quantity json.RawMessage `json:"quantity"`
}

type AnswerRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

type TotalsDto struct {
	cart.Totals
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
	Display  string `json:"display"`
}

// CartResponse is returned by GET /cart and by every mutation.
type CartResponse struct {
	Lines   []cart.Line `json:"lines"`
	Count   int         `json:"count"`
	Totals  TotalsDto   `json:"totals"`
	Version uint64      `json:"version"`
}

// ConfirmationResponse reports whether a confirmation-gated operation went ahead.
type ConfirmationResponse struct {
	Confirmed bool         `json:"confirmed"`
	Cart      CartResponse `json:"cart"`
}

type ReceiptDto struct {
	CheckoutID  uuid.UUID   `json:"checkoutId"`
	Lines       []cart.Line `json:"lines"`
	Totals      TotalsDto   `json:"totals"`
	CompletedAt time.Time   `json:"completedAt"`
}

type CheckoutResponse struct {
	Confirmed bool        `json:"confirmed"`
	Receipt   *ReceiptDto `json:"receipt,omitempty"`
}

func toProductDto(p *catalog.Product) ProductDto {
	cents := money.ToCents(p.UnitPrice)
	return ProductDto{
		ID:          p.ID,
		Title:       p.Title,
		Price:       money.FromCents(cents),
		PriceCents:  cents,
		Stock:       p.Stock,
		Category:    p.Category,
		Description: p.Description,
		Image:       p.Image,
	}
}
