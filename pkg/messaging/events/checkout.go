package events

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
)

type CheckoutLine struct {
	ProductID      int   `json:"product_id"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
	LineTotalCents int64 `json:"line_total_cents"`
}

// CheckoutCompletedEvent carries the trace context of the checkout request in Carrier.
type CheckoutCompletedEvent struct {
	Carrier       propagation.MapCarrier `json:"carrier,omitempty"`
	CheckoutID    uuid.UUID              `json:"checkout_id"`
	Lines         []CheckoutLine         `json:"lines"`
	SubtotalCents int64                  `json:"subtotal_cents"`
	TaxCents      int64                  `json:"tax_cents"`
	TotalCents    int64                  `json:"total_cents"`
	CompletedAt   time.Time              `json:"completed_at"`
}

func (e CheckoutCompletedEvent) Subject() string {
	return messaging.CheckoutCompletedSubject
}

func (e CheckoutCompletedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
