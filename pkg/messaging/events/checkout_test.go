package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CheckoutCompletedEvent_Payload(t *testing.T) {
	// given
	id := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")
	event := CheckoutCompletedEvent{
		CheckoutID:    id,
		Lines:         []CheckoutLine{{ProductID: 1, Quantity: 2, UnitPriceCents: 259900, LineTotalCents: 519800}},
		SubtotalCents: 519800,
		TaxCents:      93564,
		TotalCents:    613364,
		CompletedAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	// when
	data, err := event.Payload()

	// then
	require.NoError(t, err)
	assert.Equal(t, messaging.CheckoutCompletedSubject, event.Subject())
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id.String(), decoded["checkout_id"])
	assert.EqualValues(t, 613364, decoded["total_cents"])
	assert.Len(t, decoded["lines"], 1)
}
