package cart

import (
	"encoding/json"
	"fmt"

	storeerrors "github.com/abgdnv/storefront/internal/errors"
)

// storedEntry accepts both the current "quantity" key and the legacy "qty" key.
type storedEntry struct {
	ProductID *int `json:"productId"`
	Quantity  *int `json:"quantity,omitempty"`
	Qty       *int `json:"qty,omitempty"`
}

// Encode serializes entries as a JSON array of {"productId","quantity"} objects.
func Encode(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart: %w", err)
	}
	return data, nil
}

// Decode parses a stored cart. Structural problems are reported as ErrMalformedStoredCart;
// invariant violations such as unknown products are left to the caller.
func Decode(data []byte) ([]Entry, error) {
	var raw []storedEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", storeerrors.ErrMalformedStoredCart, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an array", storeerrors.ErrMalformedStoredCart)
	}
	entries := make([]Entry, 0, len(raw))
	for i, r := range raw {
		if r.ProductID == nil {
			return nil, fmt.Errorf("%w: entry %d has no productId", storeerrors.ErrMalformedStoredCart, i)
		}
		q := r.Quantity
		if q == nil {
			q = r.Qty
		}
		if q == nil {
			return nil, fmt.Errorf("%w: entry %d has no quantity", storeerrors.ErrMalformedStoredCart, i)
		}
		entries = append(entries, Entry{ProductID: *r.ProductID, Quantity: *q})
	}
	return entries, nil
}
