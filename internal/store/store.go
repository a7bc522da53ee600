// Package store provides the durable key/value slot the cart is persisted to.
package store

import "context"

// Slot is a named key/value storage area holding serialized values.
// It abstracts the underlying data store, allowing for different implementations (in-memory, file, database).
type Slot interface {
	// Read returns the value stored under key.
	// Returns ErrSlotEmpty if nothing was ever written under key.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write replaces the value stored under key.
	Write(ctx context.Context, key string, value []byte) error
}
