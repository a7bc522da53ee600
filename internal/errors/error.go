// Package errors provides the error values shared by the storefront packages.
package errors

import "errors"

var ErrProductNotFound = errors.New("product not found")
var ErrInsufficientStock = errors.New("insufficient stock")
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

var ErrEmptyCart = errors.New("cart is empty")

// ErrMalformedStoredCart is recovered by the cart store, which starts from an empty cart instead.
var ErrMalformedStoredCart = errors.New("stored cart is malformed")

var ErrSlotEmpty = errors.New("storage slot is empty")
var ErrStorageUnavailable = errors.New("storage is unavailable")

var ErrPromptNotFound = errors.New("prompt not found")
