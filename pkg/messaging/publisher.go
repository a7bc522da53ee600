package messaging

import (
	"context"
)

// CheckoutCompletedSubject is published once per confirmed checkout.
const CheckoutCompletedSubject = "cart.checkout.completed"

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher discards events; used when messaging is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
