package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	storeerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/sony/gobreaker/v2"
)

// BreakerSlot wraps a remote Slot with a circuit breaker so that an unreachable
// backend fails fast with ErrStorageUnavailable instead of stalling every cart operation.
type BreakerSlot struct {
	next   Slot
	reads  *gobreaker.CircuitBreaker[[]byte]
	writes *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerSlot creates a BreakerSlot around next.
func NewBreakerSlot(next Slot, cfg config.CircuitBreakerConfig, logger *slog.Logger) *BreakerSlot {
	return &BreakerSlot{
		next:   next,
		reads:  gobreaker.NewCircuitBreaker[[]byte](breakerSettings("slot-read", cfg, logger)),
		writes: gobreaker.NewCircuitBreaker[struct{}](breakerSettings("slot-write", cfg, logger)),
	}
}

func breakerSettings(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			total := counts.TotalSuccesses + counts.TotalFailures
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures ||
				(total > cfg.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(total)*100 > float64(cfg.ErrorRatePercent))
		},
		IsSuccessful: func(err error) bool {
			// An empty slot or a caller giving up says nothing about backend health.
			return err == nil ||
				errors.Is(err, storeerrors.ErrSlotEmpty) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Storage circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
}

// Read delegates to the wrapped slot unless the read breaker is open.
func (b *BreakerSlot) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := b.reads.Execute(func() ([]byte, error) {
		return b.next.Read(ctx, key)
	})
	return data, translate(err)
}

// Write delegates to the wrapped slot unless the write breaker is open.
func (b *BreakerSlot) Write(ctx context.Context, key string, value []byte) error {
	_, err := b.writes.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Write(ctx, key, value)
	})
	return translate(err)
}

func translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", storeerrors.ErrStorageUnavailable, err)
	}
	return err
}
