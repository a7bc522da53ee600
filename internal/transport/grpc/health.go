// Package grpc exposes the gRPC health service of the storefront.
// The cart service reports NOT_SERVING while its storage cannot be read.
package grpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	storeerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// CartServiceName is the service name reported to health checks.
const CartServiceName = "storefront.v1.Cart"

// Prober checks a dependency; nil means healthy.
type Prober interface {
	Probe(ctx context.Context) error
}

// SlotProber probes storage by reading the cart key. An empty slot is healthy.
type SlotProber struct {
	Slot store.Slot
	Key  string
}

func (p SlotProber) Probe(ctx context.Context) error {
	_, err := p.Slot.Read(ctx, p.Key)
	if errors.Is(err, storeerrors.ErrSlotEmpty) {
		return nil
	}
	return err
}

type Health struct {
	server *health.Server
	prober Prober
	logger *slog.Logger
}

func NewHealth(prober Prober, logger *slog.Logger) *Health {
	h := &Health{
		server: health.NewServer(),
		prober: prober,
		logger: logger.With("component", "grpc-health"),
	}
	h.server.SetServingStatus(CartServiceName, healthpb.HealthCheckResponse_SERVING)
	return h
}

// Register adds the health service to a gRPC server.
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Check probes once and updates the serving status.
func (h *Health) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := h.prober.Probe(ctx); err != nil {
		h.logger.WarnContext(ctx, "storage probe failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus(CartServiceName, status)
	h.server.SetServingStatus("", status)
	return status
}

// Run probes every interval until ctx is done, then marks everything NOT_SERVING.
func (h *Health) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return nil
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}
