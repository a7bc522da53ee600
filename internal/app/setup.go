// Package app wires the storefront components together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/presenter"
	"github.com/abgdnv/storefront/internal/store"
	grpcImpl "github.com/abgdnv/storefront/internal/transport/grpc"
	"github.com/abgdnv/storefront/internal/transport/rest"
	"github.com/abgdnv/storefront/pkg/bootstrap"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/server"
	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
)

type Dependencies struct {
	Catalog        *catalog.Catalog
	CartService    *cart.Service
	Broker         *presenter.Broker
	Feed           *presenter.Feed
	Health         *grpcImpl.Health
	CurrencySymbol string
	// PromptTimeout keeps confirmation waits inside the HTTP write timeout.
	PromptTimeout time.Duration
	Logger        *slog.Logger
}

// NewCatalog returns the built-in catalog, or the one in cfg.File when set.
func NewCatalog(cfg config.CatalogConfig) (*catalog.Catalog, error) {
	if cfg.File == "" {
		return catalog.Default(), nil
	}
	products, err := catalog.LoadFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog from %s: %w", cfg.File, err)
	}
	return products, nil
}

// NewSlot opens the configured storage backend. The returned close function releases it.
// PostgreSQL is migrated on open and guarded by a circuit breaker.
func NewSlot(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Slot, func(), error) {
	noop := func() {}
	switch cfg.Storage.Driver {
	case config.DriverFile:
		slot, err := store.NewFile(cfg.Storage.Dir)
		if err != nil {
			return nil, noop, err
		}
		return slot, noop, nil
	case config.DriverPostgres:
		if err := store.Migrate(cfg.Database.URL); err != nil {
			return nil, noop, fmt.Errorf("failed to migrate database: %w", err)
		}
		dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		logger.Info("Successfully connected to the database!")
		slot := store.NewBreakerSlot(store.NewPgStore(dbPool), cfg.Resilience.CircuitBreaker, logger)
		return slot, dbPool.Close, nil
	default:
		return store.NewMemory(), noop, nil
	}
}

// SetupDependencies builds the cart and its presentation collaborators.
// The cart is not loaded yet; call CartService.Load before serving.
func SetupDependencies(products *catalog.Catalog, slot store.Slot, publisher messaging.Publisher,
	cfg *config.Config, logger *slog.Logger) *Dependencies {
	broker := presenter.NewBroker(logger)
	feed := presenter.NewFeed(presenter.DefaultNoticeLimit, logger)

	var confirmer cart.Confirmer = broker
	if cfg.Confirm.Mode == config.ConfirmAuto {
		confirmer = presenter.NewAutoConfirmer(logger)
	}

	taxRate := cfg.Cart.Rate()
	cartService := cart.NewService(products, slot, confirmer, feed, publisher, logger, cart.Options{
		Key:            cfg.Cart.StorageKey,
		TaxRate:        &taxRate,
		CurrencySymbol: cfg.Cart.CurrencySymbol,
	})

	return &Dependencies{
		Catalog:        products,
		CartService:    cartService,
		Broker:         broker,
		Feed:           feed,
		Health:         grpcImpl.NewHealth(grpcImpl.SlotProber{Slot: slot, Key: cfg.Cart.StorageKey}, logger),
		CurrencySymbol: cfg.Cart.CurrencySymbol,
		PromptTimeout:  rest.PromptTimeout(cfg.HTTPServer.Timeout.Write),
		Logger:         logger,
	}
}

// SetupHttpHandler initializes the router and routes of the storefront API.
// Used by tests to exercise the full middleware chain.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	handler := rest.NewHandler(deps.CartService, deps.Catalog, deps.Broker, deps.Feed, deps.CurrencySymbol, deps.Logger)
	handler.WithPromptTimeout(deps.PromptTimeout)
	handler.RegisterRoutes(mux)
}

// SetupHttpServer creates and configures the HTTP server.
func SetupHttpServer(deps *Dependencies, cfg *config.Config, serviceName string) *http.Server {
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, serviceName, mux)
}

// SetupGrpcServer creates the gRPC server exposing the health service.
func SetupGrpcServer(deps *Dependencies, enableReflection bool) *grpc.Server {
	return server.NewGRPCServer(deps.Logger, enableReflection, deps.Health.Register)
}
