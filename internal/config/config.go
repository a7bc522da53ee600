package config

import (
	"fmt"
	"strings"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/config/configloader"
	"github.com/shopspring/decimal"
)

var _ configloader.Validator = (*Config)(nil)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Confirmation modes.
const (
	ConfirmInteractive = "interactive"
	ConfirmAuto        = "auto"
)

type Config struct {
	HTTPServer config.HTTPConfig       `koanf:"server"`
	Database   config.DatabaseConfig   `koanf:"database"`
	Log        config.LogConfig        `koanf:"log"`
	PProf      config.PProfConfig      `koanf:"pprof"`
	GRPC       config.GrpcServerConfig `koanf:"grpc"`
	Shutdown   config.ShutdownConfig   `koanf:"shutdown"`
	NATS       config.NATSConfig       `koanf:"nats"`
	Telemetry  config.TelemetryConfig  `koanf:"telemetry"`
	Resilience config.ResilienceConfig `koanf:"resilience"`

	Cart    CartConfig    `koanf:"cart"`
	Storage StorageConfig `koanf:"storage"`
	Catalog CatalogConfig `koanf:"catalog"`
	Confirm ConfirmConfig `koanf:"confirm"`
}

type CartConfig struct {
	// TaxRate is a decimal string such as "0.18".
	TaxRate        string `koanf:"taxrate"`
	CurrencySymbol string `koanf:"currencysymbol"`
	StorageKey     string `koanf:"storagekey"`
}

// Rate parses TaxRate. Validate guarantees it parses.
func (c *CartConfig) Rate() decimal.Decimal {
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return decimal.Zero
	}
	return rate
}

type StorageConfig struct {
	Driver string `koanf:"driver"`
	Dir    string `koanf:"dir"`
}

type CatalogConfig struct {
	// File optionally replaces the built-in products with a YAML list.
	File string `koanf:"file"`
}

type ConfirmConfig struct {
	Mode string `koanf:"mode"`
}

func (c *Config) String() string {
	var b strings.Builder

	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.GRPC.String())
	if c.Storage.Driver == DriverPostgres {
		b.WriteString(c.Database.String())
		b.WriteString(c.Resilience.String())
	}
	b.WriteString(c.NATS.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())

	b.WriteString("\n--- Cart ---\n")
	b.WriteString(fmt.Sprintf("  cart.taxRate: %s\n", c.Cart.TaxRate))
	b.WriteString(fmt.Sprintf("  cart.currencySymbol: %s\n", c.Cart.CurrencySymbol))
	b.WriteString(fmt.Sprintf("  cart.storageKey: %s\n", c.Cart.StorageKey))
	b.WriteString(fmt.Sprintf("  storage.driver: %s\n", c.Storage.Driver))
	b.WriteString(fmt.Sprintf("  storage.dir: %s\n", c.Storage.Dir))
	b.WriteString(fmt.Sprintf("  catalog.file: %s\n", c.Catalog.File))
	b.WriteString(fmt.Sprintf("  confirm.mode: %s\n", c.Confirm.Mode))

	return b.String()
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	validators := []configloader.Validator{
		&c.HTTPServer, &c.Log, &c.PProf, &c.GRPC, &c.Shutdown, &c.NATS, &c.Telemetry,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	if c.Telemetry.Metrics.Enabled && !c.PProf.Enabled {
		return fmt.Errorf("metrics are served by the pprof server, enable pprof")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverFile:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage dir is required for the file driver")
		}
	case DriverPostgres:
		if err := c.Database.Validate(); err != nil {
			return err
		}
		if err := c.Resilience.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown storage driver %q, expected memory, file or postgres", c.Storage.Driver)
	}

	rate, err := decimal.NewFromString(c.Cart.TaxRate)
	if err != nil {
		return fmt.Errorf("invalid cart tax rate %q: %w", c.Cart.TaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("cart tax rate must be in [0, 1): %s", c.Cart.TaxRate)
	}
	if c.Cart.StorageKey == "" {
		return fmt.Errorf("cart storage key is not configured")
	}

	if c.Confirm.Mode != ConfirmInteractive && c.Confirm.Mode != ConfirmAuto {
		return fmt.Errorf("unknown confirm mode %q, expected interactive or auto", c.Confirm.Mode)
	}
	return nil
}
