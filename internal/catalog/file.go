package catalog

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// productRecord is the on-disk shape of a product. Prices are read as text
// so that "19.99" never passes through a float.
type productRecord struct {
	ID          int    `koanf:"id"`
	Title       string `koanf:"title"`
	Price       string `koanf:"price"`
	Stock       int    `koanf:"stock"`
	Category    string `koanf:"category"`
	Description string `koanf:"description"`
	Image       string `koanf:"image"`
}

// LoadFile reads a YAML catalog of the form:
//
//	products:
//	  - id: 1
//	    title: "Laptop"
//	    price: "2599.00"
//	    stock: 5
func LoadFile(path string) (*Catalog, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var records []productRecord
	if err := k.Unmarshal("products", &records); err != nil {
		return nil, fmt.Errorf("failed to decode catalog file %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("catalog file %s has no products", path)
	}

	products := make([]Product, 0, len(records))
	for _, r := range records {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, fmt.Errorf("product %d: invalid price %q: %w", r.ID, r.Price, err)
		}
		products = append(products, Product{
			ID:          r.ID,
			Title:       r.Title,
			UnitPrice:   price,
			Stock:       r.Stock,
			Category:    r.Category,
			Description: r.Description,
			Image:       r.Image,
		})
	}
	return New(products)
}
