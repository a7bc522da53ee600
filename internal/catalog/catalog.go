// Package catalog holds the immutable product list of the storefront.
package catalog

import (
	"fmt"
	"slices"

	storeerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Products are never mutated after the catalog is built.
type Product struct {
	ID          int             `json:"id"          validate:"required,gt=0"`
	Title       string          `json:"title"       validate:"required,max=200"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Stock       int             `json:"stock"       validate:"gte=0"`
	Category    string          `json:"category"    validate:"max=100"`
	Description string          `json:"description" validate:"max=1000"`
	Image       string          `json:"image,omitempty"`
}

// Catalog is a read-only product list with lookup by id. Safe for concurrent use.
type Catalog struct {
	products []Product
	index    map[int]int
}

// New validates the products and builds a catalog preserving their order.
// Ids must be unique and prices strictly positive.
func New(products []Product) (*Catalog, error) {
	validate := validator.New()
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		index:    make(map[int]int, len(products)),
	}
	for _, p := range products {
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("invalid product %d: %w", p.ID, err)
		}
		if !p.UnitPrice.IsPositive() {
			return nil, fmt.Errorf("invalid product %d: price must be greater than zero", p.ID)
		}
		if _, dup := c.index[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product id %d", p.ID)
		}
		c.index[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

// FindByID returns the product with the given id.
// Returns ErrProductNotFound if no product exists with the given ID.
func (c *Catalog) FindByID(id int) (*Product, error) {
	i, ok := c.index[id]
	if !ok {
		return nil, storeerrors.ErrProductNotFound
	}
	p := c.products[i]
	return &p, nil
}

// FindAll returns a copy of all products in catalog order.
func (c *Catalog) FindAll() []Product {
	return slices.Clone(c.products)
}

// Len reports the number of products.
func (c *Catalog) Len() int {
	return len(c.products)
}

// Categories returns the distinct categories in first-seen order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range c.products {
		if _, ok := seen[p.Category]; ok || p.Category == "" {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}
