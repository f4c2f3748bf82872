package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/rl1809/milk-route/internal/core/domain"
)

// Catalog is a fixed, ordered product list. It is safe for concurrent reads
// and never changes after construction.
type Catalog struct {
	products []domain.Product
	byID     map[string]int
}

func New(products []domain.Product) *Catalog {
	c := &Catalog{
		products: make([]domain.Product, len(products)),
		byID:     make(map[string]int, len(products)),
	}
	copy(c.products, products)
	for i, p := range c.products {
		c.byID[p.ID] = i
	}
	return c
}

// Default returns the route's six-product catalog.
func Default() *Catalog {
	return New([]domain.Product{
		{ID: "prod-1", Name: "Smart", UnitPrice: decimal.RequireFromString("26.00")},
		{ID: "prod-2", Name: "Tone milk 180ml", UnitPrice: decimal.RequireFromString("10.50")},
		{ID: "prod-3", Name: "DTM 180ml", UnitPrice: decimal.RequireFromString("9.00")},
		{ID: "prod-4", Name: "Vikas Gold", UnitPrice: decimal.RequireFromString("35.50")},
		{ID: "prod-5", Name: "Dahi 180ml", UnitPrice: decimal.RequireFromString("18.00")},
		{ID: "prod-6", Name: "Vikas Tak", UnitPrice: decimal.RequireFromString("15.00")},
	})
}

func (c *Catalog) List() []domain.Product {
	out := make([]domain.Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Catalog) Find(id string) (domain.Product, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Product{}, false
	}
	return c.products[i], true
}
