// Package memory provides in-process implementations of the catalog and the
// open-session registry.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/product"
)

var _ product.Catalog = (*Catalog)(nil)

// Catalog implements product.Catalog over a map keyed by product code.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]product.Product
}

// NewCatalog returns a Catalog holding products. Later duplicates replace
// earlier ones.
func NewCatalog(products ...product.Product) *Catalog {
	c := &Catalog{products: make(map[string]product.Product, len(products))}
	for _, p := range products {
		c.products[p.Code] = p
	}
	return c
}

// Put adds or replaces a product.
func (c *Catalog) Put(p product.Product) error {
	if p.Code == "" {
		return errors.New("product code required")
	}
	if p.Price.IsNegative() {
		return errors.Errorf("product %s: negative price %s", p.Code, p.Price)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.Code] = p
	return nil
}

// Find returns the product with the given code or a *product.NotFoundError.
func (c *Catalog) Find(_ context.Context, code string) (*product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[code]
	if !ok {
		return nil, &product.NotFoundError{Code: code}
	}
	return &p, nil
}

// List returns all products ordered by code.
func (c *Catalog) List(_ context.Context) ([]product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]product.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}
