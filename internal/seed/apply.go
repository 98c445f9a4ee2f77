package seed

import (
	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/currency"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// Catalog accepts products.
type Catalog interface {
	Put(p product.Product) error
}

// Stock accepts initial stock levels.
type Stock interface {
	AddProduct(code string, units int)
}

// RateTable accepts exchange rates.
type RateTable interface {
	UpdateRates(rates currency.Rates) error
}

// Target receives seed data. Nil fields are skipped.
type Target struct {
	Catalog Catalog
	Stock   Stock
	Rates   RateTable
}

// Apply loads d into t and builds the pricing engine described by its rules.
func (d *Data) Apply(t Target) (*pricing.Engine, error) {
	for _, it := range d.Items {
		if t.Catalog != nil {
			if err := t.Catalog.Put(it.Product); err != nil {
				return nil, errors.Wrapf(err, "put product %s", it.Code)
			}
		}
		if t.Stock != nil {
			t.Stock.AddProduct(it.Code, it.Units)
		}
	}

	if t.Rates != nil && len(d.Rates) > 0 {
		if err := t.Rates.UpdateRates(d.Rates); err != nil {
			return nil, errors.Wrap(err, "update rates")
		}
	}

	engine, err := pricing.NewEngineFromConfig(d.Rules)
	if err != nil {
		return nil, errors.Wrap(err, "build rules")
	}
	return engine, nil
}
