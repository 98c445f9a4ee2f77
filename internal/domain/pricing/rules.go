package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/product"
)

var hundred = decimal.NewFromInt(100)

// Rule names reported by Name.
const (
	NameQuantityDiscount = "quantity_discount"
	NameBulkFixedPrice   = "bulk_fixed_price"
	NameBulkPercentage   = "bulk_percentage"
)

// QuantityDiscount is a "buy X get Y free" rule: for every complete set of
// BuyQuantity+FreeQuantity items, FreeQuantity items are free. Items outside a
// complete set are charged in full.
type QuantityDiscount struct {
	Code         string
	BuyQuantity  int
	FreeQuantity int
}

func (r QuantityDiscount) Name() string { return NameQuantityDiscount }
func (r QuantityDiscount) ProductCode() string { return r.Code }

func (r QuantityDiscount) Applicable(groups Groups) bool {
	return len(groups[r.Code]) > 0
}

func (r QuantityDiscount) Apply(groups Groups) decimal.Decimal {
	items := groups[r.Code]
	setSize := r.BuyQuantity + r.FreeQuantity
	if len(items) == 0 || setSize <= 0 || len(items) < setSize {
		return decimal.Zero
	}

	sets := len(items) / setSize
	free := decimal.NewFromInt(int64(sets * r.FreeQuantity))
	return items[0].Price.Amount.Mul(free)
}

// BulkFixedPrice drops the unit price of every item in the group to
// FixedPrice once the group holds at least MinQuantity items. FixedPrice must
// not exceed the product price; the rule does not guard against it.
type BulkFixedPrice struct {
	Code        string
	MinQuantity int
	FixedPrice  decimal.Decimal
}

func (r BulkFixedPrice) Name() string { return NameBulkFixedPrice }
func (r BulkFixedPrice) ProductCode() string { return r.Code }

func (r BulkFixedPrice) Applicable(groups Groups) bool {
	return len(groups[r.Code]) > 0
}

func (r BulkFixedPrice) Apply(groups Groups) decimal.Decimal {
	return applyBulk(groups[r.Code], r.MinQuantity, func(unit decimal.Decimal) decimal.Decimal {
		return unit.Sub(r.FixedPrice)
	})
}

// BulkPercentage takes Percentage percent off every item in the group once
// the group holds at least MinQuantity items.
type BulkPercentage struct {
	Code        string
	MinQuantity int
	Percentage  decimal.Decimal
}

func (r BulkPercentage) Name() string { return NameBulkPercentage }
func (r BulkPercentage) ProductCode() string { return r.Code }

func (r BulkPercentage) Applicable(groups Groups) bool {
	return len(groups[r.Code]) > 0
}

func (r BulkPercentage) Apply(groups Groups) decimal.Decimal {
	return applyBulk(groups[r.Code], r.MinQuantity, func(unit decimal.Decimal) decimal.Decimal {
		return unit.Mul(r.Percentage).Div(hundred)
	})
}

// applyBulk multiplies the per-unit saving by the full group size once the
// threshold is met. Every unit is discounted, not only those above it.
func applyBulk(items []product.Product, minQuantity int, saving func(unit decimal.Decimal) decimal.Decimal) decimal.Decimal {
	if len(items) == 0 || len(items) < minQuantity {
		return decimal.Zero
	}
	qty := decimal.NewFromInt(int64(len(items)))
	return saving(items[0].Price.Amount).Mul(qty)
}
