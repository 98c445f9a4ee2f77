// Package pricing computes basket discounts from composable rules.
//
// Rules are evaluated independently against line items grouped by product
// code; their discounts sum. A rule never observes another rule's effect.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/product"
)

// Groups maps a product code to the line items carrying that code, in scan
// order.
type Groups map[string][]product.Product

// Group partitions items by product code, preserving scan order within each
// group.
func Group(items []product.Product) Groups {
	groups := make(Groups)
	for _, item := range items {
		groups[item.Code] = append(groups[item.Code], item)
	}
	return groups
}

// Rule computes a discount for one product code group.
type Rule interface {
	// Name identifies the rule kind in reports and metrics.
	Name() string
	// ProductCode is the group this rule targets.
	ProductCode() string
	// Applicable reports whether the rule has anything to evaluate.
	Applicable(groups Groups) bool
	// Apply returns the discount amount, zero when thresholds are not met.
	Apply(groups Groups) decimal.Decimal
}

// Application records one rule's contribution to a basket discount.
type Application struct {
	Rule        string
	ProductCode string
	Amount      decimal.Decimal
}
