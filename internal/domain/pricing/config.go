package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// RuleType enumerates the supported rule kinds in configuration.
type RuleType string

const (
	// TypeQuantityDiscount selects QuantityDiscount ("buy X get Y free").
	TypeQuantityDiscount RuleType = NameQuantityDiscount
	// TypeBulkFixedPrice selects BulkFixedPrice.
	TypeBulkFixedPrice RuleType = NameBulkFixedPrice
	// TypeBulkPercentage selects BulkPercentage.
	TypeBulkPercentage RuleType = NameBulkPercentage
)

// RuleConfig is the serialisable description of a rule.
type RuleConfig struct {
	Type         RuleType
	ProductCode  string
	BuyQuantity  int
	FreeQuantity int
	MinQuantity  int
	FixedPrice   decimal.Decimal
	Percentage   decimal.Decimal
}

// NewRule builds the rule described by cfg.
func NewRule(cfg RuleConfig) (Rule, error) {
	if cfg.ProductCode == "" {
		return nil, errors.Errorf("rule %q: product code required", cfg.Type)
	}

	switch cfg.Type {
	case TypeQuantityDiscount:
		if cfg.BuyQuantity < 0 || cfg.FreeQuantity <= 0 {
			return nil, errors.Errorf("rule %q for %s: buy must be >= 0 and free > 0", cfg.Type, cfg.ProductCode)
		}
		return QuantityDiscount{
			Code:         cfg.ProductCode,
			BuyQuantity:  cfg.BuyQuantity,
			FreeQuantity: cfg.FreeQuantity,
		}, nil
	case TypeBulkFixedPrice:
		if cfg.FixedPrice.IsNegative() {
			return nil, errors.Errorf("rule %q for %s: fixed price must not be negative", cfg.Type, cfg.ProductCode)
		}
		return BulkFixedPrice{
			Code:        cfg.ProductCode,
			MinQuantity: cfg.MinQuantity,
			FixedPrice:  cfg.FixedPrice,
		}, nil
	case TypeBulkPercentage:
		if cfg.Percentage.IsNegative() || cfg.Percentage.GreaterThan(hundred) {
			return nil, errors.Errorf("rule %q for %s: percentage must be within [0, 100]", cfg.Type, cfg.ProductCode)
		}
		return BulkPercentage{
			Code:        cfg.ProductCode,
			MinQuantity: cfg.MinQuantity,
			Percentage:  cfg.Percentage,
		}, nil
	default:
		return nil, errors.Errorf("unsupported rule type: %q", cfg.Type)
	}
}

// NewEngineFromConfig builds every rule in cfgs and registers them on a new
// Engine.
func NewEngineFromConfig(cfgs []RuleConfig) (*Engine, error) {
	rules := make([]Rule, 0, len(cfgs))
	for i, cfg := range cfgs {
		r, err := NewRule(cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %d", i)
		}
		rules = append(rules, r)
	}
	return NewEngine(rules...)
}
