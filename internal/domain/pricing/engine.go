package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrDuplicateTarget matches DuplicateTargetError via errors.Is.
var ErrDuplicateTarget = errors.New("product code already targeted by a rule")

// DuplicateTargetError is returned when two rules target the same product
// code. Stacking rules on one group is not supported.
type DuplicateTargetError struct {
	ProductCode string
	Existing    string
	Rejected    string
}

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("rule %s for product %s conflicts with registered rule %s",
		e.Rejected, e.ProductCode, e.Existing)
}

// Is makes errors.Is(err, ErrDuplicateTarget) match.
func (e *DuplicateTargetError) Is(target error) bool {
	return target == ErrDuplicateTarget
}

// Engine evaluates a fixed set of rules against grouped line items. An Engine
// is read-only after construction apart from AddRule and may be shared between
// baskets once configured.
type Engine struct {
	rules   []Rule
	targets map[string]Rule
}

// NewEngine creates an Engine with the given rules registered in order.
func NewEngine(rules ...Rule) (*Engine, error) {
	e := &Engine{targets: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		if err := e.AddRule(r); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// AddRule registers r. It fails if another rule already targets r's product
// code.
func (e *Engine) AddRule(r Rule) error {
	if existing, ok := e.targets[r.ProductCode()]; ok {
		return &DuplicateTargetError{
			ProductCode: r.ProductCode(),
			Existing:    existing.Name(),
			Rejected:    r.Name(),
		}
	}
	e.targets[r.ProductCode()] = r
	e.rules = append(e.rules, r)
	return nil
}

// Rules returns the registered rules in registration order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Apply returns the sum of discounts of every applicable rule. The result is
// not clamped; callers floor the final total.
func (e *Engine) Apply(groups Groups) decimal.Decimal {
	total := decimal.Zero
	for _, r := range e.rules {
		if r.Applicable(groups) {
			total = total.Add(r.Apply(groups))
		}
	}
	return total
}

// Evaluate returns each applicable rule's non-zero contribution in
// registration order.
func (e *Engine) Evaluate(groups Groups) []Application {
	var out []Application
	for _, r := range e.rules {
		if !r.Applicable(groups) {
			continue
		}
		amount := r.Apply(groups)
		if amount.IsZero() {
			continue
		}
		out = append(out, Application{
			Rule:        r.Name(),
			ProductCode: r.ProductCode(),
			Amount:      amount,
		})
	}
	return out
}
