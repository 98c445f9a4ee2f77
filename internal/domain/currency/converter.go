// Package currency converts Money between currencies using a rate table.
package currency

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// ErrUnsupportedCurrency matches UnsupportedError via errors.Is.
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// UnsupportedError is returned when no rate exists for a currency pair.
type UnsupportedError struct {
	From string
	To   string
}

func (e *UnsupportedError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("unsupported source currency: %s", e.From)
	}
	return fmt.Sprintf("no exchange rate available from %s to %s", e.From, e.To)
}

// Is makes errors.Is(err, ErrUnsupportedCurrency) match.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupportedCurrency
}

// Rates maps source currency -> target currency -> rate.
type Rates map[string]map[string]decimal.Decimal

// DefaultRates returns the built-in GBP/USD/EUR table.
func DefaultRates() Rates {
	return Rates{
		"GBP": {"USD": decimal.RequireFromString("1.25"), "EUR": decimal.RequireFromString("1.15")},
		"USD": {"GBP": decimal.RequireFromString("0.80"), "EUR": decimal.RequireFromString("0.92")},
		"EUR": {"GBP": decimal.RequireFromString("0.87"), "USD": decimal.RequireFromString("1.09")},
	}
}

// Converter converts amounts using a mutable rate table. It is safe for
// concurrent use.
type Converter struct {
	mu    sync.RWMutex
	rates Rates
}

// NewConverter creates a Converter from rates. A nil table selects
// DefaultRates. Missing inverse rates are derived as 1/rate and every known
// currency converts to itself at 1.
func NewConverter(rates Rates) *Converter {
	if rates == nil {
		rates = DefaultRates()
	}

	c := &Converter{rates: make(Rates, len(rates))}
	for from, to := range rates {
		c.rates[from] = make(map[string]decimal.Decimal, len(to))
		for target, rate := range to {
			c.rates[from][target] = rate
		}
	}
	c.deriveInverse()
	return c
}

// Convert returns m expressed in target. Same-currency conversion returns m
// unchanged.
func (c *Converter) Convert(m money.Money, target string) (money.Money, error) {
	if m.Currency == target {
		return m, nil
	}
	rate, err := c.Rate(m.Currency, target)
	if err != nil {
		return money.Money{}, err
	}
	return money.New(m.Amount.Mul(rate), target), nil
}

// Rate returns the multiplier converting from into to.
func (c *Converter) Rate(from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	targets, ok := c.rates[from]
	if !ok {
		return decimal.Decimal{}, &UnsupportedError{From: from}
	}
	rate, ok := targets[to]
	if !ok {
		return decimal.Decimal{}, &UnsupportedError{From: from, To: to}
	}
	return rate, nil
}

// SupportedCurrencies returns the known currency codes in sorted order.
func (c *Converter) SupportedCurrencies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.rates))
	for code := range c.rates {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// UpdateRates merges rates into the table. Each updated pair also overwrites
// its inverse unless the same update sets that inverse explicitly.
func (c *Converter) UpdateRates(rates Rates) error {
	for from, to := range rates {
		for target, rate := range to {
			if !rate.IsPositive() {
				return errors.Errorf("rate %s->%s must be positive, got %s", from, target, rate)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for from, to := range rates {
		for target, rate := range to {
			c.set(from, target, rate)
		}
	}
	for from, to := range rates {
		for target, rate := range to {
			if _, explicit := rates[target][from]; explicit {
				continue
			}
			c.set(target, from, decimal.NewFromInt(1).Div(rate))
		}
	}
	c.deriveInverse()
	return nil
}

func (c *Converter) set(from, to string, rate decimal.Decimal) {
	if c.rates[from] == nil {
		c.rates[from] = make(map[string]decimal.Decimal)
	}
	c.rates[from][to] = rate
}

// deriveInverse fills in missing inverse rates and self rates. Callers hold
// the write lock or own c exclusively.
func (c *Converter) deriveInverse() {
	one := decimal.NewFromInt(1)

	type pair struct {
		from, to string
		rate     decimal.Decimal
	}
	var missing []pair
	for from, to := range c.rates {
		for target, rate := range to {
			if _, ok := c.rates[target][from]; ok || rate.IsZero() {
				continue
			}
			missing = append(missing, pair{from: target, to: from, rate: one.Div(rate)})
		}
	}
	for _, p := range missing {
		c.set(p.from, p.to, p.rate)
	}

	for code := range c.rates {
		c.rates[code][code] = one
	}
}
