// Package money provides a currency-tagged decimal amount.
package money

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when no currency is specified.
const DefaultCurrency = "GBP"

// ErrCurrencyMismatch is returned when arithmetic mixes two currencies.
var ErrCurrencyMismatch = errors.New("currency mismatch")

var symbols = map[string]string{
	"GBP": "£",
	"USD": "$",
	"EUR": "€",
}

// Money is an amount tagged with an ISO currency code.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// New returns Money for the given amount and currency. An empty currency
// falls back to DefaultCurrency.
func New(amount decimal.Decimal, currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: amount, Currency: currency}
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return New(decimal.Zero, currency)
}

// MustParse parses amount as a decimal and panics on failure. Intended for
// tests and static tables.
func MustParse(amount, currency string) Money {
	return New(decimal.RequireFromString(amount), currency)
}

// Add returns m + other. Both must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub returns m - other. Both must share a currency.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// Mul scales the amount by factor.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(factor), Currency: m.Currency}
}

// Round rounds the amount to places decimal places.
func (m Money) Round(places int32) Money {
	return Money{Amount: m.Amount.Round(places), Currency: m.Currency}
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// String formats the amount with its currency symbol and two decimals.
func (m Money) String() string {
	sym, ok := symbols[m.Currency]
	if !ok {
		sym = m.Currency
	}
	return sym + m.Amount.StringFixed(2)
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return errors.Wrap(ErrCurrencyMismatch, fmt.Sprintf("%s and %s", m.Currency, other.Currency))
	}
	return nil
}
