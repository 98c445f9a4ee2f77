// Package basket holds the ordered line items of one checkout and prices them
// against a pricing.Engine.
package basket

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/inventory"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// StockLedger is the subset of inventory.Ledger a basket reserves against.
type StockLedger interface {
	TryReserve(code string, quantity int, sessionID string) (inventory.Level, bool)
	Release(code string, quantity int, sessionID string) bool
	StockLevel(code string) inventory.Level
}

// Converter converts amounts into another currency.
type Converter interface {
	Convert(m money.Money, target string) (money.Money, error)
}

// Config configures a Basket. Rules, Ledger and Converter are optional.
type Config struct {
	Rules        *pricing.Engine
	Ledger       StockLedger
	SessionID    string
	Converter    Converter
	BaseCurrency string
}

// Summary is a priced view of the basket in its base currency.
type Summary struct {
	Subtotal     money.Money
	Discount     money.Money
	Total        money.Money
	Applications []pricing.Application
}

// Basket is an ordered list of products owned by a single session. It is not
// safe for concurrent use.
type Basket struct {
	rules     *pricing.Engine
	ledger    StockLedger
	sessionID string
	converter Converter
	base      string

	items []product.Product
}

// New creates an empty basket.
func New(cfg Config) *Basket {
	base := cfg.BaseCurrency
	if base == "" {
		base = money.DefaultCurrency
	}
	return &Basket{
		rules:     cfg.Rules,
		ledger:    cfg.Ledger,
		sessionID: cfg.SessionID,
		converter: cfg.Converter,
		base:      base,
	}
}

// BaseCurrency returns the currency totals are computed in.
func (b *Basket) BaseCurrency() string {
	return b.base
}

// Add appends p. The price must convert into the base currency, otherwise
// the converter's error (or money.ErrCurrencyMismatch without a converter) is
// returned. When the basket reserves stock, one unit is reserved and an
// *inventory.InsufficientStockError is returned if none is left. On any error
// the basket and the ledger are unchanged.
func (b *Basket) Add(p product.Product) error {
	if _, err := b.toBase(p); err != nil {
		return err
	}
	if b.reserves() {
		lvl, ok := b.ledger.TryReserve(p.Code, 1, b.sessionID)
		if !ok {
			return &inventory.InsufficientStockError{
				ProductCode: p.Code,
				Requested:   1,
				Available:   lvl.Available,
			}
		}
	}
	b.items = append(b.items, p)
	return nil
}

// Remove drops the first item with the given code and releases its unit.
// It reports whether an item was removed.
func (b *Basket) Remove(code string) bool {
	for i, it := range b.items {
		if it.Code != code {
			continue
		}
		b.items = append(b.items[:i], b.items[i+1:]...)
		if b.reserves() {
			b.ledger.Release(code, 1, b.sessionID)
		}
		return true
	}
	return false
}

// Items returns a copy of the items in scan order.
func (b *Basket) Items() []product.Product {
	out := make([]product.Product, len(b.items))
	copy(out, b.items)
	return out
}

// Len returns the number of items.
func (b *Basket) Len() int {
	return len(b.items)
}

// GroupedItems groups the items by product code.
func (b *Basket) GroupedItems() pricing.Groups {
	return pricing.Group(b.items)
}

// Total returns the discounted total in the base currency.
func (b *Basket) Total() (money.Money, error) {
	s, err := b.Summary()
	if err != nil {
		return money.Money{}, err
	}
	return s.Total, nil
}

// Summary prices the basket. Items are converted to the base currency before
// grouping so rule discounts are expressed in it too. The total is floored at
// zero and rounded to 2 decimal places.
func (b *Basket) Summary() (Summary, error) {
	if len(b.items) == 0 {
		zero := money.Zero(b.base)
		return Summary{Subtotal: zero, Discount: zero, Total: zero}, nil
	}

	priced, err := b.inBase()
	if err != nil {
		return Summary{}, err
	}

	subtotal := decimal.Zero
	for _, it := range priced {
		subtotal = subtotal.Add(it.Price.Amount)
	}

	discount := decimal.Zero
	var applied []pricing.Application
	if b.rules != nil {
		groups := pricing.Group(priced)
		applied = b.rules.Evaluate(groups)
		discount = b.rules.Apply(groups)
	}

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Summary{
		Subtotal:     money.New(subtotal.Round(2), b.base),
		Discount:     money.New(discount.Round(2), b.base),
		Total:        money.New(total.Round(2), b.base),
		Applications: applied,
	}, nil
}

func (b *Basket) inBase() ([]product.Product, error) {
	out := make([]product.Product, len(b.items))
	for i, it := range b.items {
		price, err := b.toBase(it)
		if err != nil {
			return nil, err
		}
		out[i] = it
		out[i].Price = price
	}
	return out, nil
}

// toBase returns the price of p in the base currency. Converter errors are
// returned as is.
func (b *Basket) toBase(p product.Product) (money.Money, error) {
	if p.Price.Currency == b.base {
		return p.Price, nil
	}
	if b.converter == nil {
		return money.Money{}, errors.Wrapf(money.ErrCurrencyMismatch, "product %s priced in %s, basket in %s",
			p.Code, p.Price.Currency, b.base)
	}
	return b.converter.Convert(p.Price, b.base)
}

func (b *Basket) reserves() bool {
	return b.ledger != nil && b.sessionID != ""
}
