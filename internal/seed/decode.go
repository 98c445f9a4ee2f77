package seed

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/currency"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// Parse decodes a seed document:
//
//	{
//	  "base_currency": "GBP",
//	  "products": [{"code": "GR1", "name": "Green Tea", "price": "3.11", "currency": "GBP", "units": 50}],
//	  "rules": [{"type": "quantity_discount", "product_code": "GR1", "buy_quantity": 1, "free_quantity": 1}],
//	  "rates": {"GBP": {"USD": "1.25"}}
//	}
//
// Decimal values may be JSON strings or numbers. Unknown fields are ignored.
func Parse(buf []byte) (*Data, error) {
	data := &Data{}
	d := jx.DecodeBytes(buf)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "base_currency":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "base_currency")
			}
			data.BaseCurrency = v
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d)
				if err != nil {
					return errors.Wrapf(err, "products[%d]", len(data.Items))
				}
				data.Items = append(data.Items, it)
				return nil
			})
		case "rules":
			return d.Arr(func(d *jx.Decoder) error {
				r, err := decodeRule(d)
				if err != nil {
					return errors.Wrapf(err, "rules[%d]", len(data.Rules))
				}
				data.Rules = append(data.Rules, r)
				return nil
			})
		case "rates":
			rates, err := decodeRates(d)
			if err != nil {
				return errors.Wrap(err, "rates")
			}
			data.Rates = rates
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "parse seed")
	}

	// Prices without a currency are in the document's base currency.
	for i := range data.Items {
		if data.Items[i].Price.Currency == "" {
			data.Items[i].Price = money.New(data.Items[i].Price.Amount, data.BaseCurrency)
		}
	}
	return data, nil
}

func decodeItem(d *jx.Decoder) (Item, error) {
	var (
		it     Item
		amount decimal.Decimal
		cur    string
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			it.Code, err = d.Str()
		case "name":
			it.Name, err = d.Str()
		case "price":
			amount, err = decodeDecimal(d)
		case "currency":
			cur, err = d.Str()
		case "units":
			it.Units, err = d.Int()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	}); err != nil {
		return Item{}, err
	}

	if it.Code == "" {
		return Item{}, errors.New("code required")
	}
	if amount.IsNegative() {
		return Item{}, errors.Errorf("%s: negative price", it.Code)
	}
	if it.Units < 0 {
		return Item{}, errors.Errorf("%s: negative units", it.Code)
	}
	it.Price = money.Money{Amount: amount, Currency: cur}
	return it, nil
}

func decodeRule(d *jx.Decoder) (pricing.RuleConfig, error) {
	var cfg pricing.RuleConfig
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "type":
			var v string
			v, err = d.Str()
			cfg.Type = pricing.RuleType(v)
		case "product_code":
			cfg.ProductCode, err = d.Str()
		case "buy_quantity":
			cfg.BuyQuantity, err = d.Int()
		case "free_quantity":
			cfg.FreeQuantity, err = d.Int()
		case "min_quantity":
			cfg.MinQuantity, err = d.Int()
		case "fixed_price":
			cfg.FixedPrice, err = decodeDecimal(d)
		case "percentage":
			cfg.Percentage, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	}); err != nil {
		return pricing.RuleConfig{}, err
	}
	return cfg, nil
}

func decodeRates(d *jx.Decoder) (currency.Rates, error) {
	rates := currency.Rates{}
	err := d.Obj(func(d *jx.Decoder, from string) error {
		to := make(map[string]decimal.Decimal)
		if err := d.Obj(func(d *jx.Decoder, target string) error {
			rate, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrapf(err, "%s->%s", from, target)
			}
			if !rate.IsPositive() {
				return errors.Errorf("%s->%s: rate must be positive", from, target)
			}
			to[target] = rate
			return nil
		}); err != nil {
			return err
		}
		rates[from] = to
		return nil
	})
	return rates, err
}

// decodeDecimal accepts "1.25" as well as 1.25.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(string(n))
	default:
		return decimal.Decimal{}, errors.Errorf("expected decimal, got %s", d.Next())
	}
}
