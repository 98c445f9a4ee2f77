// Package seed loads catalog, stock, pricing rules and exchange rates from
// JSON seed files, optionally gzip-compressed.
package seed

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/currency"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Item is a catalog product with its initial stock.
type Item struct {
	product.Product
	Units int
}

// Data is the decoded content of one or more seed files.
type Data struct {
	BaseCurrency string
	Items        []Item
	Rules        []pricing.RuleConfig
	Rates        currency.Rates
}

// Read decodes seed data from r, transparently decompressing gzip input.
func Read(r io.Reader) (*Data, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "peek")
	}

	var src io.Reader = br
	if bytes.Equal(head, gzipMagic) {
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "create gzip reader")
		}
		defer func() { _ = gz.Close() }()
		src = gz
	}

	buf, err := io.ReadAll(src)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	return Parse(buf)
}

// LoadFile reads and decodes the seed file at path.
func LoadFile(ctx context.Context, path string) (*Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	data, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return data, nil
}

// LoadFiles decodes every path concurrently and merges the results in the
// order given.
func LoadFiles(ctx context.Context, paths []string) (*Data, error) {
	results := make([]*Data, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			data, err := LoadFile(ctx, path)
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Merge(results...), nil
}

// Merge combines data sets. Later sets win: an item or rule for a product
// code replaces an earlier one, rates are overlaid pair by pair and a
// non-empty base currency overrides.
func Merge(sets ...*Data) *Data {
	out := &Data{Rates: currency.Rates{}}
	itemIdx := make(map[string]int)
	ruleIdx := make(map[string]int)

	for _, d := range sets {
		if d == nil {
			continue
		}
		if d.BaseCurrency != "" {
			out.BaseCurrency = d.BaseCurrency
		}
		for _, it := range d.Items {
			if i, ok := itemIdx[it.Code]; ok {
				out.Items[i] = it
				continue
			}
			itemIdx[it.Code] = len(out.Items)
			out.Items = append(out.Items, it)
		}
		for _, r := range d.Rules {
			if i, ok := ruleIdx[r.ProductCode]; ok {
				out.Rules[i] = r
				continue
			}
			ruleIdx[r.ProductCode] = len(out.Rules)
			out.Rules = append(out.Rules, r)
		}
		for from, to := range d.Rates {
			if out.Rates[from] == nil {
				out.Rates[from] = make(map[string]decimal.Decimal, len(to))
			}
			for target, rate := range to {
				out.Rates[from][target] = rate
			}
		}
	}
	return out
}
