// Command checkout-demo replays the reference checkout scenarios against an
// in-process service and logs the results.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric/noop"

	appkg "github.com/xenking/kart-checkout/internal/app"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/inventory"
)

var baskets = [][]string{
	{"GR1", "SR1", "GR1", "GR1", "CF1"},
	{"GR1", "GR1"},
	{"SR1", "SR1", "GR1", "SR1"},
	{"GR1", "CF1", "SR1", "CF1", "CF1"},
}

func main() {
	var (
		seedFiles  string
		currencies string
		shoppers   int
	)
	flag.StringVar(&seedFiles, "seed-files", "", "comma separated seed documents (default: embedded catalog)")
	flag.StringVar(&currencies, "currencies", "USD,EUR", "comma separated currencies to quote the first basket in")
	flag.IntVar(&shoppers, "shoppers", 5, "concurrent shoppers in the overselling scenario")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := &appkg.Config{BaseCurrency: "GBP", TopN: 5}
	if seedFiles != "" {
		cfg.SeedFiles = strings.Split(seedFiles, ",")
	}

	if err := run(ctx, cfg, strings.Split(currencies, ","), shoppers); err != nil {
		slog.Error("demo failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appkg.Config, currencies []string, shoppers int) error {
	svc, err := appkg.Build(ctx, cfg, noop.NewMeterProvider())
	if err != nil {
		return err
	}

	for _, step := range []struct {
		name string
		fn   func() error
	}{
		{"baskets", func() error { return demoBaskets(ctx, svc) }},
		{"currencies", func() error { return demoCurrencies(ctx, svc, currencies) }},
		{"competing customers", func() error { return demoCompeting(ctx, svc) }},
		{"overselling", func() error { return demoOverselling(ctx, svc, shoppers) }},
	} {
		slog.Info("scenario", slog.String("name", step.name))
		if err := step.fn(); err != nil {
			return errors.Wrap(err, step.name)
		}
	}

	logReport(svc, cfg.TopN)
	return nil
}

func demoBaskets(ctx context.Context, svc *appkg.Service) error {
	for _, codes := range baskets {
		s := svc.Factory.Open(ctx)
		for _, code := range codes {
			if err := s.Scan(ctx, code); err != nil {
				return errors.Wrapf(err, "scan %s", code)
			}
		}
		sum, err := s.Summary()
		if err != nil {
			return err
		}
		if err := s.Process(ctx); err != nil {
			return err
		}
		slog.Info("basket processed",
			slog.String("items", strings.Join(codes, ",")),
			slog.String("subtotal", sum.Subtotal.String()),
			slog.String("discount", sum.Discount.String()),
			slog.String("total", sum.Total.String()),
		)
		for _, a := range sum.Applications {
			slog.Info("rule applied",
				slog.String("rule", a.Rule),
				slog.String("product", a.ProductCode),
				slog.String("saving", a.Amount.StringFixed(2)),
			)
		}
	}
	return nil
}

func demoCurrencies(ctx context.Context, svc *appkg.Service, currencies []string) error {
	s := svc.Factory.Open(ctx)
	defer func() { _ = s.Cancel(ctx) }()

	for _, code := range baskets[0] {
		if err := s.Scan(ctx, code); err != nil {
			return err
		}
	}
	total, err := s.Total()
	if err != nil {
		return err
	}
	slog.Info("quote", slog.String("total", total.String()))

	for _, cur := range currencies {
		cur = strings.ToUpper(strings.TrimSpace(cur))
		if cur == "" {
			continue
		}
		converted, err := s.TotalIn(cur)
		if err != nil {
			slog.Warn("quote failed", slog.String("currency", cur), slog.String("error", err.Error()))
			continue
		}
		slog.Info("quote", slog.String("total", converted.String()))
	}
	return nil
}

// demoCompeting lets two customers fight over the last three coffees.
func demoCompeting(ctx context.Context, svc *appkg.Service) error {
	svc.Ledger.AddProduct("CF1", 3)

	alice := svc.Factory.Open(ctx)
	bob := svc.Factory.Open(ctx)

	for _, step := range []struct {
		who  string
		sess *checkout.Session
	}{
		{"alice", alice}, {"alice", alice}, {"bob", bob}, {"bob", bob},
	} {
		err := step.sess.Scan(ctx, "CF1")
		switch {
		case err == nil:
			slog.Info("reserved", slog.String("customer", step.who), logLevel(svc, "CF1"))
		case errors.Is(err, inventory.ErrInsufficientStock):
			slog.Info("out of stock", slog.String("customer", step.who), slog.String("error", err.Error()))
		default:
			return err
		}
	}

	if err := alice.Process(ctx); err != nil {
		return err
	}
	slog.Info("alice paid", logLevel(svc, "CF1"))
	if err := bob.Cancel(ctx); err != nil {
		return err
	}
	slog.Info("bob walked away", logLevel(svc, "CF1"))
	return svc.Ledger.Verify()
}

// demoOverselling races shoppers for two green teas.
func demoOverselling(ctx context.Context, svc *appkg.Service, shoppers int) error {
	svc.Ledger.AddProduct("GR1", 2)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
	)
	for range shoppers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := svc.Factory.Open(ctx)
			if err := s.Scan(ctx, "GR1"); err != nil {
				_ = s.Cancel(ctx)
				return
			}
			if err := s.Process(ctx); err != nil {
				return
			}
			mu.Lock()
			sold++
			mu.Unlock()
		}()
	}
	wg.Wait()

	lvl := svc.Ledger.StockLevel("GR1")
	slog.Info("race finished",
		slog.Int("shoppers", shoppers),
		slog.Int("sold", sold),
		logLevel(svc, "GR1"),
	)
	if lvl.Sold > lvl.Total {
		return errors.Errorf("oversold GR1: sold %d of %d", lvl.Sold, lvl.Total)
	}
	return svc.Ledger.Verify()
}

func logLevel(svc *appkg.Service, code string) slog.Attr {
	lvl := svc.Ledger.StockLevel(code)
	return slog.Group(code,
		slog.Int("total", lvl.Total),
		slog.Int("reserved", lvl.Reserved),
		slog.Int("sold", lvl.Sold),
		slog.Int("available", lvl.Available),
	)
}

func logReport(svc *appkg.Service, topN int) {
	r := svc.Metrics.Summary(topN)
	slog.Info("metrics",
		slog.Int("operations", r.TotalOperations),
		slog.Float64("success_rate", r.SuccessRate),
		slog.String("revenue", r.TotalRevenue.StringFixed(2)),
		slog.String("savings", r.TotalSavings.StringFixed(2)),
		slog.String("average_order_value", r.AverageOrderValue.StringFixed(2)),
		slog.Float64("average_cart_size", r.AverageCartSize),
		slog.Int("errors", r.TotalErrors),
	)
	for _, c := range r.TopProducts {
		slog.Info("top product", slog.String("code", c.Name), slog.Int("count", c.Count))
	}
	for _, c := range r.MostUsedRules {
		slog.Info("rule usage", slog.String("rule", c.Name), slog.Int("count", c.Count))
	}
	for kind, n := range r.ErrorTypes {
		slog.Info("error type", slog.String("kind", kind), slog.Int("count", n))
	}
}
