package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/currency"
	"github.com/xenking/kart-checkout/internal/domain/inventory"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// --- Mock implementations ---

type mockCatalog struct {
	products map[string]product.Product
	err      error
}

func (m *mockCatalog) Find(_ context.Context, code string) (*product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[code]
	if !ok {
		return nil, &product.NotFoundError{Code: code}
	}
	return &p, nil
}

func (m *mockCatalog) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

type mockRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
	errors   []string
	rules    map[string]decimal.Decimal
}

func (m *mockRecorder) RecordCheckout(_ context.Context, o Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
}

func (m *mockRecorder) RecordError(_ context.Context, kind, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, kind)
}

func (m *mockRecorder) RecordRuleApplication(_ context.Context, rule string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rules == nil {
		m.rules = make(map[string]decimal.Decimal)
	}
	m.rules[rule] = m.rules[rule].Add(amount)
}

type panicRecorder struct{}

func (panicRecorder) RecordCheckout(context.Context, Outcome)                        { panic("boom") }
func (panicRecorder) RecordError(context.Context, string, string)                    { panic("boom") }
func (panicRecorder) RecordRuleApplication(context.Context, string, decimal.Decimal) { panic("boom") }

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newCatalog() *mockCatalog {
	return &mockCatalog{products: map[string]product.Product{
		"GR1": {Code: "GR1", Name: "Green Tea", Price: money.MustParse("3.11", "GBP")},
		"SR1": {Code: "SR1", Name: "Strawberries", Price: money.MustParse("5.00", "GBP")},
		"CF1": {Code: "CF1", Name: "Coffee", Price: money.MustParse("11.23", "GBP")},
	}}
}

func newFactory(t *testing.T, rec Recorder) (*Factory, *inventory.Ledger) {
	t.Helper()

	rules, err := pricing.NewEngine(
		pricing.QuantityDiscount{Code: "GR1", BuyQuantity: 1, FreeQuantity: 1},
		pricing.BulkFixedPrice{Code: "SR1", MinQuantity: 3, FixedPrice: d("4.50")},
		pricing.BulkPercentage{Code: "CF1", MinQuantity: 3, Percentage: d("33.33")},
	)
	require.NoError(t, err)

	ledger := inventory.NewLedger()
	ledger.AddProduct("GR1", 50)
	ledger.AddProduct("SR1", 30)
	ledger.AddProduct("CF1", 20)

	return &Factory{
		Ledger:    ledger,
		Rules:     rules,
		Catalog:   newCatalog(),
		Converter: currency.NewConverter(nil),
		Metrics:   rec,
	}, ledger
}

func scanAll(t *testing.T, s *Session, codes ...string) {
	t.Helper()
	for _, c := range codes {
		require.NoError(t, s.Scan(context.Background(), c))
	}
}

// --- Tests ---

func TestSession_ProcessCommitsStock(t *testing.T) {
	ctx := context.Background()
	rec := &mockRecorder{}
	f, ledger := newFactory(t, rec)

	s := f.Open(ctx)
	scanAll(t, s, "GR1", "SR1", "GR1", "GR1", "CF1")

	total, err := s.Total()
	require.NoError(t, err)
	assert.Equal(t, "£22.45", total.String())

	assert.Equal(t, 3, ledger.StockLevel("GR1").Reserved)
	require.NoError(t, s.Process(ctx))
	assert.Equal(t, StatusCommitted, s.Status())

	gr := ledger.StockLevel("GR1")
	assert.Equal(t, 0, gr.Reserved)
	assert.Equal(t, 3, gr.Sold)
	assert.Equal(t, 47, gr.Available)
	assert.Empty(t, ledger.Reservations(s.ID()))

	// Totals stay readable after finalizing.
	total, err = s.Total()
	require.NoError(t, err)
	assert.True(t, d("22.45").Equal(total.Amount))

	require.Len(t, rec.outcomes, 1)
	o := rec.outcomes[0]
	assert.True(t, o.Success)
	assert.Equal(t, s.ID(), o.SessionID)
	assert.Equal(t, []string{"GR1", "SR1", "GR1", "GR1", "CF1"}, o.Items)
	assert.True(t, d("22.45").Equal(o.Total))
	assert.True(t, d("3.11").Equal(rec.rules[pricing.NameQuantityDiscount]))
}

func TestSession_CancelReleasesStock(t *testing.T) {
	ctx := context.Background()
	rec := &mockRecorder{}
	f, ledger := newFactory(t, rec)

	s := f.Open(ctx)
	scanAll(t, s, "CF1", "CF1", "SR1")
	require.NoError(t, s.Cancel(ctx))

	assert.Equal(t, StatusCancelled, s.Status())
	for _, code := range []string{"CF1", "SR1"} {
		lvl := ledger.StockLevel(code)
		assert.Zero(t, lvl.Reserved, code)
		assert.Zero(t, lvl.Sold, code)
	}

	require.Len(t, rec.outcomes, 1)
	assert.False(t, rec.outcomes[0].Success)
	assert.Equal(t, ErrorKindCancelled, rec.outcomes[0].ErrorType)
	assert.Empty(t, rec.rules, "cancelled checkouts do not count rule usage")
}

func TestSession_FinalizeTwice(t *testing.T) {
	ctx := context.Background()

	finalize := map[string]func(*Session) error{
		"process": func(s *Session) error { return s.Process(ctx) },
		"cancel":  func(s *Session) error { return s.Cancel(ctx) },
	}

	for firstName, first := range finalize {
		for secondName, second := range finalize {
			t.Run(firstName+" then "+secondName, func(t *testing.T) {
				rec := &mockRecorder{}
				f, ledger := newFactory(t, rec)

				s := f.Open(ctx)
				scanAll(t, s, "GR1", "GR1")
				require.NoError(t, first(s))
				before := ledger.StockLevel("GR1")
				wantStatus := s.Status()

				err := second(s)
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrAlreadyFinalized))

				var te *TransitionError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, secondName, te.Op)
				assert.Equal(t, wantStatus, te.State)

				assert.Equal(t, wantStatus, s.Status())
				assert.Equal(t, before, ledger.StockLevel("GR1"))
				assert.Len(t, rec.outcomes, 1)
				assert.Contains(t, rec.errors, ErrorKindTransition)
			})
		}
	}
}

func TestSession_MutationsAfterFinalize(t *testing.T) {
	ctx := context.Background()
	f, ledger := newFactory(t, nil)

	s := f.Open(ctx)
	scanAll(t, s, "SR1")
	require.NoError(t, s.Process(ctx))

	err := s.Scan(ctx, "SR1")
	assert.True(t, errors.Is(err, ErrAlreadyFinalized))

	_, err = s.Remove(ctx, "SR1")
	assert.True(t, errors.Is(err, ErrAlreadyFinalized))

	assert.Len(t, s.Items(), 1)
	assert.Equal(t, 1, ledger.StockLevel("SR1").Sold)
	assert.Zero(t, ledger.StockLevel("SR1").Reserved)
}

func TestSession_ScanUnknownProduct(t *testing.T) {
	ctx := context.Background()
	rec := &mockRecorder{}
	f, ledger := newFactory(t, rec)

	s := f.Open(ctx)
	err := s.Scan(ctx, "XX9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, product.ErrNotFound))

	var nf *product.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "XX9", nf.Code)

	assert.Empty(t, s.Items())
	assert.Empty(t, ledger.Reservations(s.ID()))
	assert.Equal(t, []string{ErrorKindProduct}, rec.errors)
}

func TestSession_ScanWithoutCatalog(t *testing.T) {
	f, _ := newFactory(t, nil)
	f.Catalog = nil

	err := f.Open(context.Background()).Scan(context.Background(), "GR1")
	assert.True(t, errors.Is(err, product.ErrNotFound))
}

func TestSession_ScanCatalogFailure(t *testing.T) {
	f, _ := newFactory(t, nil)
	f.Catalog = &mockCatalog{err: errors.New("catalog down")}

	err := f.Open(context.Background()).Scan(context.Background(), "GR1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog down")
	assert.False(t, errors.Is(err, product.ErrNotFound))
}

func TestSession_ScanOutOfStock(t *testing.T) {
	ctx := context.Background()
	rec := &mockRecorder{}
	f, ledger := newFactory(t, rec)
	ledger.AddProduct("CF1", 1)

	s := f.Open(ctx)
	scanAll(t, s, "CF1")

	err := s.Scan(ctx, "CF1")
	require.Error(t, err)

	var se *inventory.InsufficientStockError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.Requested)
	assert.Equal(t, 0, se.Available)

	assert.Len(t, s.Items(), 1)
	assert.Equal(t, []string{ErrorKindStock}, rec.errors)
}

func TestSession_ScanUnpriceableProduct(t *testing.T) {
	ctx := context.Background()
	rec := &mockRecorder{}
	f, ledger := newFactory(t, rec)
	ledger.AddProduct("MC1", 10)
	f.Catalog.(*mockCatalog).products["MC1"] = product.Product{
		Code: "MC1", Name: "Matcha", Price: money.MustParse("1500", "JPY"),
	}

	s := f.Open(ctx)
	scanAll(t, s, "GR1")

	err := s.Scan(ctx, "MC1")
	require.Error(t, err)
	require.IsType(t, &currency.UnsupportedError{}, err)
	assert.Equal(t, "unsupported source currency: JPY", err.Error())
	assert.Equal(t, []string{ErrorKindPricing}, rec.errors)

	assert.Len(t, s.Items(), 1)
	assert.Zero(t, ledger.StockLevel("MC1").Reserved)

	require.NoError(t, s.Process(ctx))
	assert.Equal(t, StatusCommitted, s.Status())
	assert.Equal(t, 1, ledger.StockLevel("GR1").Sold)
	assert.Empty(t, ledger.Reservations(s.ID()))
	require.Len(t, rec.outcomes, 1)
	assert.True(t, rec.outcomes[0].Success)
	require.NoError(t, ledger.Verify())
}

func TestSession_CompetingCustomers(t *testing.T) {
	ctx := context.Background()
	f, ledger := newFactory(t, nil)
	ledger.AddProduct("CF1", 3)

	alice := f.Open(ctx)
	bob := f.Open(ctx)
	require.NotEqual(t, alice.ID(), bob.ID())

	scanAll(t, alice, "CF1", "CF1")
	scanAll(t, bob, "CF1")
	assert.Error(t, bob.Scan(ctx, "CF1"))

	require.NoError(t, alice.Cancel(ctx))
	scanAll(t, bob, "CF1", "CF1")
	require.NoError(t, bob.Process(ctx))

	lvl := ledger.StockLevel("CF1")
	assert.Equal(t, inventory.Level{Total: 3, Reserved: 0, Sold: 3, Available: 0}, lvl)
	require.NoError(t, ledger.Verify())
}

func TestSession_Remove(t *testing.T) {
	ctx := context.Background()
	f, ledger := newFactory(t, nil)

	s := f.Open(ctx)
	scanAll(t, s, "GR1", "SR1")

	removed, err := s.Remove(ctx, "GR1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Zero(t, ledger.StockLevel("GR1").Reserved)

	removed, err = s.Remove(ctx, "GR1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSession_TotalIn(t *testing.T) {
	ctx := context.Background()
	f, _ := newFactory(t, nil)

	s := f.Open(ctx)
	scanAll(t, s, "GR1", "SR1", "GR1", "GR1", "CF1")

	usd, err := s.TotalIn("USD")
	require.NoError(t, err)
	assert.Equal(t, "$28.06", usd.String())

	gbp, err := s.TotalIn("GBP")
	require.NoError(t, err)
	assert.Equal(t, "£22.45", gbp.String())

	_, err = s.TotalIn("JPY")
	assert.True(t, errors.Is(err, currency.ErrUnsupportedCurrency))
	require.IsType(t, &currency.UnsupportedError{}, err)

	f.Converter = nil
	bare := f.Open(ctx)
	scanAll(t, bare, "GR1")
	_, err = bare.TotalIn("USD")
	assert.True(t, errors.Is(err, ErrNoConverter))
}

func TestSession_RecorderPanicIsContained(t *testing.T) {
	ctx := context.Background()
	f, ledger := newFactory(t, panicRecorder{})

	s := f.Open(ctx)
	scanAll(t, s, "GR1", "GR1")
	assert.Error(t, s.Scan(ctx, "XX9"))

	require.NotPanics(t, func() {
		require.NoError(t, s.Process(ctx))
	})
	assert.Equal(t, StatusCommitted, s.Status())
	assert.Equal(t, 2, ledger.StockLevel("GR1").Sold)
}

func TestFactory_Defaults(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ids := []string{"a", "b"}
	f := &Factory{
		Ledger: inventory.NewLedger(),
		NewID: func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		},
		Now: func() time.Time { return now },
	}

	s := f.Open(context.Background())
	assert.Equal(t, "a", s.ID())
	assert.Equal(t, StatusOpen, s.Status())
	assert.Equal(t, now, s.LastActivity())

	total, err := s.Total()
	require.NoError(t, err)
	assert.Equal(t, "£0.00", total.String())

	assert.Equal(t, "b", f.Open(context.Background()).ID())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "open", StatusOpen.String())
	assert.Equal(t, "committed", StatusCommitted.String())
	assert.Equal(t, "cancelled", StatusCancelled.String())
	assert.False(t, StatusOpen.Final())
	assert.True(t, StatusCancelled.Final())
}
