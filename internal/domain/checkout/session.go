package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/basket"
	"github.com/xenking/kart-checkout/internal/domain/inventory"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// Error kinds passed to Recorder.RecordError.
const (
	ErrorKindStock      = "insufficient_stock"
	ErrorKindProduct    = "product_not_found"
	ErrorKindTransition = "invalid_transition"
	ErrorKindCancelled  = "cancelled"
	ErrorKindPricing    = "pricing"
)

// StockLedger is the ledger surface a session needs.
type StockLedger interface {
	basket.StockLedger
	Commit(sessionID string) bool
	Cancel(sessionID string) bool
}

// Converter converts Money between currencies.
type Converter interface {
	Convert(m money.Money, target string) (money.Money, error)
}

// Factory opens sessions that share one ledger, rule set and catalog.
type Factory struct {
	Ledger       StockLedger
	Rules        *pricing.Engine
	Catalog      product.Catalog
	Converter    Converter
	BaseCurrency string
	Metrics      Recorder
	// NewID generates session ids. Defaults to random UUIDs.
	NewID func() string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Open starts a new session with an empty basket.
func (f *Factory) Open(ctx context.Context) *Session {
	newID := f.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := f.Now
	if now == nil {
		now = time.Now
	}
	rec := f.Metrics
	if rec == nil {
		rec = NopRecorder{}
	}

	id := newID()
	s := &Session{
		id:        id,
		ledger:    f.Ledger,
		catalog:   f.Catalog,
		converter: f.Converter,
		metrics:   rec,
		now:       now,
		opened:    now(),
		basket: basket.New(basket.Config{
			Rules:        f.Rules,
			Ledger:       f.Ledger,
			SessionID:    id,
			Converter:    f.Converter,
			BaseCurrency: f.BaseCurrency,
		}),
	}
	s.touched = s.opened

	zctx.From(ctx).Debug("Checkout opened", zap.String("session_id", id))
	return s
}

// Session is one customer's checkout. A session is owned by a single caller
// and is not safe for concurrent use; the ledger it reserves against is.
type Session struct {
	id        string
	ledger    StockLedger
	catalog   product.Catalog
	converter Converter
	metrics   Recorder
	now       func() time.Time

	basket  *basket.Basket
	status  Status
	opened  time.Time
	touched time.Time
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Status returns the lifecycle state.
func (s *Session) Status() Status { return s.status }

// Items returns the scanned products in scan order.
func (s *Session) Items() []product.Product { return s.basket.Items() }

// LastActivity returns when the session was last opened, scanned or
// finalized.
func (s *Session) LastActivity() time.Time { return s.touched }

// Scan resolves code through the catalog and adds the product, reserving one
// unit. Unknown codes yield *product.NotFoundError and shortages
// *inventory.InsufficientStockError; neither changes the session.
func (s *Session) Scan(ctx context.Context, code string) error {
	if err := s.requireOpen("scan"); err != nil {
		return err
	}

	if s.catalog == nil {
		s.recordError(ctx, ErrorKindProduct, code)
		return &product.NotFoundError{Code: code}
	}
	p, err := s.catalog.Find(ctx, code)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			s.recordError(ctx, ErrorKindProduct, err.Error())
		}
		return err
	}
	return s.Add(ctx, *p)
}

// Add adds an already resolved product, reserving one unit. A product whose
// price cannot be converted into the base currency is rejected before
// anything is reserved, so an open basket can always be priced.
func (s *Session) Add(ctx context.Context, p product.Product) error {
	if err := s.requireOpen("add"); err != nil {
		return err
	}
	if err := s.basket.Add(p); err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			s.recordError(ctx, ErrorKindStock, err.Error())
			zctx.From(ctx).Info("Stock shortage",
				zap.String("session_id", s.id),
				zap.String("product", p.Code),
			)
		} else {
			s.recordError(ctx, ErrorKindPricing, err.Error())
		}
		return err
	}
	s.touched = s.now()
	return nil
}

// Remove drops one unit of code from the basket and releases its reservation.
// It reports whether the basket held the code.
func (s *Session) Remove(ctx context.Context, code string) (bool, error) {
	if err := s.requireOpen("remove"); err != nil {
		return false, err
	}
	removed := s.basket.Remove(code)
	if removed {
		s.touched = s.now()
	}
	return removed, nil
}

// Total returns the discounted total in the base currency. It is available
// in any state.
func (s *Session) Total() (money.Money, error) {
	return s.basket.Total()
}

// TotalIn returns the total converted into target.
func (s *Session) TotalIn(target string) (money.Money, error) {
	total, err := s.basket.Total()
	if err != nil {
		return money.Money{}, err
	}
	if total.Currency == target {
		return total, nil
	}
	if s.converter == nil {
		return money.Money{}, ErrNoConverter
	}
	converted, err := s.converter.Convert(total, target)
	if err != nil {
		return money.Money{}, err
	}
	return converted.Round(2), nil
}

// Summary returns the priced breakdown of the basket.
func (s *Session) Summary() (basket.Summary, error) {
	return s.basket.Summary()
}

// Process commits every reservation as sold and finalizes the session.
func (s *Session) Process(ctx context.Context) error {
	if err := s.requireOpen("process"); err != nil {
		s.recordError(ctx, ErrorKindTransition, err.Error())
		return err
	}

	summary, err := s.basket.Summary()
	if err != nil {
		s.recordError(ctx, ErrorKindPricing, err.Error())
		return err
	}

	if s.ledger != nil {
		s.ledger.Commit(s.id)
	}
	s.status = StatusCommitted
	s.touched = s.now()

	s.recordOutcome(ctx, true, "", summary)
	for _, a := range summary.Applications {
		s.recordRule(ctx, a)
	}

	zctx.From(ctx).Info("Checkout processed",
		zap.String("session_id", s.id),
		zap.Int("items", s.basket.Len()),
		zap.Stringer("total", summary.Total),
	)
	return nil
}

// Cancel releases every reservation and finalizes the session.
func (s *Session) Cancel(ctx context.Context) error {
	if err := s.requireOpen("cancel"); err != nil {
		s.recordError(ctx, ErrorKindTransition, err.Error())
		return err
	}

	if s.ledger != nil {
		s.ledger.Cancel(s.id)
	}
	s.status = StatusCancelled
	s.touched = s.now()

	// Pricing a cancelled basket only feeds the report; a failure here leaves
	// zero amounts.
	summary, _ := s.basket.Summary()
	s.recordOutcome(ctx, false, ErrorKindCancelled, summary)

	zctx.From(ctx).Info("Checkout cancelled",
		zap.String("session_id", s.id),
		zap.Int("items", s.basket.Len()),
	)
	return nil
}

func (s *Session) requireOpen(op string) error {
	if s.status.Final() {
		return &TransitionError{Op: op, State: s.status}
	}
	return nil
}

func (s *Session) recordOutcome(ctx context.Context, success bool, errType string, summary basket.Summary) {
	items := s.basket.Items()
	codes := make([]string, len(items))
	for i, it := range items {
		codes[i] = it.Code
	}
	o := Outcome{
		SessionID: s.id,
		Success:   success,
		ErrorType: errType,
		Items:     codes,
		Subtotal:  summary.Subtotal.Amount,
		Discount:  summary.Discount.Amount,
		Total:     summary.Total.Amount,
		Duration:  s.now().Sub(s.opened),
	}
	s.safely(ctx, "record checkout", func() { s.metrics.RecordCheckout(ctx, o) })
}

func (s *Session) recordRule(ctx context.Context, a pricing.Application) {
	s.safely(ctx, "record rule", func() { s.metrics.RecordRuleApplication(ctx, a.Rule, a.Amount) })
}

func (s *Session) recordError(ctx context.Context, kind, msg string) {
	s.safely(ctx, "record error", func() { s.metrics.RecordError(ctx, kind, msg) })
}

// safely runs a recorder call, logging instead of propagating a panic.
func (s *Session) safely(ctx context.Context, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			zctx.From(ctx).Warn("Metrics recorder failed",
				zap.String("session_id", s.id),
				zap.String("call", what),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn()
}
