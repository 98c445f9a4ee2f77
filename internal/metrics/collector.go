// Package metrics aggregates checkout activity into an in-memory report and
// mirrors the counters to OpenTelemetry instruments.
package metrics

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

const (
	meterName = "github.com/xenking/kart-checkout/internal/metrics"

	// errorLogSize bounds the number of retained error entries.
	errorLogSize = 100

	hourLayout = "2006-01-02 15:00"
	dayLayout  = "2006-01-02"
)

var _ checkout.Recorder = (*Collector)(nil)

// Bucket aggregates checkouts over one hour or one day.
type Bucket struct {
	Checkouts int
	Revenue   decimal.Decimal
}

// Count is a named counter used in top-N listings.
type Count struct {
	Name  string
	Count int
}

// ErrorEntry is one recorded error.
type ErrorEntry struct {
	Kind       string
	Message    string
	At         time.Time
	Operations int
}

// Report is a point-in-time summary of recorded activity.
type Report struct {
	Uptime            time.Duration
	TotalOperations   int
	SuccessRate       float64
	TotalRevenue      decimal.Decimal
	TotalSavings      decimal.Decimal
	AverageOrderValue decimal.Decimal
	AverageCartSize   float64
	TopProducts       []Count
	MostUsedRules     []Count
	TotalErrors       int
	ErrorTypes        map[string]int
	ErrorRate         float64
	Hourly            map[string]Bucket
	Daily             map[string]Bucket
}

type instruments struct {
	checkouts metric.Int64Counter
	revenue   metric.Float64Counter
	savings   metric.Float64Counter
	rules     metric.Int64Counter
	errors    metric.Int64Counter
	cartSize  metric.Int64Histogram
	duration  metric.Float64Histogram
}

// Collector implements checkout.Recorder. It is safe for concurrent use.
type Collector struct {
	inst instruments
	now  func() time.Time

	mu         sync.Mutex
	start      time.Time
	operations int
	successes  int
	failures   int
	revenue    decimal.Decimal
	savings    decimal.Decimal
	cartItems  int
	rules      map[string]int
	errors     map[string]int
	products   map[string]int
	hourly     map[string]*Bucket
	daily      map[string]*Bucket
	errorLog   []ErrorEntry
}

// NewCollector creates a Collector whose instruments come from mp.
func NewCollector(mp metric.MeterProvider) (*Collector, error) {
	meter := mp.Meter(meterName)

	var (
		inst instruments
		err  error
	)
	if inst.checkouts, err = meter.Int64Counter("kart.checkout.operations",
		metric.WithDescription("Finalized checkouts by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "checkouts counter")
	}
	if inst.revenue, err = meter.Float64Counter("kart.checkout.revenue",
		metric.WithDescription("Revenue of committed checkouts in base currency"),
	); err != nil {
		return nil, errors.Wrap(err, "revenue counter")
	}
	if inst.savings, err = meter.Float64Counter("kart.checkout.savings",
		metric.WithDescription("Discount granted by pricing rules"),
	); err != nil {
		return nil, errors.Wrap(err, "savings counter")
	}
	if inst.rules, err = meter.Int64Counter("kart.pricing.rule_applications",
		metric.WithDescription("Pricing rule applications by rule"),
	); err != nil {
		return nil, errors.Wrap(err, "rules counter")
	}
	if inst.errors, err = meter.Int64Counter("kart.checkout.errors",
		metric.WithDescription("Checkout errors by kind"),
	); err != nil {
		return nil, errors.Wrap(err, "errors counter")
	}
	if inst.cartSize, err = meter.Int64Histogram("kart.checkout.cart_size",
		metric.WithDescription("Items per committed checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "cart size histogram")
	}
	if inst.duration, err = meter.Float64Histogram("kart.checkout.duration",
		metric.WithDescription("Time from open to finalize"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "duration histogram")
	}

	c := &Collector{inst: inst, now: time.Now}
	c.reset()
	return c, nil
}

// RecordCheckout records a finalized checkout. A failed outcome also counts
// as an error of o.ErrorType.
func (c *Collector) RecordCheckout(ctx context.Context, o checkout.Outcome) {
	outcome := "success"
	if !o.Success {
		outcome = "failure"
	}
	c.inst.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	c.inst.duration.Record(ctx, o.Duration.Seconds())

	c.mu.Lock()
	now := c.now()
	c.operations++
	revenue := decimal.Zero
	if o.Success {
		revenue = o.Total
		c.successes++
		c.revenue = c.revenue.Add(o.Total)
		c.cartItems += len(o.Items)
		for _, code := range o.Items {
			c.products[code]++
		}
	} else {
		c.failures++
	}
	c.bucket(c.hourly, now.Format(hourLayout)).add(revenue)
	c.bucket(c.daily, now.Format(dayLayout)).add(revenue)
	c.mu.Unlock()

	if o.Success {
		c.inst.revenue.Add(ctx, o.Total.InexactFloat64())
		c.inst.cartSize.Record(ctx, int64(len(o.Items)))
		return
	}

	kind := o.ErrorType
	if kind == "" {
		kind = "unknown_error"
	}
	c.RecordError(ctx, kind, "")
}

// RecordRuleApplication counts one application of rule and adds its discount
// to the savings total.
func (c *Collector) RecordRuleApplication(ctx context.Context, rule string, amount decimal.Decimal) {
	c.mu.Lock()
	c.rules[rule]++
	c.savings = c.savings.Add(amount)
	c.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("rule", rule))
	c.inst.rules.Add(ctx, 1, attrs)
	c.inst.savings.Add(ctx, amount.InexactFloat64(), attrs)
}

// RecordError counts an error of the given kind.
func (c *Collector) RecordError(ctx context.Context, kind, message string) {
	c.mu.Lock()
	c.errors[kind]++
	c.errorLog = append(c.errorLog, ErrorEntry{
		Kind:       kind,
		Message:    message,
		At:         c.now(),
		Operations: c.operations,
	})
	if len(c.errorLog) > errorLogSize {
		c.errorLog = c.errorLog[len(c.errorLog)-errorLogSize:]
	}
	c.mu.Unlock()

	c.inst.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Summary returns the report with the top limit products and rules.
func (c *Collector) Summary(limit int) Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := Report{
		Uptime:          c.now().Sub(c.start),
		TotalOperations: c.operations,
		SuccessRate:     100,
		TotalRevenue:    c.revenue.Round(2),
		TotalSavings:    c.savings.Round(2),
		TopProducts:     top(c.products, limit),
		MostUsedRules:   top(c.rules, limit),
		ErrorTypes:      make(map[string]int, len(c.errors)),
		Hourly:          make(map[string]Bucket, len(c.hourly)),
		Daily:           make(map[string]Bucket, len(c.daily)),
	}
	if c.operations > 0 {
		r.SuccessRate = round2(float64(c.operations-c.failures) / float64(c.operations) * 100)
	}
	if c.successes > 0 {
		r.AverageOrderValue = c.revenue.Div(decimal.NewFromInt(int64(c.successes))).Round(2)
		r.AverageCartSize = round2(float64(c.cartItems) / float64(c.successes))
	}
	for kind, n := range c.errors {
		r.ErrorTypes[kind] = n
		r.TotalErrors += n
	}
	r.ErrorRate = round2(100 - r.SuccessRate)
	for k, b := range c.hourly {
		r.Hourly[k] = *b
	}
	for k, b := range c.daily {
		r.Daily[k] = *b
	}
	return r
}

// Errors returns the most recent error entries, oldest first.
func (c *Collector) Errors() []ErrorEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ErrorEntry, len(c.errorLog))
	copy(out, c.errorLog)
	return out
}

// Reset clears the report and restarts the uptime clock. OpenTelemetry
// counters are cumulative and are not affected.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Collector) reset() {
	c.start = c.now()
	c.operations = 0
	c.successes = 0
	c.failures = 0
	c.revenue = decimal.Zero
	c.savings = decimal.Zero
	c.cartItems = 0
	c.rules = make(map[string]int)
	c.errors = make(map[string]int)
	c.products = make(map[string]int)
	c.hourly = make(map[string]*Bucket)
	c.daily = make(map[string]*Bucket)
	c.errorLog = nil
}

func (c *Collector) bucket(m map[string]*Bucket, key string) *Bucket {
	b, ok := m[key]
	if !ok {
		b = &Bucket{Revenue: decimal.Zero}
		m[key] = b
	}
	return b
}

func (b *Bucket) add(revenue decimal.Decimal) {
	b.Checkouts++
	b.Revenue = b.Revenue.Add(revenue)
}

// top returns up to limit entries ordered by count descending, then name.
func top(counts map[string]int, limit int) []Count {
	out := make([]Count, 0, len(counts))
	for name, n := range counts {
		out = append(out, Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
