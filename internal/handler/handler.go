// Package handler exposes checkout sessions, stock levels and the metrics
// report over a JSON HTTP API.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/inventory"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/metrics"
)

// StockReader reports stock counters.
type StockReader interface {
	StockLevel(code string) inventory.Level
}

// SessionOpener starts checkout sessions.
type SessionOpener interface {
	Open(ctx context.Context) *checkout.Session
}

// SessionStore keeps sessions addressable between requests.
type SessionStore interface {
	Put(s *checkout.Session)
	Do(id string, fn func(*checkout.Session) error) error
}

// Reporter produces the metrics summary.
type Reporter interface {
	Summary(limit int) metrics.Report
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// TopN bounds the product and rule listings of the metrics summary.
	TopN int
	// MaxBodyBytes limits request bodies.
	MaxBodyBytes int64
}

// Handler serves the checkout API.
type Handler struct {
	catalog  product.Catalog
	stock    StockReader
	opener   SessionOpener
	sessions SessionStore
	reports  Reporter

	topN    int
	maxBody int64
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	catalog product.Catalog,
	stock StockReader,
	opener SessionOpener,
	sessions SessionStore,
	reports Reporter,
) *Handler {
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	return &Handler{
		catalog:  catalog,
		stock:    stock,
		opener:   opener,
		sessions: sessions,
		reports:  reports,
		topN:     cfg.TopN,
		maxBody:  cfg.MaxBodyBytes,
	}
}

// Register mounts the API routes on mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/stock/{code}", h.GetStock)
	mux.HandleFunc("POST /api/sessions", h.OpenSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.GetSession)
	mux.HandleFunc("POST /api/sessions/{id}/items", h.ScanItem)
	mux.HandleFunc("DELETE /api/sessions/{id}/items/{code}", h.RemoveItem)
	mux.HandleFunc("POST /api/sessions/{id}/process", h.ProcessSession)
	mux.HandleFunc("POST /api/sessions/{id}/cancel", h.CancelSession)
	mux.HandleFunc("GET /api/metrics/summary", h.MetricsSummary)
}
