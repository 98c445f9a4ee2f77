package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/data"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/currency"
	"github.com/xenking/kart-checkout/internal/domain/inventory"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/metrics"
	"github.com/xenking/kart-checkout/internal/seed"
	"github.com/xenking/kart-checkout/internal/storage/memory"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

// Service is the assembled checkout service without its HTTP server.
type Service struct {
	Catalog   *memory.Catalog
	Ledger    *inventory.Ledger
	Converter *currency.Converter
	Metrics   *metrics.Collector
	Sessions  *memory.SessionStore
	Factory   *checkout.Factory
}

// Build loads seed data and wires the domain components.
func Build(ctx context.Context, cfg *Config, mp metric.MeterProvider) (*Service, error) {
	var (
		d   *seed.Data
		err error
	)
	if len(cfg.SeedFiles) > 0 {
		d, err = seed.LoadFiles(ctx, cfg.SeedFiles)
	} else {
		d, err = seed.Parse(data.Catalog)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load seed")
	}

	svc := &Service{
		Catalog:   memory.NewCatalog(),
		Ledger:    inventory.NewLedger(),
		Converter: currency.NewConverter(nil),
		Sessions:  memory.NewSessionStore(),
	}
	rules, err := d.Apply(seed.Target{
		Catalog: svc.Catalog,
		Stock:   svc.Ledger,
		Rates:   svc.Converter,
	})
	if err != nil {
		return nil, errors.Wrap(err, "apply seed")
	}

	svc.Metrics, err = metrics.NewCollector(mp)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics collector")
	}

	svc.Factory = &checkout.Factory{
		Ledger:       svc.Ledger,
		Rules:        rules,
		Catalog:      svc.Catalog,
		Converter:    svc.Converter,
		BaseCurrency: cfg.BaseCurrency,
		Metrics:      svc.Metrics,
	}

	zctx.From(ctx).Info("Seed loaded",
		zap.Int("products", svc.Catalog.Len()),
		zap.Int("rules", len(rules.Rules())),
		zap.Strings("currencies", svc.Converter.SupportedCurrencies()),
	)
	return svc, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))
	ctx = zctx.Base(ctx, lg)

	svc, err := Build(ctx, cfg, m.MeterProvider())
	if err != nil {
		return err
	}

	if cfg.Session.IdleTimeout > 0 {
		svc.Sessions.StartReaper(ctx, cfg.Session.IdleTimeout, cfg.Session.ReapInterval)
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("ledger", time.Second, health.VerifyCheck(svc.Ledger))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           NewHTTPHandler(ctx, lg, m, cfg, svc, healthSvc),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// NewHTTPHandler builds the API and probe routes behind the middleware chain.
func NewHTTPHandler(
	ctx context.Context,
	lg *zap.Logger,
	t httpmiddleware.Telemetry,
	cfg *Config,
	svc *Service,
	healthSvc *health.Health,
) http.Handler {
	h := handler.NewHandler(
		handler.HandlerConfig{TopN: cfg.TopN},
		svc.Catalog,
		svc.Ledger,
		svc.Factory,
		svc.Sessions,
		svc.Metrics,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	return httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Instrument("kart-checkout", t),
		httpmiddleware.LogRequests(),
	)
}
