package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestBuild_EmbeddedCatalog(t *testing.T) {
	ctx := context.Background()
	svc, err := Build(ctx, &Config{BaseCurrency: "GBP"}, noop.NewMeterProvider())
	require.NoError(t, err)

	assert.Equal(t, 3, svc.Catalog.Len())
	assert.Equal(t, 50, svc.Ledger.StockLevel("GR1").Available)
	assert.Equal(t, 30, svc.Ledger.StockLevel("SR1").Available)
	assert.Equal(t, 20, svc.Ledger.StockLevel("CF1").Available)
	require.NoError(t, svc.Ledger.Verify())

	s := svc.Factory.Open(ctx)
	for _, code := range []string{"GR1", "SR1", "GR1", "GR1", "CF1"} {
		require.NoError(t, s.Scan(ctx, code))
	}
	total, err := s.Total()
	require.NoError(t, err)
	assert.Equal(t, "22.45", total.Amount.StringFixed(2))

	usd, err := s.TotalIn("USD")
	require.NoError(t, err)
	assert.Equal(t, "28.06", usd.Amount.StringFixed(2))

	require.NoError(t, s.Process(ctx))
	assert.Equal(t, 1, svc.Metrics.Summary(5).TotalOperations)
	gr1 := svc.Ledger.StockLevel("GR1")
	assert.Equal(t, 3, gr1.Sold)
	assert.Equal(t, 47, gr1.Available)
}

func TestBuild_SeedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"products": [{"code": "TEA", "name": "Tea", "price": "2.00", "units": 4}],
		"rules": [{"type": "quantity_discount", "product_code": "TEA", "buy_quantity": 1, "free_quantity": 1}]
	}`), 0o600))

	svc, err := Build(context.Background(), &Config{BaseCurrency: "GBP", SeedFiles: []string{path}}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Catalog.Len())
	assert.Equal(t, 4, svc.Ledger.StockLevel("TEA").Available)
}

func TestBuild_MissingSeedFile(t *testing.T) {
	_, err := Build(context.Background(), &Config{SeedFiles: []string{"/nonexistent/seed.json"}}, noop.NewMeterProvider())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load seed")
}

func TestConfig_Validate(t *testing.T) {
	for _, tt := range []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "Defaults", cfg: Config{BaseCurrency: "GBP"}},
		{name: "BadCurrency", cfg: Config{BaseCurrency: "POUND"}, wantErr: true},
		{
			name:    "ReaperWithoutInterval",
			cfg:     Config{BaseCurrency: "GBP", Session: SessionConfig{IdleTimeout: 1}},
			wantErr: true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_PlatformPort(t *testing.T) {
	t.Setenv("PORT", "9999")
	cfg := Config{Addr: "0.0.0.0:8080"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "0.0.0.0:9999", cfg.Addr)

	custom := Config{Addr: "127.0.0.1:7000"}
	custom.applyPlatformDefaults()
	assert.Equal(t, "127.0.0.1:7000", custom.Addr)
}
