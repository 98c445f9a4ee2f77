package inventory

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T, stock map[string]int) *Ledger {
	t.Helper()
	l := NewLedger()
	for code, units := range stock {
		l.AddProduct(code, units)
	}
	return l
}

func TestLedger_AddProduct(t *testing.T) {
	l := newLedger(t, map[string]int{"SR1": 25})

	assert.Equal(t, Level{Total: 25, Available: 25}, l.StockLevel("SR1"))

	require.True(t, l.Reserve("SR1", 5, "cart"))
	l.AddProduct("SR1", 10)

	assert.Equal(t, Level{Total: 10, Available: 10}, l.StockLevel("SR1"))
	assert.Empty(t, l.Reservations("cart"))
	require.NoError(t, l.Verify())
}

func TestLedger_StockLevelUnknown(t *testing.T) {
	assert.Equal(t, Level{}, NewLedger().StockLevel("UNKNOWN"))
}

func TestLedger_IsAvailable(t *testing.T) {
	l := newLedger(t, map[string]int{"GR1": 10})

	tests := []struct {
		name     string
		code     string
		quantity int
		want     bool
	}{
		{name: "sufficient", code: "GR1", quantity: 5, want: true},
		{name: "exact", code: "GR1", quantity: 10, want: true},
		{name: "insufficient", code: "GR1", quantity: 15, want: false},
		{name: "very large", code: "GR1", quantity: 999999, want: false},
		{name: "zero", code: "GR1", quantity: 0, want: true},
		{name: "negative", code: "GR1", quantity: -1, want: true},
		{name: "unknown product", code: "XX1", quantity: 1, want: false},
		{name: "unknown product zero quantity", code: "XX1", quantity: 0, want: true},
		{name: "unknown product negative quantity", code: "XX1", quantity: -3, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.IsAvailable(tt.code, tt.quantity))
		})
	}
}

func TestLedger_Reserve(t *testing.T) {
	t.Run("reserves available stock", func(t *testing.T) {
		l := newLedger(t, map[string]int{"GR1": 10})

		require.True(t, l.Reserve("GR1", 3, "cart_123"))
		assert.Equal(t, Level{Total: 10, Reserved: 3, Available: 7}, l.StockLevel("GR1"))
		assert.Equal(t, map[string]int{"GR1": 3}, l.Reservations("cart_123"))
	})

	t.Run("accumulates for the same cart", func(t *testing.T) {
		l := newLedger(t, map[string]int{"GR1": 10})

		require.True(t, l.Reserve("GR1", 2, "cart_123"))
		require.True(t, l.Reserve("GR1", 1, "cart_123"))
		assert.Equal(t, 3, l.StockLevel("GR1").Reserved)
		assert.Equal(t, map[string]int{"GR1": 3}, l.Reservations("cart_123"))
	})

	t.Run("tracks carts separately", func(t *testing.T) {
		l := newLedger(t, map[string]int{"GR1": 10})

		require.True(t, l.Reserve("GR1", 3, "cart_123"))
		require.True(t, l.Reserve("GR1", 2, "cart_456"))
		assert.Equal(t, Level{Total: 10, Reserved: 5, Available: 5}, l.StockLevel("GR1"))
		require.NoError(t, l.Verify())
	})

	t.Run("fails without state change when insufficient", func(t *testing.T) {
		l := newLedger(t, map[string]int{"GR1": 10})
		require.True(t, l.Reserve("GR1", 8, "cart_other"))

		assert.False(t, l.Reserve("GR1", 5, "cart_123"))
		assert.Equal(t, Level{Total: 10, Reserved: 8, Available: 2}, l.StockLevel("GR1"))
		assert.Empty(t, l.Reservations("cart_123"))
	})

	t.Run("fails for unknown product", func(t *testing.T) {
		l := NewLedger()
		assert.False(t, l.Reserve("XX1", 1, "cart_123"))
		assert.Empty(t, l.Reservations("cart_123"))
	})

	t.Run("non-positive quantities are no-ops", func(t *testing.T) {
		l := newLedger(t, map[string]int{"GR1": 10})

		assert.True(t, l.Reserve("GR1", 0, "cart_123"))
		assert.True(t, l.Reserve("GR1", -1, "cart_123"))
		assert.True(t, l.Reserve("XX1", 0, "cart_123"))
		assert.Equal(t, 0, l.StockLevel("GR1").Reserved)
		assert.Empty(t, l.Reservations("cart_123"))
	})
}

func TestLedger_TryReserve(t *testing.T) {
	t.Run("reports level after success", func(t *testing.T) {
		l := newLedger(t, map[string]int{"GR1": 10})

		lvl, ok := l.TryReserve("GR1", 4, "cart_123")
		require.True(t, ok)
		assert.Equal(t, Level{Total: 10, Reserved: 4, Available: 6}, lvl)
	})

	t.Run("reports the level that caused a failure", func(t *testing.T) {
		l := newLedger(t, map[string]int{"GR1": 3})
		require.True(t, l.Reserve("GR1", 2, "cart_other"))

		lvl, ok := l.TryReserve("GR1", 2, "cart_123")
		require.False(t, ok)
		assert.Equal(t, Level{Total: 3, Reserved: 2, Available: 1}, lvl)
		assert.Empty(t, l.Reservations("cart_123"))
	})

	t.Run("unknown product", func(t *testing.T) {
		lvl, ok := NewLedger().TryReserve("XX1", 1, "cart_123")
		assert.False(t, ok)
		assert.Equal(t, Level{}, lvl)
	})

	t.Run("concurrent failures see exhausted stock", func(t *testing.T) {
		const (
			total    = 5
			shoppers = 50
		)
		l := newLedger(t, map[string]int{"CF1": total})

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			failed []Level
		)
		for i := range shoppers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				lvl, ok := l.TryReserve("CF1", 1, fmt.Sprintf("cart_%d", i))
				if ok {
					return
				}
				mu.Lock()
				failed = append(failed, lvl)
				mu.Unlock()
			}()
		}
		wg.Wait()

		require.Len(t, failed, shoppers-total)
		for _, lvl := range failed {
			assert.Equal(t, Level{Total: total, Reserved: total}, lvl)
		}
		require.NoError(t, l.Verify())
	})
}

func TestLedger_NoOversell(t *testing.T) {
	const total = 7
	l := newLedger(t, map[string]int{"CF1": total})

	for i := range total {
		require.True(t, l.Reserve("CF1", 1, fmt.Sprintf("cart_%d", i)), "reservation %d", i+1)
	}

	assert.False(t, l.Reserve("CF1", 1, "late"))
	assert.Equal(t, 0, l.StockLevel("CF1").Available)
}

func TestLedger_Release(t *testing.T) {
	setup := func(t *testing.T) *Ledger {
		l := newLedger(t, map[string]int{"GR1": 10, "SR1": 5})
		require.True(t, l.Reserve("GR1", 3, "cart_123"))
		return l
	}

	t.Run("partial release", func(t *testing.T) {
		l := setup(t)
		assert.True(t, l.Release("GR1", 2, "cart_123"))
		assert.Equal(t, Level{Total: 10, Reserved: 1, Available: 9}, l.StockLevel("GR1"))
	})

	t.Run("full release cleans up the session", func(t *testing.T) {
		l := setup(t)
		assert.True(t, l.Release("GR1", 3, "cart_123"))
		assert.Equal(t, Level{Total: 10, Available: 10}, l.StockLevel("GR1"))
		assert.Empty(t, l.Reservations("cart_123"))
		assert.True(t, l.Release("GR1", 1, "cart_123"))
	})

	t.Run("excess release is clamped", func(t *testing.T) {
		l := setup(t)
		assert.True(t, l.Release("GR1", 5, "cart_123"))
		assert.Equal(t, Level{Total: 10, Available: 10}, l.StockLevel("GR1"))
		require.NoError(t, l.Verify())
	})

	t.Run("releases across products", func(t *testing.T) {
		l := setup(t)
		require.True(t, l.Reserve("SR1", 2, "cart_123"))

		l.Release("GR1", 1, "cart_123")
		l.Release("SR1", 1, "cart_123")

		assert.Equal(t, 2, l.StockLevel("GR1").Reserved)
		assert.Equal(t, 1, l.StockLevel("SR1").Reserved)
	})

	t.Run("no-op cases", func(t *testing.T) {
		l := setup(t)
		assert.True(t, l.Release("SR1", 1, "cart_123"))
		assert.True(t, l.Release("GR1", 1, "unknown_cart"))
		assert.True(t, l.Release("XX1", 1, "cart_123"))
		assert.True(t, l.Release("GR1", 0, "cart_123"))
		assert.True(t, l.Release("GR1", -1, "cart_123"))
		assert.Equal(t, 3, l.StockLevel("GR1").Reserved)
	})

	t.Run("keeps other carts' reservations", func(t *testing.T) {
		l := setup(t)
		require.True(t, l.Reserve("GR1", 2, "cart_456"))

		l.Release("GR1", 3, "cart_123")

		assert.Equal(t, Level{Total: 10, Reserved: 2, Available: 8}, l.StockLevel("GR1"))
		assert.Equal(t, map[string]int{"GR1": 2}, l.Reservations("cart_456"))
	})
}

func TestLedger_ReleaseSymmetry(t *testing.T) {
	l := newLedger(t, map[string]int{"GR1": 10})
	require.True(t, l.Reserve("GR1", 2, "other"))
	before := l.StockLevel("GR1")

	require.True(t, l.Reserve("GR1", 4, "cart"))
	require.True(t, l.Release("GR1", 4, "cart"))

	assert.Equal(t, before, l.StockLevel("GR1"))
	assert.Empty(t, l.Reservations("cart"))
}

func TestLedger_Commit(t *testing.T) {
	l := newLedger(t, map[string]int{"GR1": 10, "SR1": 5})
	require.True(t, l.Reserve("GR1", 3, "cart"))
	require.True(t, l.Reserve("SR1", 2, "cart"))
	require.True(t, l.Reserve("GR1", 1, "other"))

	assert.True(t, l.Commit("cart"))

	assert.Equal(t, Level{Total: 10, Reserved: 1, Sold: 3, Available: 6}, l.StockLevel("GR1"))
	assert.Equal(t, Level{Total: 5, Sold: 2, Available: 3}, l.StockLevel("SR1"))
	assert.Empty(t, l.Reservations("cart"))
	require.NoError(t, l.Verify())
}

func TestLedger_CommitWithoutReservations(t *testing.T) {
	l := newLedger(t, map[string]int{"GR1": 10})
	before := l.StockLevel("GR1")

	assert.True(t, l.Commit("nobody"))
	assert.Equal(t, before, l.StockLevel("GR1"))
}

func TestLedger_Cancel(t *testing.T) {
	l := newLedger(t, map[string]int{"GR1": 10, "CF1": 3})
	require.True(t, l.Reserve("GR1", 4, "cart"))
	require.True(t, l.Reserve("CF1", 3, "cart"))
	require.True(t, l.Reserve("GR1", 1, "other"))

	assert.True(t, l.Cancel("cart"))

	assert.Equal(t, Level{Total: 10, Reserved: 1, Available: 9}, l.StockLevel("GR1"))
	assert.Equal(t, Level{Total: 3, Available: 3}, l.StockLevel("CF1"))
	assert.Empty(t, l.Reservations("cart"))
	assert.True(t, l.Cancel("cart"))
}

func TestLedger_Products(t *testing.T) {
	l := newLedger(t, map[string]int{"SR1": 1, "CF1": 1, "GR1": 1})
	assert.Equal(t, []string{"CF1", "GR1", "SR1"}, l.Products())
}

func TestLedger_VerifyDetectsCorruption(t *testing.T) {
	l := newLedger(t, map[string]int{"GR1": 2})
	require.True(t, l.Reserve("GR1", 1, "cart"))

	l.products["GR1"].reserved = 2

	var invErr *InvariantError
	require.True(t, errors.As(l.Verify(), &invErr))
	assert.Equal(t, "GR1", invErr.Code)
}

func TestLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	const (
		total   = 50
		workers = 200
	)
	l := newLedger(t, map[string]int{"CF1": total})

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Reserve("CF1", 1, fmt.Sprintf("cart_%d", i)) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, total, granted.Load())
	assert.Equal(t, Level{Total: total, Reserved: total}, l.StockLevel("CF1"))
	require.NoError(t, l.Verify())
}

func TestLedger_ConcurrentMixedOperationsKeepInvariants(t *testing.T) {
	codes := []string{"GR1", "SR1", "CF1"}
	l := newLedger(t, map[string]int{"GR1": 40, "SR1": 25, "CF1": 10})

	var wg sync.WaitGroup
	for w := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			session := fmt.Sprintf("session_%d", w)
			for range 500 {
				code := codes[rng.Intn(len(codes))]
				switch rng.Intn(5) {
				case 0, 1:
					l.Reserve(code, rng.Intn(3)+1, session)
				case 2:
					l.Release(code, rng.Intn(3)+1, session)
				case 3:
					l.Commit(session)
				case 4:
					l.Cancel(session)
				}
			}
		}()
	}
	wg.Wait()

	require.NoError(t, l.Verify())
	for _, code := range codes {
		lvl := l.StockLevel(code)
		assert.GreaterOrEqual(t, lvl.Available, 0, code)
		assert.LessOrEqual(t, lvl.Reserved+lvl.Sold, lvl.Total, code)
	}
}

func TestInsufficientStockError(t *testing.T) {
	var err error = &InsufficientStockError{ProductCode: "GR1", Requested: 1, Available: 0}

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.Equal(t,
		`insufficient stock for product "GR1": requested: 1, available: 0, shortage: 1`,
		err.Error())
}
