package portfolio

import (
	"context"
	"testing"
	"time"

	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock implementations
type mockLogger struct {
	warnMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockPrices struct {
	quotes map[string]*ports.PriceQuote
	errs   map[string]error
	calls  int
}

func (m *mockPrices) GetLatestPrice(ctx context.Context, symbol string) (*ports.PriceQuote, error) {
	m.calls++
	if err, ok := m.errs[symbol]; ok {
		return nil, err
	}
	return m.quotes[symbol], nil
}

type mockLedgerPrices struct {
	quotes map[string]*ports.PriceQuote
	err    error
}

func (m *mockLedgerPrices) LastPrice(ctx context.Context, symbol string) (*ports.PriceQuote, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.quotes[symbol], nil
}

func exitOrder(symbol, listID string, qty, kept, avg, target float64) *domain.ExitOrder {
	return &domain.ExitOrder{
		Symbol:        symbol,
		OrderListID:   listID,
		Quantity:      qty,
		KeptQuantity:  kept,
		AvgEntryPrice: avg,
		ProfitTarget:  target,
		ProfitPrice:   avg * (1 + target/100),
		StopLossPrice: avg * 0.95,
		Status:        domain.ExitStatusActive,
		CreatedAt:     time.Now(),
	}
}

func newTestClassifier(t *testing.T, prices *mockPrices, ledger LedgerPrices) *Classifier {
	t.Helper()
	c, err := New(Config{Prices: prices, Ledger: ledger, Logger: &mockLogger{}})
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
	_, err = New(Config{Prices: &mockPrices{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	c, err := New(Config{Prices: &mockPrices{}, Logger: &mockLogger{}})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, c.staleAfter)
}

func TestClassifier_Classify(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("order with kept quantity feeds both figures", func(t *testing.T) {
		prices := &mockPrices{quotes: map[string]*ports.PriceQuote{
			"SOLUSDC": {Symbol: "SOLUSDC", Price: 110.0, At: now},
		}}
		c := newTestClassifier(t, prices, nil)

		got := c.Classify(ctx, []*domain.ExitOrder{
			exitOrder("SOLUSDC", "9001", 1.0, 0.4, 100.0, 3.0),
		})

		require.Len(t, got.Holdings, 1)
		assert.Empty(t, got.Guaranteed)

		h := got.Holdings[0]
		assert.Equal(t, 0.4, h.KeptQuantity)
		assert.InDelta(t, 44.0, h.Value, 1e-9) // 0.4 x 110
		assert.False(t, h.PriceStale)
		assert.InDelta(t, 1.8, h.GuaranteedProfit, 1e-9) // 0.6 x 100 x 3%

		assert.InDelta(t, 44.0, got.HoldingsValue, 1e-9)
		assert.InDelta(t, 1.8, got.GuaranteedProfit, 1e-9)
		assert.False(t, got.StalePrices)
	})

	t.Run("fully protected order is guaranteed only", func(t *testing.T) {
		c := newTestClassifier(t, &mockPrices{}, nil)

		got := c.Classify(ctx, []*domain.ExitOrder{
			exitOrder("SOLUSDC", "9001", 1.0, 0, 100.0, 3.0),
		})

		assert.Empty(t, got.Holdings)
		require.Len(t, got.Guaranteed, 1)
		g := got.Guaranteed[0]
		assert.Equal(t, 1.0, g.ProtectedQty)
		assert.InDelta(t, 3.0, g.GuaranteedProfit, 1e-9) // 1.0 x 100 x 3%
		assert.InDelta(t, 3.0, got.GuaranteedProfit, 1e-9)
		assert.Zero(t, got.HoldingsValue)
	})

	t.Run("every active order lands in exactly one bucket", func(t *testing.T) {
		prices := &mockPrices{quotes: map[string]*ports.PriceQuote{
			"SOLUSDC": {Symbol: "SOLUSDC", Price: 110.0, At: now},
			"ADAUSDC": {Symbol: "ADAUSDC", Price: 0.5, At: now},
		}}
		c := newTestClassifier(t, prices, nil)

		orders := []*domain.ExitOrder{
			exitOrder("SOLUSDC", "9001", 1.0, 0.4, 100.0, 3.0),
			exitOrder("SOLUSDC", "9002", 2.0, 0, 98.0, 2.0),
			exitOrder("ADAUSDC", "9003", 100.0, 25.0, 0.45, 3.0),
		}
		got := c.Classify(ctx, orders)

		assert.Len(t, got.Holdings, 2)
		assert.Len(t, got.Guaranteed, 1)
		assert.Equal(t, len(orders), len(got.Holdings)+len(got.Guaranteed))

		seen := make(map[string]int)
		for _, h := range got.Holdings {
			seen[h.OrderListID]++
		}
		for _, g := range got.Guaranteed {
			seen[g.OrderListID]++
		}
		for listID, n := range seen {
			assert.Equalf(t, 1, n, "order %s classified %d times", listID, n)
		}

		// Guaranteed total sums protected portions across both buckets:
		// 0.6x100x3% + 2.0x98x2% + 75x0.45x3%
		assert.InDelta(t, 1.8+3.92+1.0125, got.GuaranteedProfit, 1e-9)
	})

	t.Run("terminal orders are ignored", func(t *testing.T) {
		c := newTestClassifier(t, &mockPrices{}, nil)
		done := exitOrder("SOLUSDC", "9001", 1.0, 0, 100.0, 3.0)
		done.Status = domain.ExitStatusProfitFilled

		got := c.Classify(ctx, []*domain.ExitOrder{done})
		assert.Empty(t, got.Holdings)
		assert.Empty(t, got.Guaranteed)
		assert.Zero(t, got.GuaranteedProfit)
	})

	t.Run("old price is flagged stale", func(t *testing.T) {
		prices := &mockPrices{quotes: map[string]*ports.PriceQuote{
			"SOLUSDC": {Symbol: "SOLUSDC", Price: 110.0, At: now.Add(-time.Hour)},
		}}
		c := newTestClassifier(t, prices, nil)

		got := c.Classify(ctx, []*domain.ExitOrder{
			exitOrder("SOLUSDC", "9001", 1.0, 0.4, 100.0, 3.0),
		})

		require.Len(t, got.Holdings, 1)
		assert.True(t, got.Holdings[0].PriceStale)
		assert.True(t, got.StalePrices)
		// Valuation proceeds despite staleness
		assert.InDelta(t, 44.0, got.Holdings[0].Value, 1e-9)
	})

	t.Run("falls back to ledger price when live source fails", func(t *testing.T) {
		prices := &mockPrices{errs: map[string]error{"SOLUSDC": ports.ErrExchangeUnavailable}}
		ledger := &mockLedgerPrices{quotes: map[string]*ports.PriceQuote{
			"SOLUSDC": {Symbol: "SOLUSDC", Price: 106.0, At: now.Add(-30 * time.Minute)},
		}}
		c := newTestClassifier(t, prices, ledger)

		got := c.Classify(ctx, []*domain.ExitOrder{
			exitOrder("SOLUSDC", "9001", 1.0, 0.4, 100.0, 3.0),
		})

		require.Len(t, got.Holdings, 1)
		assert.InDelta(t, 0.4*106.0, got.Holdings[0].Value, 1e-9)
		assert.True(t, got.Holdings[0].PriceStale)
		assert.True(t, got.StalePrices)
	})

	t.Run("missing price everywhere yields flagged zero value", func(t *testing.T) {
		prices := &mockPrices{errs: map[string]error{"SOLUSDC": ports.ErrExchangeUnavailable}}
		ledger := &mockLedgerPrices{}
		c := newTestClassifier(t, prices, ledger)

		got := c.Classify(ctx, []*domain.ExitOrder{
			exitOrder("SOLUSDC", "9001", 1.0, 0.4, 100.0, 3.0),
		})

		require.Len(t, got.Holdings, 1)
		assert.True(t, got.Holdings[0].PriceUnavailable)
		assert.Zero(t, got.Holdings[0].Value)
		assert.True(t, got.StalePrices)
		// The guaranteed figure does not depend on market data.
		assert.InDelta(t, 1.8, got.GuaranteedProfit, 1e-9)
	})

	t.Run("price lookups are memoized per symbol", func(t *testing.T) {
		prices := &mockPrices{quotes: map[string]*ports.PriceQuote{
			"SOLUSDC": {Symbol: "SOLUSDC", Price: 110.0, At: now},
		}}
		c := newTestClassifier(t, prices, nil)

		c.Classify(ctx, []*domain.ExitOrder{
			exitOrder("SOLUSDC", "9001", 1.0, 0.4, 100.0, 3.0),
			exitOrder("SOLUSDC", "9002", 1.0, 0.2, 101.0, 3.0),
			exitOrder("SOLUSDC", "9003", 1.0, 0.1, 102.0, 3.0),
		})
		assert.Equal(t, 1, prices.calls)
	})
}
