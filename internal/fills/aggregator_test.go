package fills

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockSource struct {
	calls     int
	responses [][]domain.Fill
	errs      []error
}

func (m *mockSource) GetOrderFills(ctx context.Context, symbol string, orderID int64) ([]domain.Fill, error) {
	i := m.calls
	m.calls++
	var fills []domain.Fill
	if i < len(m.responses) {
		fills = m.responses[i]
	}
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	return fills, err
}

func fill(price, qty float64) domain.Fill {
	return domain.Fill{
		OrderID:         "1001",
		Symbol:          "BTCUSDC",
		Price:           price,
		Quantity:        qty,
		CommissionAsset: "USDC",
		ExecutedAt:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestAggregator(t *testing.T, src Source, maxAttempts int) *Aggregator {
	t.Helper()
	agg, err := New(Config{
		Source:      src,
		Logger:      &mockLogger{},
		MaxAttempts: maxAttempts,
		RetryMin:    time.Millisecond,
		RetryMax:    2 * time.Millisecond,
	})
	require.NoError(t, err)
	return agg
}

func TestNew(t *testing.T) {
	t.Run("requires a source", func(t *testing.T) {
		_, err := New(Config{Logger: &mockLogger{}})
		require.Error(t, err)
	})
	t.Run("requires a logger", func(t *testing.T) {
		_, err := New(Config{Source: &mockSource{}})
		require.Error(t, err)
	})
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name      string
		fills     []domain.Fill
		wantErr   error
		wantQty   float64
		wantAvg   float64
		wantCount int
	}{
		{
			name:    "no fills",
			fills:   nil,
			wantErr: ports.ErrIncompleteFillData,
		},
		{
			name:    "fills sum to zero",
			fills:   []domain.Fill{fill(100, 0)},
			wantErr: ports.ErrIncompleteFillData,
		},
		{
			name:      "single fill",
			fills:     []domain.Fill{fill(250.5, 2)},
			wantQty:   2,
			wantAvg:   250.5,
			wantCount: 1,
		},
		{
			name:      "two partial fills weight by volume",
			fills:     []domain.Fill{fill(100, 0.3), fill(102, 0.7)},
			wantQty:   1.0,
			wantAvg:   101.4,
			wantCount: 2,
		},
		{
			name:      "many fills at one price keep that price",
			fills:     []domain.Fill{fill(50, 1), fill(50, 2), fill(50, 3)},
			wantQty:   6,
			wantAvg:   50,
			wantCount: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := Aggregate(tt.fills)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantQty, pos.TotalQuantity, QuantityTolerance)
			assert.InDelta(t, tt.wantAvg, pos.AvgPrice, 1e-9)
			assert.Equal(t, tt.wantCount, pos.FillCount)
			assert.Equal(t, "BTCUSDC", pos.Symbol)
		})
	}
}

func TestAggregateSumsCommissionAndTimestamps(t *testing.T) {
	early := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	late := early.Add(3 * time.Second)

	f1 := fill(100, 0.5)
	f1.Commission = 0.01
	f1.ExecutedAt = late
	f2 := fill(101, 0.5)
	f2.Commission = 0.02
	f2.ExecutedAt = early

	pos, err := Aggregate([]domain.Fill{f1, f2})
	require.NoError(t, err)
	assert.InDelta(t, 0.03, pos.Commission, 1e-12)
	assert.Equal(t, early, pos.FirstFillAt)
	assert.Equal(t, late, pos.LastFillAt)
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	inline := []domain.Fill{fill(100, 0.3), fill(102, 0.7)}

	t.Run("inline fills already complete", func(t *testing.T) {
		src := &mockSource{}
		agg := newTestAggregator(t, src, 3)

		pos, got, err := agg.Collect(ctx, "BTCUSDC", 1001, inline, 1.0)
		require.NoError(t, err)
		assert.Equal(t, 0, src.calls, "no re-fetch for a complete inline list")
		assert.Len(t, got, 2)
		assert.InDelta(t, 101.4, pos.AvgPrice, 1e-9)
	})

	t.Run("re-fetches when inline fills missing", func(t *testing.T) {
		src := &mockSource{responses: [][]domain.Fill{inline}}
		agg := newTestAggregator(t, src, 3)

		pos, _, err := agg.Collect(ctx, "BTCUSDC", 1001, nil, 1.0)
		require.NoError(t, err)
		assert.Equal(t, 1, src.calls)
		assert.InDelta(t, 1.0, pos.TotalQuantity, QuantityTolerance)
	})

	t.Run("re-fetches when inline fills short", func(t *testing.T) {
		src := &mockSource{responses: [][]domain.Fill{inline}}
		agg := newTestAggregator(t, src, 3)

		pos, _, err := agg.Collect(ctx, "BTCUSDC", 1001, inline[:1], 1.0)
		require.NoError(t, err)
		assert.Equal(t, 1, src.calls)
		assert.InDelta(t, 1.0, pos.TotalQuantity, QuantityTolerance)
		assert.Equal(t, 2, pos.FillCount)
	})

	t.Run("survives a transient fetch error", func(t *testing.T) {
		src := &mockSource{
			responses: [][]domain.Fill{nil, inline},
			errs:      []error{ports.ErrExchangeUnavailable, nil},
		}
		agg := newTestAggregator(t, src, 3)

		_, _, err := agg.Collect(ctx, "BTCUSDC", 1001, nil, 1.0)
		require.NoError(t, err)
		assert.Equal(t, 2, src.calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		src := &mockSource{}
		agg := newTestAggregator(t, src, 3)

		_, _, err := agg.Collect(ctx, "BTCUSDC", 1001, nil, 1.0)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrIncompleteFillData)
		assert.Equal(t, 3, src.calls)
	})

	t.Run("accepts any fills when executed quantity unknown", func(t *testing.T) {
		src := &mockSource{}
		agg := newTestAggregator(t, src, 3)

		pos, _, err := agg.Collect(ctx, "BTCUSDC", 1001, inline[:1], 0)
		require.NoError(t, err)
		assert.Equal(t, 0, src.calls)
		assert.Equal(t, 1, pos.FillCount)
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		agg := newTestAggregator(t, &mockSource{}, 3)

		_, _, err := agg.Collect(cancelled, "BTCUSDC", 1001, nil, 1.0)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrContextCanceled)
	})
}

func TestBuyTransactions(t *testing.T) {
	f1 := fill(100, 0.3)
	f1.TradeID = 7
	f1.Commission = 0.001
	f2 := fill(102, 0.7)
	f2.TradeID = 8

	txs := BuyTransactions([]domain.Fill{f1, f2}, domain.OrderTypeMarket)
	require.Len(t, txs, 2)
	for i, tx := range txs {
		assert.Equal(t, domain.Buy, tx.Side)
		assert.Equal(t, domain.OrderTypeMarket, tx.OrderType)
		assert.Equal(t, "1001", tx.OrderID)
		assert.Equal(t, "BTCUSDC", tx.Symbol)
		assert.NotZero(t, tx.TradeID, "fill %d", i)
	}
	assert.InDelta(t, 30.0, txs[0].Value(), 1e-9)
	assert.InDelta(t, 71.4, txs[1].Value(), 1e-9)
}
