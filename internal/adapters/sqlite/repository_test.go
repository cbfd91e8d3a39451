package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	// Create temporary directory for test database
	tmpDir, err := os.MkdirTemp("", "guard-bot-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	// Return cleanup function
	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func buyTx(symbol, orderID string, tradeID int64, price, qty float64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		Symbol:          symbol,
		OrderID:         orderID,
		TradeID:         tradeID,
		Side:            domain.Buy,
		OrderType:       domain.OrderTypeMarket,
		Price:           price,
		Quantity:        qty,
		Commission:      0.01,
		CommissionAsset: "USDC",
		TransactTime:    at,
	}
}

func activeExitOrder(symbol, orderListID string) *domain.ExitOrder {
	return &domain.ExitOrder{
		Symbol:         symbol,
		OrderListID:    orderListID,
		ProfitOrderID:  orderListID + "-tp",
		StopOrderID:    orderListID + "-sl",
		BuyOrderID:     orderListID + "-buy",
		Quantity:       1.0,
		KeptQuantity:   0.4,
		AvgEntryPrice:  100.0,
		ProfitTarget:   3.0,
		ProfitPrice:    103.0,
		StopLossPrice:  95.0,
		StopLimitPrice: 94.9,
		Status:         domain.ExitStatusActive,
		CreatedAt:      time.Now(),
	}
}

func TestRepository_RecordTransaction(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	id, err := repo.RecordTransaction(ctx, buyTx("SOLUSDC", "1001", 50, 150.0, 0.5, time.Now()))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	// Same order, different trade id: a second fill, must insert.
	id2, err := repo.RecordTransaction(ctx, buyTx("SOLUSDC", "1001", 51, 151.0, 0.5, time.Now()))
	require.NoError(t, err)
	assert.Greater(t, id2, id)

	// Re-recording the same (order, trade) pair is a no-op.
	id3, err := repo.RecordTransaction(ctx, buyTx("SOLUSDC", "1001", 50, 150.0, 0.5, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(0), id3)

	txs, err := repo.FindTransactions(ctx, ports.TransactionFilter{Symbol: "SOLUSDC"})
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestRepository_FindTransactions(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	seed := []*domain.Transaction{
		buyTx("SOLUSDC", "1", 1, 150.0, 0.5, now.Add(-48*time.Hour)),
		buyTx("SOLUSDC", "2", 2, 152.0, 0.5, now.Add(-2*time.Hour)),
		buyTx("ADAUSDC", "3", 3, 0.45, 100.0, now.Add(-1*time.Hour)),
	}
	sell := buyTx("SOLUSDC", "4", 4, 156.0, 0.6, now)
	sell.Side = domain.Sell
	sell.OrderType = domain.OrderTypeOCO
	seed = append(seed, sell)

	for _, tx := range seed {
		_, err := repo.RecordTransaction(ctx, tx)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter ports.TransactionFilter
		want   int
	}{
		{name: "all", filter: ports.TransactionFilter{}, want: 4},
		{name: "by symbol", filter: ports.TransactionFilter{Symbol: "SOLUSDC"}, want: 3},
		{name: "by side", filter: ports.TransactionFilter{Side: domain.Sell}, want: 1},
		{name: "since cutoff", filter: ports.TransactionFilter{Since: now.Add(-3 * time.Hour)}, want: 3},
		{name: "with limit", filter: ports.TransactionFilter{Limit: 2}, want: 2},
		{name: "no match", filter: ports.TransactionFilter{Symbol: "BTCUSDC"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindTransactions(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	// Newest first ordering
	all, err := repo.FindTransactions(ctx, ports.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "4", all[0].OrderID)
	assert.Equal(t, "1", all[3].OrderID)
}

func TestRepository_CountTodayBuys(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	_, err := repo.RecordTransaction(ctx, buyTx("SOLUSDC", "1", 1, 150.0, 0.5, now))
	require.NoError(t, err)
	_, err = repo.RecordTransaction(ctx, buyTx("ADAUSDC", "2", 2, 0.45, 100.0, now))
	require.NoError(t, err)
	// Yesterday's buy must not count.
	_, err = repo.RecordTransaction(ctx, buyTx("SOLUSDC", "3", 3, 148.0, 0.5, now.Add(-36*time.Hour)))
	require.NoError(t, err)
	// Today's sell must not count either.
	sell := buyTx("SOLUSDC", "4", 4, 156.0, 0.5, now)
	sell.Side = domain.Sell
	_, err = repo.RecordTransaction(ctx, sell)
	require.NoError(t, err)

	all, err := repo.CountTodayBuys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, all)

	sol, err := repo.CountTodayBuys(ctx, "SOLUSDC")
	require.NoError(t, err)
	assert.Equal(t, 1, sol)
}

func TestRepository_LastBuyTimeAndLastPrice(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	// Unknown symbol: nil, nil
	ts, err := repo.LastBuyTime(ctx, "BTCUSDC")
	require.NoError(t, err)
	assert.Nil(t, ts)
	quote, err := repo.LastPrice(ctx, "BTCUSDC")
	require.NoError(t, err)
	assert.Nil(t, quote)

	_, err = repo.RecordTransaction(ctx, buyTx("SOLUSDC", "1", 1, 150.0, 0.5, now.Add(-2*time.Hour)))
	require.NoError(t, err)
	sell := buyTx("SOLUSDC", "2", 2, 156.0, 0.5, now.Add(-1*time.Hour))
	sell.Side = domain.Sell
	_, err = repo.RecordTransaction(ctx, sell)
	require.NoError(t, err)

	ts, err = repo.LastBuyTime(ctx, "SOLUSDC")
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.WithinDuration(t, now.Add(-2*time.Hour), *ts, time.Second)

	// Last price considers both sides
	quote, err = repo.LastPrice(ctx, "SOLUSDC")
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Equal(t, 156.0, quote.Price)
	assert.Equal(t, "SOLUSDC", quote.Symbol)
}

func TestRepository_CreateAndFindExitOrder(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	order := activeExitOrder("SOLUSDC", "9001")
	id, err := repo.CreateExitOrder(ctx, order)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	// Duplicate order_list_id must be rejected by the schema.
	_, err = repo.CreateExitOrder(ctx, activeExitOrder("SOLUSDC", "9001"))
	assert.Error(t, err)

	found, err := repo.FindByOrderListID(ctx, "9001")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, order.Symbol, found.Symbol)
	assert.Equal(t, order.Quantity, found.Quantity)
	assert.Equal(t, order.KeptQuantity, found.KeptQuantity)
	assert.Equal(t, order.AvgEntryPrice, found.AvgEntryPrice)
	assert.Equal(t, order.ProfitTarget, found.ProfitTarget)
	assert.Equal(t, order.ProfitPrice, found.ProfitPrice)
	assert.Equal(t, order.StopLossPrice, found.StopLossPrice)
	assert.Equal(t, domain.ExitStatusActive, found.Status)
	assert.Nil(t, found.ExecutedAt)

	missing, err := repo.FindByOrderListID(ctx, "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, missing)

	active, err := repo.FindActive(ctx, "")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	count, err := repo.CountActiveBySymbol(ctx, "SOLUSDC")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = repo.CountActiveBySymbol(ctx, "ADAUSDC")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRepository_CompleteExitOrder(t *testing.T) {
	tests := []struct {
		name       string
		status     domain.ExitOrderStatus
		exec       ports.ExecutionSnapshot
		withSellTx bool
	}{
		{
			name:   "profit leg filled",
			status: domain.ExitStatusProfitFilled,
			exec: ports.ExecutionSnapshot{
				Type:       domain.ExecutionProfit,
				Price:      103.0,
				Quantity:   0.6,
				ExecutedAt: time.Now(),
			},
			withSellTx: true,
		},
		{
			name:   "stop leg filled",
			status: domain.ExitStatusStopFilled,
			exec: ports.ExecutionSnapshot{
				Type:       domain.ExecutionStopLoss,
				Price:      94.9,
				Quantity:   0.6,
				ExecutedAt: time.Now(),
			},
			withSellTx: true,
		},
		{
			name:       "cancelled without execution",
			status:     domain.ExitStatusCancelled,
			exec:       ports.ExecutionSnapshot{ExecutedAt: time.Now()},
			withSellTx: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, cleanup := setupTestDB(t)
			defer cleanup()

			ctx := context.Background()

			order := activeExitOrder("SOLUSDC", "9001")
			_, err := repo.CreateExitOrder(ctx, order)
			require.NoError(t, err)

			var sellTx *domain.Transaction
			if tt.withSellTx {
				sellTx = &domain.Transaction{
					Symbol:       "SOLUSDC",
					OrderID:      "9001-tp",
					Side:         domain.Sell,
					OrderType:    domain.OrderTypeOCO,
					Price:        tt.exec.Price,
					Quantity:     tt.exec.Quantity,
					TransactTime: tt.exec.ExecutedAt,
				}
			}

			err = repo.CompleteExitOrder(ctx, "9001", tt.status, tt.exec, sellTx)
			require.NoError(t, err)

			// Order row transitioned; prices set at creation are untouched
			found, err := repo.FindByOrderListID(ctx, "9001")
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, tt.status, found.Status)
			require.NotNil(t, found.ExecutedAt)
			assert.Equal(t, order.AvgEntryPrice, found.AvgEntryPrice)
			assert.Equal(t, order.ProfitPrice, found.ProfitPrice)
			assert.Equal(t, order.StopLossPrice, found.StopLossPrice)

			// No longer active
			active, err := repo.FindActive(ctx, "SOLUSDC")
			require.NoError(t, err)
			assert.Empty(t, active)

			// History row written in the same transaction
			history, err := repo.FindHistory(ctx, ports.HistoryFilter{Symbol: "SOLUSDC"})
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, "9001", history[0].OrderListID)
			assert.Equal(t, tt.status, history[0].Status)
			assert.Equal(t, tt.exec.Type, history[0].ExecutionType)
			assert.Equal(t, tt.exec.Price, history[0].ExecutionPrice)
			assert.Equal(t, order.KeptQuantity, history[0].KeptQuantity)

			// SELL transaction recorded only for executed legs
			sells, err := repo.FindTransactions(ctx, ports.TransactionFilter{Side: domain.Sell})
			require.NoError(t, err)
			if tt.withSellTx {
				assert.Len(t, sells, 1)
			} else {
				assert.Empty(t, sells)
			}
		})
	}
}

func TestRepository_CompleteExitOrderIsIdempotent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	_, err := repo.CreateExitOrder(ctx, activeExitOrder("SOLUSDC", "9001"))
	require.NoError(t, err)

	exec := ports.ExecutionSnapshot{
		Type:       domain.ExecutionProfit,
		Price:      103.0,
		Quantity:   0.6,
		ExecutedAt: time.Now(),
	}
	sellTx := &domain.Transaction{
		Symbol:       "SOLUSDC",
		OrderID:      "9001-tp",
		Side:         domain.Sell,
		OrderType:    domain.OrderTypeOCO,
		Price:        103.0,
		Quantity:     0.6,
		TransactTime: exec.ExecutedAt,
	}

	err = repo.CompleteExitOrder(ctx, "9001", domain.ExitStatusProfitFilled, exec, sellTx)
	require.NoError(t, err)

	// A replayed terminal event must be rejected without touching the ledger.
	err = repo.CompleteExitOrder(ctx, "9001", domain.ExitStatusProfitFilled, exec, sellTx)
	assert.ErrorIs(t, err, ports.ErrDuplicateTerminalEvent)

	// Even with a different status
	err = repo.CompleteExitOrder(ctx, "9001", domain.ExitStatusStopFilled, exec, sellTx)
	assert.ErrorIs(t, err, ports.ErrDuplicateTerminalEvent)

	history, err := repo.FindHistory(ctx, ports.HistoryFilter{Symbol: "SOLUSDC"})
	require.NoError(t, err)
	assert.Len(t, history, 1)
	sells, err := repo.FindTransactions(ctx, ports.TransactionFilter{Side: domain.Sell})
	require.NoError(t, err)
	assert.Len(t, sells, 1)
}

func TestRepository_CompleteExitOrderErrors(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	exec := ports.ExecutionSnapshot{ExecutedAt: time.Now()}

	// Unknown order
	err := repo.CompleteExitOrder(ctx, "no-such-id", domain.ExitStatusCancelled, exec, nil)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	// Non-terminal target status
	_, err = repo.CreateExitOrder(ctx, activeExitOrder("SOLUSDC", "9001"))
	require.NoError(t, err)
	err = repo.CompleteExitOrder(ctx, "9001", domain.ExitStatusActive, exec, nil)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestRepository_FindHistory(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	complete := func(listID string, status domain.ExitOrderStatus, at time.Time) {
		t.Helper()
		_, err := repo.CreateExitOrder(ctx, activeExitOrder("SOLUSDC", listID))
		require.NoError(t, err)
		exec := ports.ExecutionSnapshot{ExecutedAt: at}
		if status != domain.ExitStatusCancelled {
			exec.Type = domain.ExecutionProfit
			exec.Price = 103.0
			exec.Quantity = 0.6
		}
		require.NoError(t, repo.CompleteExitOrder(ctx, listID, status, exec, nil))
	}

	complete("9001", domain.ExitStatusProfitFilled, now.Add(-48*time.Hour))
	complete("9002", domain.ExitStatusCancelled, now.Add(-2*time.Hour))
	complete("9003", domain.ExitStatusProfitFilled, now)

	all, err := repo.FindHistory(ctx, ports.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "9003", all[0].OrderListID)
	assert.Equal(t, "9001", all[2].OrderListID)

	recent, err := repo.FindHistory(ctx, ports.HistoryFilter{Symbol: "SOLUSDC", Since: now.Add(-24 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	cancelled, err := repo.FindHistory(ctx, ports.HistoryFilter{Status: domain.ExitStatusCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "9002", cancelled[0].OrderListID)

	limited, err := repo.FindHistory(ctx, ports.HistoryFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "9003", limited[0].OrderListID)
}
