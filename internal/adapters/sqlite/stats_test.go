package sqlite

import (
	"context"
	"testing"
	"time"

	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedLedger records a small trading history: two buys (one old), one
// OCO sell, one active and one completed exit order.
func seedLedger(t *testing.T, repo *Repository, now time.Time) {
	t.Helper()
	ctx := context.Background()

	_, err := repo.RecordTransaction(ctx, buyTx("SOLUSDC", "1", 1, 150.0, 1.0, now.Add(-40*24*time.Hour)))
	require.NoError(t, err)
	_, err = repo.RecordTransaction(ctx, buyTx("ADAUSDC", "2", 2, 0.50, 200.0, now.Add(-1*time.Hour)))
	require.NoError(t, err)

	_, err = repo.CreateExitOrder(ctx, activeExitOrder("ADAUSDC", "9001"))
	require.NoError(t, err)

	_, err = repo.CreateExitOrder(ctx, activeExitOrder("SOLUSDC", "9002"))
	require.NoError(t, err)
	exec := ports.ExecutionSnapshot{
		Type:       domain.ExecutionProfit,
		Price:      154.5,
		Quantity:   1.0,
		ExecutedAt: now.Add(-30 * time.Minute),
	}
	sellTx := &domain.Transaction{
		Symbol:       "SOLUSDC",
		OrderID:      "9002-tp",
		Side:         domain.Sell,
		OrderType:    domain.OrderTypeOCO,
		Price:        154.5,
		Quantity:     1.0,
		Commission:   0.15,
		TransactTime: exec.ExecutedAt,
	}
	require.NoError(t, repo.CompleteExitOrder(ctx, "9002", domain.ExitStatusProfitFilled, exec, sellTx))
}

func TestRepository_PeriodTotals(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()
	seedLedger(t, repo, now)

	// All time: 2 buys, 1 sell
	totals, err := repo.PeriodTotals(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Buys)
	assert.Equal(t, 1, totals.Sells)
	assert.InDelta(t, 150.0*1.0+0.50*200.0, totals.Invested, 1e-9)
	assert.InDelta(t, 154.5*1.0, totals.Recovered, 1e-9)
	assert.InDelta(t, 0.01+0.01+0.15, totals.Fees, 1e-9)
	assert.Equal(t, 2, totals.Symbols)
	assert.InDelta(t, 154.5-250.0, totals.GrossProfit(), 1e-9)

	// Last 7 days excludes the 40 day old buy
	recent, err := repo.PeriodTotals(ctx, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, 1, recent.Buys)
	assert.Equal(t, 1, recent.Sells)
	assert.InDelta(t, 100.0, recent.Invested, 1e-9)

	// Empty window
	future, err := repo.PeriodTotals(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, future.Buys)
	assert.Equal(t, 0.0, future.Invested)
	assert.Equal(t, 0, future.Symbols)
}

func TestRepository_StatusCounts(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()
	seedLedger(t, repo, now)

	counts, err := repo.StatusCounts(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Active)
	assert.Equal(t, 1, counts.ProfitFilled)
	assert.Equal(t, 0, counts.StopFilled)
	assert.Equal(t, 0, counts.Cancelled)
}

func TestRepository_QuickStats(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	// Empty ledger
	stats, err := repo.QuickStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.DailyBuys)
	assert.Equal(t, 0, stats.ActiveExitOrders)
	assert.Equal(t, 0, stats.TotalTransactions)
	assert.Nil(t, stats.LastActivity)

	now := time.Now()
	seedLedger(t, repo, now)

	stats, err = repo.QuickStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DailyBuys) // Only the recent ADAUSDC buy is from today
	assert.Equal(t, 1, stats.ActiveExitOrders)
	assert.Equal(t, 3, stats.TotalTransactions)
	require.NotNil(t, stats.LastActivity)
	assert.WithinDuration(t, now.Add(-30*time.Minute), *stats.LastActivity, time.Second)
}

func TestRepository_Snapshot(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()
	seedLedger(t, repo, now)

	snap, err := repo.Snapshot(ctx, now.AddDate(0, 0, -1), now)
	require.NoError(t, err)

	// Report window covers the last day only
	assert.Equal(t, 1, snap.Totals.Buys)
	assert.Equal(t, 1, snap.Totals.Sells)

	// Performance windows
	assert.Equal(t, 2, snap.AllTime.Buys)
	assert.Equal(t, 1, snap.Week.Buys)
	assert.InDelta(t, 154.5, snap.AllTime.Recovered, 1e-9)

	// Status counts and active orders agree
	assert.Equal(t, 1, snap.Counts.Active)
	require.Len(t, snap.Active, 1)
	assert.Equal(t, "9001", snap.Active[0].OrderListID)
	assert.Equal(t, now, snap.TakenAt)
}
