package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the aggregate
// queries can run standalone or inside a snapshot transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// --- StatsRepository Implementation ---

// PeriodTotals computes transaction aggregates since the given time.
// A zero time means all time.
func (r *Repository) PeriodTotals(ctx context.Context, since time.Time) (*ports.PeriodTotals, error) {
	return periodTotals(ctx, r.db, since)
}

// StatusCounts counts exit orders per status created since the given time.
// A zero time means all time.
func (r *Repository) StatusCounts(ctx context.Context, since time.Time) (*ports.StatusCounts, error) {
	return statusCounts(ctx, r.db, since)
}

// QuickStats computes the dashboard header summary.
func (r *Repository) QuickStats(ctx context.Context) (*ports.QuickStats, error) {
	stats := &ports.QuickStats{}

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE order_side = ? AND date(transact_time, 'localtime') = date('now', 'localtime')`,
		domain.Buy).Scan(&stats.DailyBuys)
	if err != nil {
		return nil, fmt.Errorf("failed to count daily buys: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exit_orders WHERE status = ?`, domain.ExitStatusActive).Scan(&stats.ActiveExitOrders)
	if err != nil {
		return nil, fmt.Errorf("failed to count active exit orders: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&stats.TotalTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var last time.Time
	err = r.db.QueryRowContext(ctx,
		`SELECT transact_time FROM transactions ORDER BY transact_time DESC LIMIT 1`).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query last activity: %w", err)
	}
	if err == nil {
		stats.LastActivity = &last
	}
	return stats, nil
}

// Snapshot reads all report aggregates in one read-only database
// transaction so the report figures are mutually consistent.
func (r *Repository) Snapshot(ctx context.Context, since, asOf time.Time) (*ports.LedgerSnapshot, error) {
	dbTx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer dbTx.Rollback()

	snap := &ports.LedgerSnapshot{TakenAt: asOf}

	totals, err := periodTotals(ctx, dbTx, since)
	if err != nil {
		return nil, err
	}
	snap.Totals = *totals

	counts, err := statusCounts(ctx, dbTx, since)
	if err != nil {
		return nil, err
	}
	snap.Counts = *counts

	windows := []struct {
		period ports.Period
		dst    *ports.PeriodTotals
	}{
		{ports.PeriodToday, &snap.Today},
		{ports.PeriodWeek, &snap.Week},
		{ports.PeriodMonth, &snap.Month},
		{ports.PeriodAll, &snap.AllTime},
	}
	for _, w := range windows {
		totals, err := periodTotals(ctx, dbTx, w.period.Start(asOf))
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate %s window: %w", w.period, err)
		}
		*w.dst = *totals
	}

	active, err := findActiveOrders(ctx, dbTx, "")
	if err != nil {
		return nil, err
	}
	snap.Active = active

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}
	return snap, nil
}

// --- Shared aggregate queries ---

func periodTotals(ctx context.Context, q querier, since time.Time) (*ports.PeriodTotals, error) {
	query := `
	SELECT
		COALESCE(SUM(CASE WHEN order_side = 'BUY' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN order_side = 'SELL' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN order_side = 'BUY' THEN price * qty ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN order_side = 'SELL' THEN price * qty ELSE 0 END), 0),
		COALESCE(SUM(commission), 0),
		COUNT(DISTINCT symbol)
	FROM transactions`
	var args []interface{}
	if !since.IsZero() {
		query += " WHERE transact_time >= ?"
		args = append(args, since)
	}

	totals := &ports.PeriodTotals{}
	err := q.QueryRowContext(ctx, query, args...).Scan(
		&totals.Buys, &totals.Sells, &totals.Invested, &totals.Recovered,
		&totals.Fees, &totals.Symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate period totals: %w", err)
	}
	return totals, nil
}

func statusCounts(ctx context.Context, q querier, since time.Time) (*ports.StatusCounts, error) {
	query := `SELECT status, COUNT(*) FROM exit_orders`
	var args []interface{}
	if !since.IsZero() {
		query += " WHERE created_at >= ?"
		args = append(args, since)
	}
	query += " GROUP BY status"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	defer rows.Close()

	counts := &ports.StatusCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count row: %w", err)
		}
		switch domain.ExitOrderStatus(status) {
		case domain.ExitStatusActive:
			counts.Active = n
		case domain.ExitStatusProfitFilled:
			counts.ProfitFilled = n
		case domain.ExitStatusStopFilled:
			counts.StopFilled = n
		case domain.ExitStatusCancelled:
			counts.Cancelled = n
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status count rows: %w", err)
	}
	return counts, nil
}

func findActiveOrders(ctx context.Context, q querier, symbol string) ([]*domain.ExitOrder, error) {
	query := exitOrderColumns + ` FROM exit_orders WHERE status = ?`
	args := []interface{}{domain.ExitStatusActive}
	if symbol != "" {
		query += " AND symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY created_at DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active exit orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.ExitOrder, 0)
	for rows.Next() {
		order, err := scanExitOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exit order: %w", err)
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exit order rows: %w", err)
	}
	return orders, nil
}
