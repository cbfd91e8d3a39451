package ports

import (
	"context"
	"time"

	"cryptoGuardBot/internal/domain"
)

// Period selects the reporting window for ledger aggregates.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod normalizes the aliases accepted by the read API. Unknown
// values fall back to month, matching the dashboard's historical behavior.
func ParsePeriod(s string) Period {
	switch s {
	case "today", "day":
		return PeriodToday
	case "week", "7d":
		return PeriodWeek
	case "month", "30d":
		return PeriodMonth
	case "all", "total", "":
		return PeriodAll
	}
	return PeriodMonth
}

// Start returns the inclusive lower bound of the period relative to asOf.
// The zero time means unbounded (PeriodAll).
func (p Period) Start(asOf time.Time) time.Time {
	switch p {
	case PeriodToday:
		y, m, d := asOf.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, asOf.Location())
	case PeriodWeek:
		return asOf.AddDate(0, 0, -7)
	case PeriodMonth:
		return asOf.AddDate(0, 0, -30)
	}
	return time.Time{}
}

// TransactionFilter narrows transaction listings for the read API.
type TransactionFilter struct {
	Symbol string           // Empty matches all symbols
	Side   domain.OrderSide // Empty matches both sides
	Since  time.Time        // Zero value means unbounded
	Limit  int              // Zero means no limit
}

// HistoryFilter narrows terminal history listings for the read API.
type HistoryFilter struct {
	Symbol string                 // Empty matches all symbols
	Status domain.ExitOrderStatus // Empty matches every terminal status
	Since  time.Time              // Zero value means unbounded
	Limit  int                    // Zero means no limit
}

// ExecutionSnapshot carries the leg execution details of a terminal event.
type ExecutionSnapshot struct {
	Type       domain.ExecutionType
	Price      float64
	Quantity   float64
	ExecutedAt time.Time
}

// PeriodTotals are the transaction aggregates backing a report section.
type PeriodTotals struct {
	Buys      int     // BUY transaction count
	Sells     int     // SELL transaction count
	Invested  float64 // Sum of BUY values
	Recovered float64 // Sum of SELL values
	Fees      float64 // Sum of commissions
	Symbols   int     // Distinct symbols traded
}

// GrossProfit returns recovered minus invested. Informational only; it is
// not a substitute for the holdings / guaranteed-profit classification.
func (t PeriodTotals) GrossProfit() float64 {
	return t.Recovered - t.Invested
}

// StatusCounts are the per-status exit order counts for a period.
type StatusCounts struct {
	Active       int
	ProfitFilled int
	StopFilled   int
	Cancelled    int
}

// QuickStats is the dashboard header summary.
type QuickStats struct {
	DailyBuys         int        // BUY transactions since local midnight
	ActiveExitOrders  int        // Exit orders currently ACTIVE
	TotalTransactions int        // All-time transaction count
	LastActivity      *time.Time // Most recent transaction time, nil when empty
}

// LedgerSnapshot bundles every ledger aggregate a report needs, read in a
// single transaction so the figures are mutually consistent.
type LedgerSnapshot struct {
	Totals  PeriodTotals        // Aggregates over the report window
	Counts  StatusCounts        // Exit order status counts over the report window
	Today   PeriodTotals        // Performance window aggregates
	Week    PeriodTotals        //
	Month   PeriodTotals        //
	AllTime PeriodTotals        //
	Active  []*domain.ExitOrder // Exit orders currently ACTIVE
	TakenAt time.Time           // When the snapshot was read
}

// TransactionRepository stores and retrieves exchange-level trade records.
type TransactionRepository interface {
	// RecordTransaction saves a transaction and returns its assigned ID.
	// Re-recording the same (order_id, trade_id) pair is a no-op.
	RecordTransaction(ctx context.Context, tx *domain.Transaction) (int64, error)
	// FindTransactions retrieves transactions matching the filter, newest first.
	FindTransactions(ctx context.Context, filter TransactionFilter) ([]*domain.Transaction, error)
	// CountTodayBuys counts BUY transactions recorded since local midnight
	// for a symbol; an empty symbol counts across all symbols.
	CountTodayBuys(ctx context.Context, symbol string) (int, error)
	// LastBuyTime returns the most recent BUY transaction time for the
	// symbol. Returns nil, nil when the symbol has never been bought.
	LastBuyTime(ctx context.Context, symbol string) (*time.Time, error)
	// LastPrice returns the most recent recorded trade price for the
	// symbol. Returns nil, nil when no transaction exists.
	LastPrice(ctx context.Context, symbol string) (*PriceQuote, error)
}

// ExitOrderRepository stores exit orders and their terminal history.
type ExitOrderRepository interface {
	// CreateExitOrder saves a new ACTIVE exit order and returns its ID.
	CreateExitOrder(ctx context.Context, order *domain.ExitOrder) (int64, error)
	// FindActive retrieves all ACTIVE exit orders, newest first. An empty
	// symbol matches all symbols.
	FindActive(ctx context.Context, symbol string) ([]*domain.ExitOrder, error)
	// FindByOrderListID retrieves an exit order by its exchange order-list
	// id. Returns nil, nil when not found.
	FindByOrderListID(ctx context.Context, orderListID string) (*domain.ExitOrder, error)
	// CompleteExitOrder atomically transitions an ACTIVE exit order to the
	// given terminal status, writing its history record and, when a leg
	// executed, the SELL transaction in one database transaction.
	// Returns ErrDuplicateTerminalEvent when the order is already terminal
	// and ErrNotFound when no such order exists.
	CompleteExitOrder(ctx context.Context, orderListID string, status domain.ExitOrderStatus, exec ExecutionSnapshot, sellTx *domain.Transaction) error
	// FindHistory retrieves terminal history records matching the filter,
	// newest first.
	FindHistory(ctx context.Context, filter HistoryFilter) ([]*domain.HistoryRecord, error)
	// CountActiveBySymbol counts ACTIVE exit orders for a symbol.
	CountActiveBySymbol(ctx context.Context, symbol string) (int, error)
}

// PurgeResult reports how many rows a retention pass removed.
type PurgeResult struct {
	Transactions int64
	ExitOrders   int64
	History      int64
}

// MaintenanceRepository prunes aged ledger rows. ACTIVE exit orders are
// never purged regardless of age.
type MaintenanceRepository interface {
	// PurgeOld deletes ledger rows older than the cutoff: transactions by
	// trade time, terminal exit orders and history records by execution time.
	PurgeOld(ctx context.Context, before time.Time) (*PurgeResult, error)
}

// StatsRepository serves the aggregate queries behind reports and the
// dashboard. Aggregates are recomputed from the ledger on every call; no
// running totals are kept in process memory.
type StatsRepository interface {
	// PeriodTotals computes transaction aggregates since the given time.
	// A zero time means all time.
	PeriodTotals(ctx context.Context, since time.Time) (*PeriodTotals, error)
	// StatusCounts counts exit orders per status created since the given
	// time. A zero time means all time.
	StatusCounts(ctx context.Context, since time.Time) (*StatusCounts, error)
	// QuickStats computes the dashboard header summary.
	QuickStats(ctx context.Context) (*QuickStats, error)
	// Snapshot reads all report aggregates in one database transaction.
	// The since time bounds the report window; performance windows are
	// always computed relative to asOf.
	Snapshot(ctx context.Context, since, asOf time.Time) (*LedgerSnapshot, error)
}
