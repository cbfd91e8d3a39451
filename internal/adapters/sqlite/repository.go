package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ledger ports (ports.TransactionRepository,
// ports.ExitOrderRepository, ports.StatsRepository) using SQLite.
type Repository struct {
	db     *sql.DB
	dbPath string
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trading.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection. WAL keeps the dashboard and report readers
	// from blocking behind the single writer.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, dbPath: dbPath, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		order_id TEXT NOT NULL,
		trade_id INTEGER NOT NULL DEFAULT 0,
		transact_time TIMESTAMP NOT NULL,
		order_type TEXT NOT NULL,
		order_side TEXT NOT NULL,
		price REAL NOT NULL,
		qty REAL NOT NULL,
		commission REAL DEFAULT 0,
		commission_asset TEXT DEFAULT 'USDC',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(order_id, trade_id)
	);

	CREATE TABLE IF NOT EXISTS exit_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		order_list_id TEXT NOT NULL UNIQUE,
		profit_order_id TEXT,
		stop_order_id TEXT,
		buy_order_id TEXT,
		quantity REAL NOT NULL,
		kept_quantity REAL NOT NULL DEFAULT 0,
		avg_entry_price REAL NOT NULL,
		profit_target REAL,
		profit_price REAL NOT NULL,
		stop_loss_price REAL NOT NULL,
		stop_limit_price REAL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at TIMESTAMP NOT NULL,
		executed_at TIMESTAMP DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS exit_order_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_list_id TEXT NOT NULL UNIQUE,
		symbol TEXT NOT NULL,
		execution_type TEXT,
		execution_price REAL,
		execution_qty REAL,
		kept_quantity REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		executed_at TIMESTAMP NOT NULL
	);

	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_transactions_symbol_side_time ON transactions (symbol, order_side, transact_time);
	CREATE INDEX IF NOT EXISTS idx_transactions_side_time ON transactions (order_side, transact_time);
	CREATE INDEX IF NOT EXISTS idx_exit_orders_status ON exit_orders (status);
	CREATE INDEX IF NOT EXISTS idx_exit_orders_symbol ON exit_orders (symbol);
	CREATE INDEX IF NOT EXISTS idx_history_symbol_time ON exit_order_history (symbol, executed_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TransactionRepository Implementation ---

// RecordTransaction saves a transaction and returns its assigned ID.
// Re-recording the same (order_id, trade_id) pair is a no-op returning 0.
func (r *Repository) RecordTransaction(ctx context.Context, tx *domain.Transaction) (int64, error) {
	const query = `
	INSERT OR IGNORE INTO transactions (symbol, order_id, trade_id, transact_time, order_type,
	                                    order_side, price, qty, commission, commission_asset)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		tx.Symbol, tx.OrderID, tx.TradeID, tx.TransactTime, tx.OrderType,
		tx.Side, tx.Price, tx.Quantity, tx.Commission, tx.CommissionAsset)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction for symbol %s: %w", tx.Symbol, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for transaction %s: %w", tx.Symbol, err)
	}
	if rowsAffected == 0 {
		r.logger.Debug(ctx, "Transaction already recorded", map[string]interface{}{"orderID": tx.OrderID, "tradeID": tx.TradeID})
		return 0, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for transaction %s: %w", tx.Symbol, err)
	}
	tx.ID = id
	r.logger.Debug(ctx, "Transaction recorded", map[string]interface{}{"transactionID": id, "symbol": tx.Symbol, "side": tx.Side})
	return id, nil
}

// FindTransactions retrieves transactions matching the filter, newest first.
func (r *Repository) FindTransactions(ctx context.Context, filter ports.TransactionFilter) ([]*domain.Transaction, error) {
	query := `
	SELECT id, symbol, order_id, trade_id, transact_time, order_type, order_side,
	       price, qty, COALESCE(commission, 0), COALESCE(commission_asset, ''), created_at
	FROM transactions`

	var conds []string
	var args []interface{}
	if filter.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.Side != "" {
		conds = append(conds, "order_side = ?")
		args = append(args, filter.Side)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "transact_time >= ?")
		args = append(args, filter.Since)
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY transact_time DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction during FindTransactions: %w", err)
		}
		txs = append(txs, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return txs, nil
}

// CountTodayBuys counts BUY transactions recorded since local midnight.
// An empty symbol counts across all symbols.
func (r *Repository) CountTodayBuys(ctx context.Context, symbol string) (int, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE order_side = ? AND date(transact_time, 'localtime') = date('now', 'localtime')`
	args := []interface{}{domain.Buy}
	if symbol != "" {
		query += " AND symbol = ?"
		args = append(args, symbol)
	}
	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count today's buys for symbol %q: %w", symbol, err)
	}
	return count, nil
}

// LastBuyTime returns the most recent BUY transaction time for the symbol.
func (r *Repository) LastBuyTime(ctx context.Context, symbol string) (*time.Time, error) {
	const query = `SELECT transact_time FROM transactions WHERE symbol = ? AND order_side = ? ORDER BY transact_time DESC LIMIT 1`
	var ts time.Time
	err := r.db.QueryRowContext(ctx, query, symbol, domain.Buy).Scan(&ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Never bought, not an error
		}
		return nil, fmt.Errorf("failed to query last buy time for symbol %s: %w", symbol, err)
	}
	return &ts, nil
}

// LastPrice returns the most recent recorded trade price for the symbol.
func (r *Repository) LastPrice(ctx context.Context, symbol string) (*ports.PriceQuote, error) {
	const query = `SELECT price, transact_time FROM transactions WHERE symbol = ? ORDER BY transact_time DESC LIMIT 1`
	var price float64
	var ts time.Time
	err := r.db.QueryRowContext(ctx, query, symbol).Scan(&price, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No trades yet, not an error
		}
		return nil, fmt.Errorf("failed to query last price for symbol %s: %w", symbol, err)
	}
	return &ports.PriceQuote{Symbol: symbol, Price: price, At: ts}, nil
}

// --- ExitOrderRepository Implementation ---

// CreateExitOrder saves a new ACTIVE exit order and returns its ID.
func (r *Repository) CreateExitOrder(ctx context.Context, order *domain.ExitOrder) (int64, error) {
	const query = `
	INSERT INTO exit_orders (symbol, order_list_id, profit_order_id, stop_order_id, buy_order_id,
	                         quantity, kept_quantity, avg_entry_price, profit_target,
	                         profit_price, stop_loss_price, stop_limit_price, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	status := order.Status
	if status == "" {
		status = domain.ExitStatusActive
	}
	result, err := r.db.ExecContext(ctx, query,
		order.Symbol, order.OrderListID, order.ProfitOrderID, order.StopOrderID, order.BuyOrderID,
		order.Quantity, order.KeptQuantity, order.AvgEntryPrice, order.ProfitTarget,
		order.ProfitPrice, order.StopLossPrice, order.StopLimitPrice, status, order.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert exit order for symbol %s: %w", order.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for exit order %s: %w", order.Symbol, err)
	}
	order.ID = id
	order.Status = status
	r.logger.Debug(ctx, "Exit order created", map[string]interface{}{"exitOrderID": id, "symbol": order.Symbol, "orderListID": order.OrderListID})
	return id, nil
}

// FindActive retrieves all ACTIVE exit orders, newest first. An empty
// symbol matches all symbols.
func (r *Repository) FindActive(ctx context.Context, symbol string) ([]*domain.ExitOrder, error) {
	return findActiveOrders(ctx, r.db, symbol)
}

// FindByOrderListID retrieves an exit order by its exchange order-list id.
func (r *Repository) FindByOrderListID(ctx context.Context, orderListID string) (*domain.ExitOrder, error) {
	query := exitOrderColumns + ` FROM exit_orders WHERE order_list_id = ?`
	row := r.db.QueryRowContext(ctx, query, orderListID)
	order, err := scanExitOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query exit order %s: %w", orderListID, err)
	}
	return order, nil
}

// CountActiveBySymbol counts ACTIVE exit orders for a symbol.
func (r *Repository) CountActiveBySymbol(ctx context.Context, symbol string) (int, error) {
	const query = `SELECT COUNT(*) FROM exit_orders WHERE symbol = ? AND status = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, symbol, domain.ExitStatusActive).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active exit orders for symbol %s: %w", symbol, err)
	}
	return count, nil
}

// CompleteExitOrder atomically transitions an ACTIVE exit order to a
// terminal status. The status update, the history record and (for executed
// legs) the SELL transaction are committed in one database transaction, so
// a reader can never observe a terminal status without its history row.
func (r *Repository) CompleteExitOrder(ctx context.Context, orderListID string, status domain.ExitOrderStatus, exec ports.ExecutionSnapshot, sellTx *domain.Transaction) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %q is not terminal: %w", status, ports.ErrInvalidRequest)
	}
	executedAt := exec.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now()
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for exit order %s: %w", orderListID, err)
	}
	defer dbTx.Rollback()

	var symbol string
	var keptQty float64
	var current string
	err = dbTx.QueryRowContext(ctx,
		`SELECT symbol, kept_quantity, status FROM exit_orders WHERE order_list_id = ?`, orderListID).
		Scan(&symbol, &keptQty, &current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("exit order %s: %w", orderListID, ports.ErrNotFound)
		}
		return fmt.Errorf("failed to load exit order %s: %w", orderListID, err)
	}
	if domain.ExitOrderStatus(current).IsTerminal() {
		return fmt.Errorf("exit order %s already %s: %w", orderListID, current, ports.ErrDuplicateTerminalEvent)
	}

	result, err := dbTx.ExecContext(ctx,
		`UPDATE exit_orders SET status = ?, executed_at = ? WHERE order_list_id = ? AND status = ?`,
		status, executedAt, orderListID, domain.ExitStatusActive)
	if err != nil {
		return fmt.Errorf("failed to update exit order %s: %w", orderListID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for exit order %s: %w", orderListID, err)
	}
	if rowsAffected == 0 {
		// Lost a race with another terminal event between the read and the
		// guarded update.
		return fmt.Errorf("exit order %s: %w", orderListID, ports.ErrDuplicateTerminalEvent)
	}

	var execType interface{}
	if exec.Type != domain.ExecutionNone {
		execType = string(exec.Type)
	}
	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO exit_order_history (order_list_id, symbol, execution_type, execution_price,
		                                 execution_qty, kept_quantity, status, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		orderListID, symbol, execType, exec.Price, exec.Quantity, keptQty, status, executedAt)
	if err != nil {
		return fmt.Errorf("failed to insert history for exit order %s: %w", orderListID, err)
	}

	if sellTx != nil {
		_, err = dbTx.ExecContext(ctx,
			`INSERT OR IGNORE INTO transactions (symbol, order_id, trade_id, transact_time, order_type,
			                                     order_side, price, qty, commission, commission_asset)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sellTx.Symbol, sellTx.OrderID, sellTx.TradeID, sellTx.TransactTime, sellTx.OrderType,
			sellTx.Side, sellTx.Price, sellTx.Quantity, sellTx.Commission, sellTx.CommissionAsset)
		if err != nil {
			return fmt.Errorf("failed to insert sell transaction for exit order %s: %w", orderListID, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit terminal transition for exit order %s: %w", orderListID, err)
	}
	r.logger.Info(ctx, "Exit order completed", map[string]interface{}{"orderListID": orderListID, "symbol": symbol, "status": status})
	return nil
}

// FindHistory retrieves terminal history records matching the filter,
// newest first. Zero-valued filter fields are unbounded.
func (r *Repository) FindHistory(ctx context.Context, filter ports.HistoryFilter) ([]*domain.HistoryRecord, error) {
	query := `
	SELECT id, order_list_id, symbol, COALESCE(execution_type, ''), COALESCE(execution_price, 0),
	       COALESCE(execution_qty, 0), kept_quantity, status, executed_at
	FROM exit_order_history`

	var conds []string
	var args []interface{}
	if filter.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "executed_at >= ?")
		args = append(args, filter.Since)
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY executed_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exit order history: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.HistoryRecord, 0)
	for rows.Next() {
		rec, err := scanHistoryRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record during FindHistory: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return records, nil
}

// --- Helper Scan Functions ---

const exitOrderColumns = `
	SELECT id, symbol, order_list_id, COALESCE(profit_order_id, ''), COALESCE(stop_order_id, ''),
	       COALESCE(buy_order_id, ''), quantity, kept_quantity, avg_entry_price,
	       COALESCE(profit_target, 0), profit_price, stop_loss_price, COALESCE(stop_limit_price, 0),
	       status, created_at, executed_at`

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTransaction scans a row into a domain.Transaction struct.
func scanTransaction(s scanner) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var side, orderType string
	err := s.Scan(
		&t.ID, &t.Symbol, &t.OrderID, &t.TradeID, &t.TransactTime, &orderType, &side,
		&t.Price, &t.Quantity, &t.Commission, &t.CommissionAsset, &t.CreatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	t.Side = domain.OrderSide(side)
	t.OrderType = domain.OrderType(orderType)
	return t, nil
}

// scanExitOrder scans a row into a domain.ExitOrder struct.
func scanExitOrder(s scanner) (*domain.ExitOrder, error) {
	o := &domain.ExitOrder{}
	var executedAt sql.NullTime
	var status string
	err := s.Scan(
		&o.ID, &o.Symbol, &o.OrderListID, &o.ProfitOrderID, &o.StopOrderID,
		&o.BuyOrderID, &o.Quantity, &o.KeptQuantity, &o.AvgEntryPrice,
		&o.ProfitTarget, &o.ProfitPrice, &o.StopLossPrice, &o.StopLimitPrice,
		&status, &o.CreatedAt, &executedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if executedAt.Valid {
		t := executedAt.Time
		o.ExecutedAt = &t
	}
	o.Status = domain.ExitOrderStatus(status)
	return o, nil
}

// scanHistoryRecord scans a row into a domain.HistoryRecord struct.
func scanHistoryRecord(s scanner) (*domain.HistoryRecord, error) {
	h := &domain.HistoryRecord{}
	var execType, status string
	err := s.Scan(
		&h.ID, &h.OrderListID, &h.Symbol, &execType, &h.ExecutionPrice,
		&h.ExecutionQty, &h.KeptQuantity, &status, &h.ExecutedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	h.ExecutionType = domain.ExecutionType(execType)
	h.Status = domain.ExitOrderStatus(status)
	return h, nil
}
