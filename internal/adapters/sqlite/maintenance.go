package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"
)

// OrphanReport lists ledger rows whose cross-references no longer resolve.
type OrphanReport struct {
	BuysWithoutExit      []string // BUY order_ids with no exit order protecting them
	ExitOrdersWithoutBuy []string // order_list_ids whose buy order has no transaction
	HistoryWithoutOrder  []string // history order_list_ids with no exit order row
}

// Backup writes a consistent copy of the database next to the live file
// (or into destDir when given) and returns the backup path. Uses VACUUM
// INTO so the copy is compacted and safe to take while the bot runs.
func (r *Repository) Backup(ctx context.Context, destDir string) (string, error) {
	if destDir == "" {
		destDir = filepath.Dir(r.dbPath)
	}
	name := fmt.Sprintf("trading_backup_%s.db", time.Now().Format("20060102_150405"))
	dest := filepath.Join(destDir, name)

	if _, err := r.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return "", fmt.Errorf("failed to back up database to '%s': %w", dest, err)
	}
	r.logger.Info(ctx, "Database backup written", map[string]interface{}{"path": dest})
	return dest, nil
}

// PurgeOld deletes ledger rows older than the cutoff: transactions by
// trade time, terminal exit orders and history records by execution time.
// ACTIVE exit orders are never purged regardless of age.
func (r *Repository) PurgeOld(ctx context.Context, before time.Time) (*ports.PurgeResult, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin purge transaction: %w", err)
	}
	defer dbTx.Rollback()

	result := &ports.PurgeResult{}

	res, err := dbTx.ExecContext(ctx, `DELETE FROM transactions WHERE transact_time < ?`, before)
	if err != nil {
		return nil, fmt.Errorf("failed to purge transactions: %w", err)
	}
	result.Transactions, _ = res.RowsAffected()

	res, err = dbTx.ExecContext(ctx,
		`DELETE FROM exit_orders WHERE status != ? AND executed_at IS NOT NULL AND executed_at < ?`,
		domain.ExitStatusActive, before)
	if err != nil {
		return nil, fmt.Errorf("failed to purge exit orders: %w", err)
	}
	result.ExitOrders, _ = res.RowsAffected()

	res, err = dbTx.ExecContext(ctx, `DELETE FROM exit_order_history WHERE executed_at < ?`, before)
	if err != nil {
		return nil, fmt.Errorf("failed to purge exit order history: %w", err)
	}
	result.History, _ = res.RowsAffected()

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purge transaction: %w", err)
	}
	r.logger.Info(ctx, "Old ledger rows purged", map[string]interface{}{
		"before":       before.Format(time.RFC3339),
		"transactions": result.Transactions,
		"exitOrders":   result.ExitOrders,
		"history":      result.History,
	})
	return result, nil
}

// FindOrphans scans for rows whose cross-references are broken. Orphans
// are reported, never deleted automatically.
func (r *Repository) FindOrphans(ctx context.Context) (*OrphanReport, error) {
	report := &OrphanReport{}
	var err error

	// A buy with no exit order row means the position sits unprotected.
	report.BuysWithoutExit, err = r.scanIDs(ctx, `
	SELECT DISTINCT t.order_id FROM transactions t
	LEFT JOIN exit_orders e ON e.buy_order_id = t.order_id
	WHERE t.order_side = ? AND e.id IS NULL`, string(domain.Buy))
	if err != nil {
		return nil, fmt.Errorf("failed to query buys without exit order: %w", err)
	}

	report.ExitOrdersWithoutBuy, err = r.scanIDs(ctx, `
	SELECT e.order_list_id FROM exit_orders e
	LEFT JOIN transactions t ON t.order_id = e.buy_order_id
	WHERE e.buy_order_id != '' AND e.buy_order_id IS NOT NULL AND t.id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exit orders without buy transaction: %w", err)
	}

	report.HistoryWithoutOrder, err = r.scanIDs(ctx, `
	SELECT h.order_list_id FROM exit_order_history h
	LEFT JOIN exit_orders e ON e.order_list_id = h.order_list_id
	WHERE e.id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history without exit order: %w", err)
	}
	return report, nil
}

func (r *Repository) scanIDs(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
