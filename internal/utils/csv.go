package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"cryptoGuardBot/internal/domain"
)

// WriteTransactionsToCSV exports ledger transactions, one row per fill.
func WriteTransactionsToCSV(txs []*domain.Transaction, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"symbol", "order_id", "trade_id", "side", "order_type", "price", "quantity", "value", "commission", "commission_asset", "transact_time"})

	for _, t := range txs {
		writer.Write([]string{
			t.Symbol,
			t.OrderID,
			strconv.FormatInt(t.TradeID, 10),
			string(t.Side),
			string(t.OrderType),
			strconv.FormatFloat(t.Price, 'f', -1, 64),
			strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			strconv.FormatFloat(t.Value(), 'f', -1, 64),
			strconv.FormatFloat(t.Commission, 'f', -1, 64),
			t.CommissionAsset,
			t.TransactTime.Format(time.RFC3339),
		})
	}
	return writer.Error()
}

// WriteHistoryToCSV exports terminal exit order outcomes.
func WriteHistoryToCSV(records []*domain.HistoryRecord, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"order_list_id", "symbol", "status", "execution_type", "execution_price", "execution_qty", "kept_quantity", "executed_at"})

	for _, h := range records {
		writer.Write([]string{
			h.OrderListID,
			h.Symbol,
			string(h.Status),
			string(h.ExecutionType),
			strconv.FormatFloat(h.ExecutionPrice, 'f', -1, 64),
			strconv.FormatFloat(h.ExecutionQty, 'f', -1, 64),
			strconv.FormatFloat(h.KeptQuantity, 'f', -1, 64),
			h.ExecutedAt.Format(time.RFC3339),
		})
	}
	return writer.Error()
}
