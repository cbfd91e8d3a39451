package domain

import "time"

// HistoryRecord is the immutable terminal snapshot written when an exit
// order leaves ACTIVE. Records are append-only; at most one exists per
// order list.
type HistoryRecord struct {
	ID             int64           // Ledger row identifier
	OrderListID    string          // Exit order back-reference (lookup only, not ownership)
	Symbol         string          // Trading symbol
	ExecutionType  ExecutionType   // PROFIT or STOP_LOSS; empty when no leg filled
	ExecutionPrice float64         // Price the leg executed at (0 when cancelled)
	ExecutionQty   float64         // Quantity the leg executed (0 when cancelled)
	KeptQuantity   float64         // Kept portion carried over from the exit order
	Status         ExitOrderStatus // Terminal status the order reached
	ExecutedAt     time.Time       // When the terminal event happened
}
