package domain

import "time"

// ExitOrder is the resting take-profit / stop-loss order protecting one
// position. Exactly one row exists per placed OCO; the row is mutated once
// (the terminal status transition) and never deleted outside retention
// cleanup.
type ExitOrder struct {
	ID             int64           // Ledger row identifier
	Symbol         string          // Trading symbol
	OrderListID    string          // Exchange OCO order-list identifier (unique)
	ProfitOrderID  string          // Take-profit leg order id
	StopOrderID    string          // Stop-loss leg order id (empty for LIMIT fallback)
	BuyOrderID     string          // Parent buy order (weak back-reference)
	Quantity       float64         // Total bought quantity the order accounts for
	KeptQuantity   float64         // Portion deliberately left outside the protective leg
	AvgEntryPrice  float64         // Volume-weighted entry price of the position
	ProfitTarget   float64         // Profit target in percent
	ProfitPrice    float64         // avg_entry_price * (1 + profit_target/100)
	StopLossPrice  float64         // avg_entry_price * (1 + stop_loss_pct/100), stop pct negative
	StopLimitPrice float64         // Stop leg limit price (stop price minus buffer)
	Status         ExitOrderStatus // ACTIVE until a terminal transition
	CreatedAt      time.Time       // When the exit order was placed
	ExecutedAt     *time.Time      // When the order reached a terminal state (nil while ACTIVE)
}

// ProtectedQuantity returns the quantity covered by the protective leg.
func (o *ExitOrder) ProtectedQuantity() float64 {
	return o.Quantity - o.KeptQuantity
}

// IsActive reports whether the order is still waiting for one of its legs.
func (o *ExitOrder) IsActive() bool {
	return o.Status == ExitStatusActive
}

// GuaranteedProfit returns the quote profit locked in by the resting profit
// leg. It requires no price movement, only the leg filling.
func (o *ExitOrder) GuaranteedProfit() float64 {
	return o.ProtectedQuantity() * o.AvgEntryPrice * (o.ProfitTarget / 100)
}
