package domain

import "time"

// Transaction is one exchange-level trade record surfaced to reporting and
// the dashboard. BUY rows originate from fills of a buy order; SELL rows
// from the executed leg of an exit order.
type Transaction struct {
	ID              int64     // Ledger row identifier
	Symbol          string    // Trading symbol
	OrderID         string    // Exchange order identifier
	TradeID         int64     // Exchange trade identifier (0 when the venue reports none)
	Side            OrderSide // BUY or SELL
	OrderType       OrderType // MARKET, LIMIT or OCO
	Price           float64   // Execution price
	Quantity        float64   // Executed base quantity
	Commission      float64   // Fee charged
	CommissionAsset string    // Asset the fee was charged in
	TransactTime    time.Time // Exchange-side execution time
	CreatedAt       time.Time // When the row was recorded
}

// Value returns the quote value of the transaction (price times quantity).
func (t *Transaction) Value() float64 {
	return t.Price * t.Quantity
}
