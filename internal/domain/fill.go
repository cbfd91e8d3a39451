package domain

import "time"

// Fill represents one partial execution of a buy order as reported by the
// exchange. Fills are immutable once recorded.
type Fill struct {
	OrderID         string    // Exchange order the fill belongs to
	TradeID         int64     // Exchange trade identifier (unique per fill)
	Symbol          string    // Trading symbol (e.g., "BTCUSDC")
	Price           float64   // Execution price of this fill
	Quantity        float64   // Base asset quantity of this fill
	Commission      float64   // Fee charged for this fill
	CommissionAsset string    // Asset the fee was charged in
	ExecutedAt      time.Time // When the exchange executed the fill
}

// Value returns the quote value of the fill (price times quantity).
func (f *Fill) Value() float64 {
	return f.Price * f.Quantity
}
