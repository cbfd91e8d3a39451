package domain

import "time"

// Position is the aggregate of all fills belonging to one logical buy. It
// is derived by the fill aggregator and never persisted as its own row; the
// underlying fills land in the ledger as BUY transactions.
type Position struct {
	Symbol        string    // Trading symbol (e.g., "BTCUSDC")
	OrderID       string    // Parent buy order the fills belong to
	TotalQuantity float64   // Sum of all fill quantities
	AvgPrice      float64   // Volume-weighted average fill price
	Commission    float64   // Sum of all fill commissions
	FirstFillAt   time.Time // Timestamp of the earliest fill
	LastFillAt    time.Time // Timestamp of the latest fill
	FillCount     int       // Number of fills folded into the aggregate
}

// Invested returns the quote amount spent on the position.
func (p *Position) Invested() float64 {
	return p.AvgPrice * p.TotalQuantity
}
