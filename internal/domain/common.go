package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType represents the exchange order type used for a transaction.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeOCO    OrderType = "OCO"
)

// ExitOrderStatus represents the lifecycle state of a protective exit order.
type ExitOrderStatus string

const (
	ExitStatusActive       ExitOrderStatus = "ACTIVE"
	ExitStatusProfitFilled ExitOrderStatus = "PROFIT_FILLED"
	ExitStatusStopFilled   ExitOrderStatus = "STOP_FILLED"
	ExitStatusCancelled    ExitOrderStatus = "CANCELLED"
)

// IsTerminal reports whether the status is an end state. Terminal exit
// orders never transition again.
func (s ExitOrderStatus) IsTerminal() bool {
	switch s {
	case ExitStatusProfitFilled, ExitStatusStopFilled, ExitStatusCancelled:
		return true
	}
	return false
}

// ExecutionType indicates which protective leg of an exit order executed.
type ExecutionType string

const (
	ExecutionProfit   ExecutionType = "PROFIT"
	ExecutionStopLoss ExecutionType = "STOP_LOSS"
	// ExecutionNone is recorded for exit orders that terminated without a
	// fill (external cancellation).
	ExecutionNone ExecutionType = ""
)
