package ports

import (
	"context"
	"time"

	"cryptoGuardBot/internal/domain"
)

// OrderResult represents the essential details returned after placing or
// querying a single order.
type OrderResult struct {
	OrderID       int64         // Exchange's order ID
	Symbol        string        // Symbol for the order
	ClientOrderID string        // User-defined order ID
	Price         float64       // Price of the order (0 for market orders until filled)
	OrigQuantity  float64       // Original quantity requested
	ExecutedQty   float64       // Quantity filled so far
	CumQuoteQty   float64       // Cumulative quote quantity spent/received
	Status        string        // Order status (e.g., NEW, FILLED, CANCELED)
	Type          string        // Order type (e.g., MARKET, LIMIT, STOP_LOSS_LIMIT)
	Side          string        // Order side (BUY, SELL)
	TransactTime  time.Time     // Exchange-side transaction time
	Fills         []domain.Fill // Fills returned inline (FULL response type only)
}

// ExitOrderResult represents a placed OCO order list with its two legs.
type ExitOrderResult struct {
	OrderListID   int64     // Exchange order-list identifier
	Symbol        string    // Symbol for the order list
	ProfitOrderID int64     // Take-profit (limit maker) leg
	StopOrderID   int64     // Stop-loss limit leg
	TransactTime  time.Time // Exchange-side transaction time
}

// PriceQuote is a point-in-time price observation. Consumers judge
// staleness on At, not on the moment the quote was read.
type PriceQuote struct {
	Symbol string
	Price  float64
	At     time.Time
}

// Balance is one asset balance on the spot account.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// SymbolRules carries the exchange trading filters needed to format order
// parameters for a symbol.
type SymbolRules struct {
	Symbol   string
	StepSize string // LOT_SIZE step the quantity must be a multiple of
	MinQty   string // LOT_SIZE minimum quantity
	TickSize string // PRICE_FILTER tick the price must be a multiple of
}

// ExchangeClient defines the interface for interacting with a spot
// cryptocurrency exchange. This abstraction decouples the accounting core
// from the concrete exchange implementation.
type ExchangeClient interface {
	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// SetServerTime synchronizes the client's time with the server's time.
	SetServerTime(ctx context.Context) error

	// GetLatestPrice retrieves the last ticker price for a given symbol.
	GetLatestPrice(ctx context.Context, symbol string) (*PriceQuote, error)

	// GetAccountBalances retrieves all non-zero spot balances.
	GetAccountBalances(ctx context.Context) ([]Balance, error)

	// GetSymbolRules retrieves the trading filters for a symbol. Results
	// are cached in-process with a short TTL.
	GetSymbolRules(ctx context.Context, symbol string) (*SymbolRules, error)

	// PlaceMarketBuy places a market buy spending the given quote amount.
	// The response carries any fills the exchange returned inline.
	PlaceMarketBuy(ctx context.Context, symbol string, quoteAmount string) (*OrderResult, error)

	// GetOrderFills retrieves every fill recorded for the given order.
	// Fails with ErrOrderNotFound when the exchange does not know the order
	// and ErrExchangeUnavailable on transport problems.
	GetOrderFills(ctx context.Context, symbol string, orderID int64) ([]domain.Fill, error)

	// PlaceOCOSell places a take-profit / stop-loss OCO sell pair.
	PlaceOCOSell(ctx context.Context, symbol, quantity, limitPrice, stopPrice, stopLimitPrice string) (*ExitOrderResult, error)

	// PlaceLimitSell places a plain limit sell. Used as the fallback when
	// OCO placement is rejected.
	PlaceLimitSell(ctx context.Context, symbol, quantity, price string) (*OrderResult, error)

	// GetOrderStatus retrieves the current state of a single order leg.
	GetOrderStatus(ctx context.Context, symbol string, orderID int64) (*OrderResult, error)

	// CancelOCO cancels an entire OCO order list.
	CancelOCO(ctx context.Context, symbol string, orderListID int64) error

	// GetKlines retrieves recent klines/candlestick data for the symbol.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)
}
