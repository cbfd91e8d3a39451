// Package portfolio classifies open exposure and summarizes account value.
//
// Every ACTIVE exit order lands in exactly one bucket: orders with a kept
// quantity are holdings (unrealized, valued at market), fully protected
// orders are guaranteed profit (locked in by the resting take-profit leg,
// no further price movement required). The protected portion of a holdings
// order still contributes to the guaranteed profit total; the two figures
// are never conflated.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"
)

// PriceSource provides live market prices, typically the exchange client.
type PriceSource interface {
	GetLatestPrice(ctx context.Context, symbol string) (*ports.PriceQuote, error)
}

// LedgerPrices provides the last recorded trade price, used as the
// fallback when the live source is unavailable.
type LedgerPrices interface {
	LastPrice(ctx context.Context, symbol string) (*ports.PriceQuote, error)
}

// Holding is an exit order with a kept (unprotected) portion.
type Holding struct {
	Symbol           string
	OrderListID      string
	KeptQuantity     float64
	MarketPrice      float64   // Price used for valuation, 0 when unavailable
	PriceAt          time.Time // Observation time of the price used
	PriceStale       bool      // Price older than the staleness threshold
	PriceUnavailable bool      // No price from either source
	Value            float64   // KeptQuantity x MarketPrice
	GuaranteedProfit float64   // Locked profit of the order's protected portion
}

// GuaranteedEntry is a fully protected exit order.
type GuaranteedEntry struct {
	Symbol           string
	OrderListID      string
	ProtectedQty     float64
	AvgEntryPrice    float64
	ProfitTarget     float64
	GuaranteedProfit float64
}

// Classification is the holdings / guaranteed-profit split over the
// ACTIVE exit orders at one reporting instant.
type Classification struct {
	Holdings         []Holding
	Guaranteed       []GuaranteedEntry
	HoldingsValue    float64 // Sum of holdings market values
	GuaranteedProfit float64 // Sum over all orders' protected portions
	StalePrices      bool    // Any holding valued on a stale or missing price
	AsOf             time.Time
}

// Config holds dependencies and parameters for the classifier.
type Config struct {
	Prices PriceSource
	Ledger LedgerPrices
	Logger ports.Logger
	// StaleAfter is the price age beyond which a valuation is flagged
	// stale. Defaults to 5 minutes when zero.
	StaleAfter time.Duration
}

// Classifier splits ACTIVE exit orders into holdings and guaranteed profit.
type Classifier struct {
	prices     PriceSource
	ledger     LedgerPrices
	logger     ports.Logger
	staleAfter time.Duration
	now        func() time.Time
}

// New creates a new classifier.
func New(cfg Config) (*Classifier, error) {
	if cfg.Prices == nil {
		return nil, fmt.Errorf("price source is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &Classifier{
		prices:     cfg.Prices,
		ledger:     cfg.Ledger,
		logger:     cfg.Logger,
		staleAfter: staleAfter,
		now:        time.Now,
	}, nil
}

// Classify buckets the given ACTIVE exit orders. Orders with a kept
// quantity become holdings valued at the latest market price; fully
// protected orders become guaranteed entries. Valuation never fails the
// classification: a missing price yields a zero-valued, flagged holding.
func (c *Classifier) Classify(ctx context.Context, orders []*domain.ExitOrder) *Classification {
	result := &Classification{
		Holdings:   make([]Holding, 0),
		Guaranteed: make([]GuaranteedEntry, 0),
		AsOf:       c.now(),
	}
	quotes := make(map[string]*ports.PriceQuote)

	for _, order := range orders {
		if !order.IsActive() {
			continue
		}
		locked := order.GuaranteedProfit()
		result.GuaranteedProfit += locked

		if order.KeptQuantity > 0 {
			h := Holding{
				Symbol:           order.Symbol,
				OrderListID:      order.OrderListID,
				KeptQuantity:     order.KeptQuantity,
				GuaranteedProfit: locked,
			}
			quote := c.quoteFor(ctx, order.Symbol, quotes)
			if quote == nil {
				h.PriceUnavailable = true
				result.StalePrices = true
			} else {
				h.MarketPrice = quote.Price
				h.PriceAt = quote.At
				h.Value = order.KeptQuantity * quote.Price
				h.PriceStale = result.AsOf.Sub(quote.At) > c.staleAfter
				if h.PriceStale {
					result.StalePrices = true
				}
				result.HoldingsValue += h.Value
			}
			result.Holdings = append(result.Holdings, h)
			continue
		}

		result.Guaranteed = append(result.Guaranteed, GuaranteedEntry{
			Symbol:           order.Symbol,
			OrderListID:      order.OrderListID,
			ProtectedQty:     order.ProtectedQuantity(),
			AvgEntryPrice:    order.AvgEntryPrice,
			ProfitTarget:     order.ProfitTarget,
			GuaranteedProfit: locked,
		})
	}
	return result
}

// quoteFor resolves a price for the symbol, memoized per classification
// pass. Live source first, ledger fallback second, nil when both fail.
func (c *Classifier) quoteFor(ctx context.Context, symbol string, cache map[string]*ports.PriceQuote) *ports.PriceQuote {
	if quote, ok := cache[symbol]; ok {
		return quote
	}

	quote, err := c.prices.GetLatestPrice(ctx, symbol)
	if err != nil || quote == nil {
		if err != nil {
			c.logger.Warn(ctx, "Live price unavailable, trying ledger fallback", map[string]interface{}{
				"symbol": symbol, "error": err.Error()})
		}
		if c.ledger != nil {
			ledgerQuote, ledgerErr := c.ledger.LastPrice(ctx, symbol)
			if ledgerErr != nil {
				c.logger.Warn(ctx, "Ledger price lookup failed", map[string]interface{}{
					"symbol": symbol, "error": ledgerErr.Error()})
			} else {
				quote = ledgerQuote
			}
		}
	}
	cache[symbol] = quote
	return quote
}
