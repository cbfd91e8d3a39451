package portfolio

import (
	"context"
	"fmt"
	"time"

	"cryptoGuardBot/internal/ports"
)

// BalanceSource provides spot account balances.
type BalanceSource interface {
	GetAccountBalances(ctx context.Context) ([]ports.Balance, error)
}

// AssetHolding is one crypto asset position on the account.
type AssetHolding struct {
	Asset  string  `json:"asset"`
	Symbol string  `json:"symbol"`
	Amount float64 `json:"amount"`
	Price  float64 `json:"price"`
	Value  float64 `json:"value"`
}

// Summary is the account-level portfolio view. Field names are stable;
// the dashboard renders them positionally.
type Summary struct {
	ActiveCryptos int            `json:"active_cryptos"`
	Cryptos       []AssetHolding `json:"cryptos"`
	TotalValue    float64        `json:"total_value"`
	FreeQuote     float64        `json:"free_usdc"`
	LastUpdate    time.Time      `json:"last_update"`
}

// SummaryConfig holds dependencies and parameters for the summarizer.
type SummaryConfig struct {
	Balances BalanceSource
	Prices   PriceSource
	Logger   ports.Logger
	// QuoteAsset is the stable asset trades settle in. Defaults to USDC.
	QuoteAsset string
	// DustValue is the minimum position value (in quote units) counted as
	// an active crypto. Defaults to 1.0.
	DustValue float64
}

// Summarizer values the account's crypto balances in the quote asset.
type Summarizer struct {
	balances   BalanceSource
	prices     PriceSource
	logger     ports.Logger
	quoteAsset string
	dustValue  float64
	now        func() time.Time
}

// NewSummarizer creates a new portfolio summarizer.
func NewSummarizer(cfg SummaryConfig) (*Summarizer, error) {
	if cfg.Balances == nil {
		return nil, fmt.Errorf("balance source is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Prices == nil {
		return nil, fmt.Errorf("price source is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	quoteAsset := cfg.QuoteAsset
	if quoteAsset == "" {
		quoteAsset = "USDC"
	}
	dust := cfg.DustValue
	if dust <= 0 {
		dust = 1.0
	}
	return &Summarizer{
		balances:   cfg.Balances,
		prices:     cfg.Prices,
		logger:     cfg.Logger,
		quoteAsset: quoteAsset,
		dustValue:  dust,
		now:        time.Now,
	}, nil
}

// Summarize values every non-dust balance at the latest market price.
// Assets whose price lookup fails are skipped with a warning rather than
// failing the whole summary.
func (s *Summarizer) Summarize(ctx context.Context) (*Summary, error) {
	balances, err := s.balances.GetAccountBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching account balances: %w", err)
	}

	summary := &Summary{
		Cryptos:    make([]AssetHolding, 0, len(balances)),
		LastUpdate: s.now(),
	}
	for _, b := range balances {
		amount := b.Free + b.Locked
		if amount <= 0 {
			continue
		}
		if b.Asset == s.quoteAsset {
			summary.FreeQuote = b.Free
			summary.TotalValue += b.Free
			continue
		}

		symbol := b.Asset + s.quoteAsset
		quote, err := s.prices.GetLatestPrice(ctx, symbol)
		if err != nil || quote == nil {
			s.logger.Warn(ctx, "Skipping asset without a price", map[string]interface{}{
				"asset": b.Asset, "symbol": symbol})
			continue
		}

		value := amount * quote.Price
		if value < s.dustValue {
			continue
		}
		summary.Cryptos = append(summary.Cryptos, AssetHolding{
			Asset:  b.Asset,
			Symbol: symbol,
			Amount: amount,
			Price:  quote.Price,
			Value:  value,
		})
		summary.TotalValue += value
	}
	summary.ActiveCryptos = len(summary.Cryptos)
	return summary, nil
}
