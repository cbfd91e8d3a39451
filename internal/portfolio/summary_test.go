package portfolio

import (
	"context"
	"testing"
	"time"

	"cryptoGuardBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBalances struct {
	balances []ports.Balance
	err      error
}

func (m *mockBalances) GetAccountBalances(ctx context.Context) ([]ports.Balance, error) {
	return m.balances, m.err
}

func TestNewSummarizer(t *testing.T) {
	balances := &mockBalances{}
	prices := &mockPrices{}
	logger := &mockLogger{}

	_, err := NewSummarizer(SummaryConfig{Prices: prices, Logger: logger})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
	_, err = NewSummarizer(SummaryConfig{Balances: balances, Logger: logger})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	s, err := NewSummarizer(SummaryConfig{Balances: balances, Prices: prices, Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, "USDC", s.quoteAsset)
	assert.Equal(t, 1.0, s.dustValue)
}

func TestSummarizer_Summarize(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	// SOL has 0.6 locked in a resting OCO; DOGE is dust (2 x 0.1 = 0.2);
	// XRP's price lookup fails; BTC has a zero balance.
	balances := &mockBalances{balances: []ports.Balance{
		{Asset: "USDC", Free: 250.0, Locked: 0},
		{Asset: "SOL", Free: 0.5, Locked: 0.6},
		{Asset: "ADA", Free: 100.0},
		{Asset: "DOGE", Free: 2.0},
		{Asset: "XRP", Free: 10.0},
		{Asset: "BTC", Free: 0.0},
	}}
	prices := &mockPrices{
		quotes: map[string]*ports.PriceQuote{
			"SOLUSDC":  {Symbol: "SOLUSDC", Price: 150.0, At: now},
			"ADAUSDC":  {Symbol: "ADAUSDC", Price: 0.45, At: now},
			"DOGEUSDC": {Symbol: "DOGEUSDC", Price: 0.1, At: now},
		},
		errs: map[string]error{"XRPUSDC": ports.ErrExchangeUnavailable},
	}
	logger := &mockLogger{}
	s, err := NewSummarizer(SummaryConfig{Balances: balances, Prices: prices, Logger: logger})
	require.NoError(t, err)

	summary, err := s.Summarize(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ActiveCryptos)
	require.Len(t, summary.Cryptos, 2)

	sol := summary.Cryptos[0]
	assert.Equal(t, "SOL", sol.Asset)
	assert.Equal(t, "SOLUSDC", sol.Symbol)
	assert.InDelta(t, 1.1, sol.Amount, 1e-9) // Free plus locked
	assert.InDelta(t, 165.0, sol.Value, 1e-9)

	ada := summary.Cryptos[1]
	assert.Equal(t, "ADA", ada.Asset)
	assert.InDelta(t, 45.0, ada.Value, 1e-9)

	assert.InDelta(t, 250.0, summary.FreeQuote, 1e-9)
	assert.InDelta(t, 250.0+165.0+45.0, summary.TotalValue, 1e-9)
	assert.False(t, summary.LastUpdate.IsZero())
	assert.NotEmpty(t, logger.warnMsgs) // XRP skip was logged
}

func TestSummarizer_SummarizeBalanceError(t *testing.T) {
	s, err := NewSummarizer(SummaryConfig{
		Balances: &mockBalances{err: ports.ErrExchangeUnavailable},
		Prices:   &mockPrices{},
		Logger:   &mockLogger{},
	})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background())
	assert.ErrorIs(t, err, ports.ErrExchangeUnavailable)
}
