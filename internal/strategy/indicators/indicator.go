package indicators

import (
	"context"

	"cryptoGuardBot/internal/domain"
)

// Indicator represents a technical indicator calculated from kline data.
type Indicator interface {
	// Calculate computes the indicator value for the given klines.
	Calculate(ctx context.Context, klines []*domain.Kline) (float64, error)

	// RequiredDataPoints returns the minimum number of klines needed for
	// the calculation.
	RequiredDataPoints() int

	// Name returns the name of the indicator.
	Name() string
}

// IndicatorConfig holds common configuration for indicators.
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators.
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of klines needed for the
// calculation. Indicators that look further back override this.
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}
