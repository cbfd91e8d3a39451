// Package strategy decides when to buy. Selling is never decided here:
// every buy is protected by a resting exit order as soon as its fills are
// accounted for, so the only question is whether the current dip is worth
// entering.
package strategy

import (
	"context"
	"fmt"

	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"
	"cryptoGuardBot/internal/strategy/indicators"
)

// Config holds parameters for the RSI dip signal.
type Config struct {
	RSIPeriod  int     // e.g., 14
	EntryRSI   float64 // Buy below this when the symbol carries no active exit orders, e.g., 35.0
	ReentryRSI float64 // Stricter bound once exit orders already rest on the symbol, e.g., 30.0
}

// Strategy implements the RSI dip entry signal.
type Strategy struct {
	cfg    Config
	rsi    indicators.Indicator
	logger ports.Logger
}

// New creates a new Strategy instance.
func New(cfg Config, logger ports.Logger) (*Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.RSIPeriod <= 0 {
		return nil, fmt.Errorf("RSI period must be positive")
	}
	if cfg.EntryRSI <= 0 || cfg.EntryRSI >= 100 {
		return nil, fmt.Errorf("entry RSI threshold must be between 0 and 100")
	}
	if cfg.ReentryRSI <= 0 || cfg.ReentryRSI > cfg.EntryRSI {
		return nil, fmt.Errorf("re-entry RSI threshold must be positive and not above the entry threshold")
	}
	return &Strategy{
		cfg:    cfg,
		rsi:    indicators.NewRSI(indicators.IndicatorConfig{Period: cfg.RSIPeriod}),
		logger: logger,
	}, nil
}

// RequiredDataPoints returns the minimum number of klines needed for the
// signal calculations.
func (s *Strategy) RequiredDataPoints() int {
	return s.rsi.RequiredDataPoints()
}

// ShouldBuy decides whether to buy the symbol now. A symbol that already
// carries active exit orders needs a deeper dip before adding to it.
func (s *Strategy) ShouldBuy(ctx context.Context, klines []*domain.Kline, currentPrice float64, hasActiveExit bool) (bool, string) {
	required := s.RequiredDataPoints()
	if len(klines) < required {
		s.logger.Debug(ctx, "Not enough kline data for signal evaluation",
			map[string]interface{}{"available": len(klines), "required": required})
		return false, "insufficient kline data"
	}

	rsi, err := s.rsi.Calculate(ctx, klines)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to calculate RSI")
		return false, "RSI calculation failed"
	}

	threshold := s.cfg.EntryRSI
	if hasActiveExit {
		threshold = s.cfg.ReentryRSI
	}

	if rsi < threshold {
		s.logger.Info(ctx, "Dip entry conditions met", map[string]interface{}{
			"currentPrice":  currentPrice,
			"rsi":           rsi,
			"threshold":     threshold,
			"hasActiveExit": hasActiveExit,
		})
		return true, fmt.Sprintf("RSI %.2f below %.2f", rsi, threshold)
	}

	s.logger.Debug(ctx, "Dip entry conditions not met", map[string]interface{}{
		"currentPrice":  currentPrice,
		"rsi":           rsi,
		"threshold":     threshold,
		"hasActiveExit": hasActiveExit,
	})
	return false, fmt.Sprintf("RSI %.2f at or above %.2f", rsi, threshold)
}
