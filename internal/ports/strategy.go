package ports

import (
	"context"

	"cryptoGuardBot/internal/domain"
)

// Strategy defines the interface for buy-signal generation. Exits are not
// part of the strategy: every buy is protected by a resting exit order the
// moment its fills are accounted for.
type Strategy interface {
	// RequiredDataPoints returns the minimum number of klines needed for
	// the signal calculations.
	RequiredDataPoints() int

	// ShouldBuy decides whether to buy the symbol now. hasActiveExit tells
	// the strategy whether protective exit orders already rest on the
	// symbol, which tightens the entry threshold. The returned reason is
	// logged and journaled.
	ShouldBuy(ctx context.Context, klines []*domain.Kline, currentPrice float64, hasActiveExit bool) (bool, string)
}
