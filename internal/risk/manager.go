// Package risk guards buy execution. The strategy decides whether a dip
// is worth entering; this package decides whether the account can afford
// the entry and how much quote currency to spend on it.
package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"
)

// RiskConfig holds the buy guard parameters.
type RiskConfig struct {
	MaxTradeAmount     float64       // Hard cap per buy in quote units, e.g., 165
	FreeBalancePct     float64       // Fraction of the free balance one buy may take, e.g., 0.25
	ReserveBalance     float64       // Quote amount never spent, e.g., 21
	MinNotional        float64       // Exchange minimum order value, e.g., 10
	Cooldown           time.Duration // Minimum spacing between buys of the same symbol
	MaxDailyBuys       int           // Buy limit across all symbols, 0 disables
	MaxActivePerSymbol int           // ACTIVE exit orders allowed per symbol, 0 disables
}

// Ledger is the subset of repository reads the guards consult.
type Ledger interface {
	CountTodayBuys(ctx context.Context, symbol string) (int, error)
	LastBuyTime(ctx context.Context, symbol string) (*time.Time, error)
	FindActive(ctx context.Context, symbol string) ([]*domain.ExitOrder, error)
}

// Decision is the outcome of a buy check. Amount is the quote amount to
// spend when the buy is allowed; Reason names the guard that blocked it.
type Decision struct {
	Allowed bool
	Amount  float64
	Reason  string
}

// RiskManager implements the buy guards.
type RiskManager struct {
	cfg    RiskConfig
	ledger Ledger
	logger ports.Logger
	now    func() time.Time
}

// NewRiskManager creates a new risk manager instance.
func NewRiskManager(cfg RiskConfig, ledger Ledger, logger ports.Logger) (*RiskManager, error) {
	if ledger == nil || logger == nil {
		return nil, fmt.Errorf("ledger and logger are required for risk manager: %w", ports.ErrConfigurationError)
	}
	if cfg.MaxTradeAmount <= 0 {
		return nil, fmt.Errorf("max trade amount must be positive: %w", ports.ErrConfigurationError)
	}
	if cfg.FreeBalancePct <= 0 || cfg.FreeBalancePct > 1 {
		return nil, fmt.Errorf("free balance fraction must be within (0, 1]: %w", ports.ErrConfigurationError)
	}
	if cfg.MinNotional < 0 || cfg.ReserveBalance < 0 {
		return nil, fmt.Errorf("min notional and reserve must not be negative: %w", ports.ErrConfigurationError)
	}
	return &RiskManager{cfg: cfg, ledger: ledger, logger: logger, now: time.Now}, nil
}

// ApproveBuy runs every guard for a prospective buy of symbol.
// freeBalance is the account's free quote balance; maxAllocation is the
// symbol's configured allocation ceiling (0 means unlimited). A blocked
// buy is a normal outcome, not an error; errors mean the ledger could not
// be consulted and the caller must not buy.
func (r *RiskManager) ApproveBuy(ctx context.Context, symbol string, freeBalance, maxAllocation float64) (*Decision, error) {
	if r.cfg.MaxDailyBuys > 0 {
		buys, err := r.ledger.CountTodayBuys(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("failed to count today's buys: %w", err)
		}
		if buys >= r.cfg.MaxDailyBuys {
			return r.blocked(ctx, symbol, fmt.Sprintf("daily buy limit reached (%d/%d)", buys, r.cfg.MaxDailyBuys)), nil
		}
	}

	if r.cfg.Cooldown > 0 {
		last, err := r.ledger.LastBuyTime(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to read last buy time for symbol %s: %w", symbol, err)
		}
		if last != nil {
			elapsed := r.now().Sub(*last)
			if elapsed < r.cfg.Cooldown {
				return r.blocked(ctx, symbol, fmt.Sprintf("cooldown active (%s of %s elapsed)",
					elapsed.Round(time.Second), r.cfg.Cooldown)), nil
			}
		}
	}

	active, err := r.ledger.FindActive(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to list active exit orders for symbol %s: %w", symbol, err)
	}
	if r.cfg.MaxActivePerSymbol > 0 && len(active) >= r.cfg.MaxActivePerSymbol {
		return r.blocked(ctx, symbol, fmt.Sprintf("active exit order limit reached (%d/%d)",
			len(active), r.cfg.MaxActivePerSymbol)), nil
	}

	amount := math.Min(r.cfg.MaxTradeAmount, freeBalance*r.cfg.FreeBalancePct)
	amount = math.Min(amount, freeBalance-r.cfg.ReserveBalance)
	if maxAllocation > 0 {
		remaining := maxAllocation - investedIn(active)
		amount = math.Min(amount, remaining)
	}

	if amount < r.cfg.MinNotional {
		return r.blocked(ctx, symbol, fmt.Sprintf("allocation %.2f below minimum notional %.2f",
			amount, r.cfg.MinNotional)), nil
	}

	r.logger.Debug(ctx, "Buy approved", map[string]interface{}{
		"symbol":      symbol,
		"amount":      amount,
		"freeBalance": freeBalance,
	})
	return &Decision{Allowed: true, Amount: amount}, nil
}

func (r *RiskManager) blocked(ctx context.Context, symbol, reason string) *Decision {
	r.logger.Debug(ctx, "Buy blocked", map[string]interface{}{"symbol": symbol, "reason": reason})
	return &Decision{Reason: reason}
}

// investedIn sums the entry value still tied up in active exit orders.
func investedIn(orders []*domain.ExitOrder) float64 {
	var total float64
	for _, o := range orders {
		total += o.Quantity * o.AvgEntryPrice
	}
	return total
}
