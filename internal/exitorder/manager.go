// Package exitorder places and resolves the protective sell orders that
// guard every buy. Each buy gets a take-profit / stop-loss OCO pair over
// the protected portion of the position; the kept portion stays on the
// book as a long-term holding. Terminal transitions go through the ledger
// atomically so a fill is never double-counted.
package exitorder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"

	"github.com/shopspring/decimal"
)

// Config holds dependencies and parameters for the manager.
type Config struct {
	Exchange ports.ExchangeClient
	Repo     ports.ExitOrderRepository
	Logger   ports.Logger
	// StopLimitGap is the percentage below the stop trigger at which the
	// stop limit leg is priced. Defaults to 0.1 when zero.
	StopLimitGap float64
}

// Manager opens protective exit orders and resolves their outcomes.
type Manager struct {
	exchange     ports.ExchangeClient
	repo         ports.ExitOrderRepository
	logger       ports.Logger
	stopLimitGap float64

	mu    sync.Mutex
	rules map[string]*ports.SymbolRules
}

// OpenRequest describes the position to protect.
type OpenRequest struct {
	Position     *domain.Position
	ProfitTarget float64 // Take-profit distance from avg entry, percent
	StopLoss     float64 // Stop-loss distance from avg entry, percent
	KeptFraction float64 // Fraction of the quantity left unprotected, [0, 1)
}

// Resolution reports one exit order reaching a terminal state.
type Resolution struct {
	Order     *domain.ExitOrder
	Status    domain.ExitOrderStatus
	Execution ports.ExecutionSnapshot
}

// New creates a new exit order manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("exchange client is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Repo == nil {
		return nil, fmt.Errorf("exit order repository is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	gap := cfg.StopLimitGap
	if gap <= 0 {
		gap = 0.1
	}
	return &Manager{
		exchange:     cfg.Exchange,
		repo:         cfg.Repo,
		logger:       cfg.Logger,
		stopLimitGap: gap,
		rules:        make(map[string]*ports.SymbolRules),
	}, nil
}

// Open places the protective OCO sell for a position and records it as an
// ACTIVE exit order. The kept fraction is rounded down to the symbol's lot
// step; the remainder is protected. When the exchange rejects the OCO pair
// the manager falls back to a plain take-profit limit sell so the position
// is never left without an exit.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*domain.ExitOrder, error) {
	const op = "exitorder.Open"

	pos := req.Position
	if pos == nil || pos.TotalQuantity <= 0 || pos.AvgPrice <= 0 {
		return nil, fmt.Errorf("%s: position with positive quantity and price required: %w", op, ports.ErrInvalidRequest)
	}
	if req.ProfitTarget <= 0 || req.StopLoss <= 0 {
		return nil, fmt.Errorf("%s: profit target and stop loss must be positive: %w", op, ports.ErrInvalidRequest)
	}
	if req.KeptFraction < 0 || req.KeptFraction >= 1 {
		return nil, fmt.Errorf("%s: kept fraction %.4f outside [0, 1): %w", op, req.KeptFraction, ports.ErrInvalidRequest)
	}

	rules, err := m.rulesFor(ctx, pos.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	qty := decimal.NewFromFloat(pos.TotalQuantity)
	kept, err := roundDownToStep(qty.Mul(decimal.NewFromFloat(req.KeptFraction)), rules.StepSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	protected, err := roundDownToStep(qty.Sub(kept), rules.StepSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !protected.IsPositive() {
		return nil, fmt.Errorf("%s: protected quantity is zero after rounding: %w", op, ports.ErrInvalidRequest)
	}
	if minQty, err := decimal.NewFromString(rules.MinQty); err == nil && protected.Cmp(minQty) < 0 {
		return nil, fmt.Errorf("%s: protected quantity %s below symbol minimum %s: %w",
			op, protected.String(), rules.MinQty, ports.ErrInvalidRequest)
	}

	avg := decimal.NewFromFloat(pos.AvgPrice)
	pct := func(p float64) decimal.Decimal { return decimal.NewFromFloat(p / 100) }
	profitPrice, err := roundDownToStep(avg.Mul(decimal.NewFromFloat(1).Add(pct(req.ProfitTarget))), rules.TickSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	stopPrice, err := roundDownToStep(avg.Mul(decimal.NewFromFloat(1).Sub(pct(req.StopLoss))), rules.TickSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	stopLimitPrice, err := roundDownToStep(stopPrice.Mul(decimal.NewFromFloat(1).Sub(pct(m.stopLimitGap))), rules.TickSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !profitPrice.IsPositive() || !stopLimitPrice.IsPositive() {
		return nil, fmt.Errorf("%s: derived prices must be positive: %w", op, ports.ErrInvalidRequest)
	}

	order := &domain.ExitOrder{
		Symbol:         pos.Symbol,
		BuyOrderID:     pos.OrderID,
		Quantity:       pos.TotalQuantity,
		KeptQuantity:   kept.InexactFloat64(),
		AvgEntryPrice:  pos.AvgPrice,
		ProfitTarget:   req.ProfitTarget,
		ProfitPrice:    profitPrice.InexactFloat64(),
		StopLossPrice:  stopPrice.InexactFloat64(),
		StopLimitPrice: stopLimitPrice.InexactFloat64(),
		Status:         domain.ExitStatusActive,
		CreatedAt:      time.Now(),
	}

	result, err := m.exchange.PlaceOCOSell(ctx, pos.Symbol,
		protected.String(), profitPrice.String(), stopPrice.String(), stopLimitPrice.String())
	switch {
	case err == nil:
		order.OrderListID = strconv.FormatInt(result.OrderListID, 10)
		order.ProfitOrderID = strconv.FormatInt(result.ProfitOrderID, 10)
		order.StopOrderID = strconv.FormatInt(result.StopOrderID, 10)
	case errors.Is(err, ports.ErrOrderPlacementFailed) && !errors.Is(err, ports.ErrInsufficientFunds):
		m.logger.Warn(ctx, "OCO rejected, falling back to limit-only protection", map[string]interface{}{
			"symbol": pos.Symbol, "error": err.Error()})
		limit, limitErr := m.exchange.PlaceLimitSell(ctx, pos.Symbol, protected.String(), profitPrice.String())
		if limitErr != nil {
			return nil, fmt.Errorf("%s: limit fallback failed after OCO rejection: %w", op, limitErr)
		}
		order.OrderListID = strconv.FormatInt(limit.OrderID, 10)
		order.ProfitOrderID = order.OrderListID
		order.StopOrderID = ""
	default:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := m.repo.CreateExitOrder(ctx, order); err != nil {
		// The protective order is live on the exchange but missing from the
		// ledger. Surface loudly; the resolver cannot track what it cannot see.
		m.logger.Error(ctx, err, "Exit order placed but not persisted", map[string]interface{}{
			"symbol": pos.Symbol, "orderListID": order.OrderListID})
		return nil, fmt.Errorf("%s: persisting exit order: %w", op, err)
	}

	m.logger.Info(ctx, "Exit order opened", map[string]interface{}{
		"symbol":       pos.Symbol,
		"orderListID":  order.OrderListID,
		"protected":    protected.String(),
		"kept":         kept.String(),
		"profitPrice":  profitPrice.String(),
		"stopPrice":    stopPrice.String(),
		"keptFraction": req.KeptFraction,
	})
	return order, nil
}

// Resolve polls every ACTIVE exit order and finalizes the ones whose legs
// reached a terminal state on the exchange. Already-finalized orders are
// skipped quietly; per-order failures are logged and do not stop the scan.
func (m *Manager) Resolve(ctx context.Context) ([]Resolution, error) {
	const op = "exitorder.Resolve"

	active, err := m.repo.FindActive(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resolutions := make([]Resolution, 0)
	for _, order := range active {
		if err := ctx.Err(); err != nil {
			return resolutions, fmt.Errorf("%s: %w", op, ports.ErrContextCanceled)
		}
		res, err := m.resolveOne(ctx, order)
		if err != nil {
			if errors.Is(err, ports.ErrDuplicateTerminalEvent) {
				m.logger.Debug(ctx, "Exit order already finalized", map[string]interface{}{
					"symbol": order.Symbol, "orderListID": order.OrderListID})
				continue
			}
			m.logger.Error(ctx, err, "Failed to resolve exit order", map[string]interface{}{
				"symbol": order.Symbol, "orderListID": order.OrderListID})
			continue
		}
		if res != nil {
			resolutions = append(resolutions, *res)
		}
	}
	return resolutions, nil
}

// resolveOne inspects one exit order's legs. Returns nil, nil while the
// order is still working.
func (m *Manager) resolveOne(ctx context.Context, order *domain.ExitOrder) (*Resolution, error) {
	profit, profitErr := m.legStatus(ctx, order.Symbol, order.ProfitOrderID)
	if profitErr != nil && !errors.Is(profitErr, ports.ErrOrderNotFound) {
		return nil, profitErr
	}
	var stop *ports.OrderResult
	var stopErr error = ports.ErrOrderNotFound
	if order.StopOrderID != "" && order.StopOrderID != order.ProfitOrderID {
		stop, stopErr = m.legStatus(ctx, order.Symbol, order.StopOrderID)
		if stopErr != nil && !errors.Is(stopErr, ports.ErrOrderNotFound) {
			return nil, stopErr
		}
	}

	switch {
	case profit != nil && profit.Status == "FILLED":
		return m.finalize(ctx, order, domain.ExitStatusProfitFilled, domain.ExecutionProfit, profit)
	case stop != nil && stop.Status == "FILLED":
		return m.finalize(ctx, order, domain.ExitStatusStopFilled, domain.ExecutionStopLoss, stop)
	case legGone(profit, profitErr) && legGone(stop, stopErr):
		// Both legs cancelled, expired or unknown to the exchange: the
		// protection was removed externally.
		m.logger.Warn(ctx, "Exit order cancelled outside the bot", map[string]interface{}{
			"symbol": order.Symbol, "orderListID": order.OrderListID})
		return m.finalize(ctx, order, domain.ExitStatusCancelled, domain.ExecutionNone, nil)
	}
	return nil, nil
}

// legStatus looks up a single leg by its stored string id.
func (m *Manager) legStatus(ctx context.Context, symbol, orderID string) (*ports.OrderResult, error) {
	if orderID == "" {
		return nil, ports.ErrOrderNotFound
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed order id %q: %w", orderID, ports.ErrInvalidRequest)
	}
	return m.exchange.GetOrderStatus(ctx, symbol, id)
}

// legGone reports whether a leg can no longer fill.
func legGone(leg *ports.OrderResult, err error) bool {
	if err != nil {
		return errors.Is(err, ports.ErrOrderNotFound)
	}
	if leg == nil {
		return false
	}
	switch leg.Status {
	case "CANCELED", "EXPIRED", "REJECTED":
		return true
	}
	return false
}

// finalize records a terminal transition in the ledger and builds the
// resolution event. For executed legs the fill list is consulted for the
// precise price and commission; the order-level numbers are the fallback.
func (m *Manager) finalize(ctx context.Context, order *domain.ExitOrder, status domain.ExitOrderStatus, execType domain.ExecutionType, leg *ports.OrderResult) (*Resolution, error) {
	exec := ports.ExecutionSnapshot{Type: execType, ExecutedAt: time.Now()}
	var sellTx *domain.Transaction

	if leg != nil {
		exec.Quantity = leg.ExecutedQty
		exec.Price = leg.Price
		if leg.ExecutedQty > 0 && leg.CumQuoteQty > 0 {
			exec.Price = leg.CumQuoteQty / leg.ExecutedQty
		}
		if !leg.TransactTime.IsZero() {
			exec.ExecutedAt = leg.TransactTime
		}

		commission := 0.0
		commissionAsset := ""
		if fills, err := m.exchange.GetOrderFills(ctx, order.Symbol, leg.OrderID); err != nil {
			m.logger.Warn(ctx, "Could not fetch sell fills, using order-level figures", map[string]interface{}{
				"symbol": order.Symbol, "orderID": leg.OrderID, "error": err.Error()})
		} else {
			for _, f := range fills {
				commission += f.Commission
				commissionAsset = f.CommissionAsset
			}
		}

		orderType := domain.OrderTypeOCO
		if order.StopOrderID == "" {
			orderType = domain.OrderTypeLimit
		}
		sellTx = &domain.Transaction{
			Symbol:          order.Symbol,
			OrderID:         strconv.FormatInt(leg.OrderID, 10),
			Side:            domain.Sell,
			OrderType:       orderType,
			Price:           exec.Price,
			Quantity:        exec.Quantity,
			Commission:      commission,
			CommissionAsset: commissionAsset,
			TransactTime:    exec.ExecutedAt,
		}
	}

	if err := m.repo.CompleteExitOrder(ctx, order.OrderListID, status, exec, sellTx); err != nil {
		return nil, err
	}
	order.Status = status
	executedAt := exec.ExecutedAt
	order.ExecutedAt = &executedAt
	return &Resolution{Order: order, Status: status, Execution: exec}, nil
}

// rulesFor returns the cached trading filters for a symbol, fetching them
// on first use.
func (m *Manager) rulesFor(ctx context.Context, symbol string) (*ports.SymbolRules, error) {
	m.mu.Lock()
	cached, ok := m.rules[symbol]
	m.mu.Unlock()
	if ok {
		return cached, nil
	}

	rules, err := m.exchange.GetSymbolRules(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetching trading rules for %s: %w", symbol, err)
	}
	m.mu.Lock()
	m.rules[symbol] = rules
	m.mu.Unlock()
	return rules, nil
}

// roundDownToStep floors a value to a multiple of the exchange step or
// tick size.
func roundDownToStep(value decimal.Decimal, step string) (decimal.Decimal, error) {
	stepD, err := decimal.NewFromString(step)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed step size %q: %w", step, ports.ErrInvalidRequest)
	}
	if !stepD.IsPositive() {
		return decimal.Zero, fmt.Errorf("step size %q must be positive: %w", step, ports.ErrInvalidRequest)
	}
	return value.Div(stepD).Floor().Mul(stepD), nil
}
