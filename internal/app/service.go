// Package app orchestrates the trading cycle: resolve finished exit
// orders, evaluate entry signals per configured crypto, execute and
// protect buys, and journal every step for the reports.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cryptoGuardBot/config"
	"cryptoGuardBot/internal/cyclelog"
	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/exitorder"
	"cryptoGuardBot/internal/fills"
	"cryptoGuardBot/internal/ports"
	"cryptoGuardBot/internal/risk"
)

// Store is the slice of the ledger the engine reads and writes directly.
// The risk manager and the exit order manager hold their own repository
// handles; this covers only what the cycle itself needs.
type Store interface {
	RecordTransaction(ctx context.Context, tx *domain.Transaction) (int64, error)
	CountActiveBySymbol(ctx context.Context, symbol string) (int, error)
	PurgeOld(ctx context.Context, before time.Time) (*ports.PurgeResult, error)
}

// Config bundles the dependencies of the trading service.
type Config struct {
	Cfg       *config.Config
	Portfolio *config.Portfolio
	Logger    ports.Logger
	Exchange  ports.ExchangeClient
	Store     Store
	Strategy  ports.Strategy
	Risk      *risk.RiskManager
	Fills     *fills.Aggregator
	Exits     *exitorder.Manager
	Journal   *cyclelog.Journal
	Notifier  ports.Notifier
}

// TradingService runs the scheduled buy, protect and resolve cycle.
type TradingService struct {
	cfg       *config.Config
	portfolio *config.Portfolio
	logger    ports.Logger
	exchange  ports.ExchangeClient
	store     Store
	strategy  ports.Strategy
	risk      *risk.RiskManager
	fills     *fills.Aggregator
	exits     *exitorder.Manager
	journal   *cyclelog.Journal
	notifier  ports.Notifier
	now       func() time.Time

	cycleCount int
}

// accountState carries the account valuation through one cycle. Buys
// decrement the free balance locally so consecutive buys in the same cycle
// spend against the already reduced amount.
type accountState struct {
	freeQuote  float64
	totalValue float64
}

// NewTradingService creates a new application service instance.
func NewTradingService(deps Config) (*TradingService, error) {
	// Validate dependencies
	if deps.Cfg == nil || deps.Portfolio == nil || deps.Logger == nil || deps.Exchange == nil ||
		deps.Store == nil || deps.Strategy == nil || deps.Risk == nil || deps.Fills == nil ||
		deps.Exits == nil || deps.Journal == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}

	// Validate config values needed by the service
	if deps.Cfg.CycleInterval <= 0 {
		return nil, fmt.Errorf("configuration CycleInterval must be positive")
	}
	if deps.Cfg.StopLossPct <= 0 {
		return nil, fmt.Errorf("configuration StopLossPct must be positive")
	}
	if deps.Cfg.CleanupEveryN > 0 && deps.Cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("configuration RetentionDays must be positive when cleanup is enabled")
	}
	if len(deps.Portfolio.Active()) == 0 {
		return nil, fmt.Errorf("portfolio has no active cryptos to trade")
	}

	return &TradingService{
		cfg:       deps.Cfg,
		portfolio: deps.Portfolio,
		logger:    deps.Logger,
		exchange:  deps.Exchange,
		store:     deps.Store,
		strategy:  deps.Strategy,
		risk:      deps.Risk,
		fills:     deps.Fills,
		exits:     deps.Exits,
		journal:   deps.Journal,
		notifier:  deps.Notifier,
		now:       time.Now,
	}, nil
}

// Start runs trading cycles until the context is cancelled or a shutdown
// signal arrives. The first cycle runs immediately; later cycles are
// spaced by the configured interval.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// --- Initialization Steps ---
	// 1. Set server time (signed API calls reject client clock drift)
	if err := s.exchange.SetServerTime(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to synchronize server time")
		return fmt.Errorf("failed to set server time: %w", err)
	}
	s.logger.Info(ctx, "Server time synchronized")

	// 2. Log the traded portfolio
	active := s.portfolio.Active()
	symbols := make([]string, 0, len(active))
	for _, c := range active {
		symbols = append(symbols, c.Symbol)
	}
	s.logger.Info(ctx, "Trading portfolio loaded", map[string]interface{}{
		"cryptos":         symbols,
		"totalAllocation": s.portfolio.TotalAllocation(),
		"cycleInterval":   s.cfg.CycleInterval.String(),
	})

	// --- Cycle Loop ---
	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()
	for {
		s.runCycle(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Trading Service stopped.")
			return nil
		case <-ticker.C:
		}
	}
}

// runCycle executes one full trading cycle. Per-symbol failures are logged
// and skipped so one broken market never starves the others; failures that
// invalidate the whole cycle (ledger or account unreachable) journal a
// cycle_error and leave the work to the next tick.
func (s *TradingService) runCycle(ctx context.Context) {
	op := "runCycle"
	if ctx.Err() != nil {
		return
	}
	s.cycleCount++
	started := s.now()
	s.journalEvent(ctx, cyclelog.EventCycleStart, "", map[string]interface{}{"cycle": s.cycleCount})
	s.logger.Info(ctx, op+": Cycle started", map[string]interface{}{"cycle": s.cycleCount})

	// 1. Resolve exit orders that reached a terminal state since last cycle
	resolutions, err := s.exits.Resolve(ctx)
	if err != nil {
		s.failCycle(ctx, err, "resolving exit orders")
		return
	}
	for _, res := range resolutions {
		s.logger.Info(ctx, op+": Exit order resolved", map[string]interface{}{
			"symbol":      res.Order.Symbol,
			"orderListID": res.Order.OrderListID,
			"status":      string(res.Status),
			"price":       res.Execution.Price,
			"quantity":    res.Execution.Quantity,
		})
		s.journalEvent(ctx, cyclelog.EventExitResolved, res.Order.Symbol, map[string]interface{}{
			"order_list_id": res.Order.OrderListID,
			"status":        string(res.Status),
			"price":         res.Execution.Price,
			"quantity":      res.Execution.Quantity,
		})
	}

	// 2. Value the account once for this cycle's allocation targets
	account, err := s.accountSnapshot(ctx)
	if err != nil {
		s.failCycle(ctx, err, "reading account state")
		return
	}
	s.logger.Info(ctx, op+": Account valued", map[string]interface{}{
		"freeQuote":  account.freeQuote,
		"totalValue": account.totalValue,
	})

	// 3. Evaluate every active crypto
	buys := 0
	failures := 0
	for _, crypto := range s.portfolio.Active() {
		if ctx.Err() != nil {
			return
		}
		bought, err := s.evaluateSymbol(ctx, crypto, account)
		if err != nil {
			failures++
			s.logger.Error(ctx, err, op+": Symbol evaluation failed", map[string]interface{}{"symbol": crypto.Symbol})
			continue
		}
		if bought {
			buys++
		}
	}

	s.journalEvent(ctx, cyclelog.EventCycleComplete, "", map[string]interface{}{
		"cycle":    s.cycleCount,
		"buys":     buys,
		"resolved": len(resolutions),
		"failures": failures,
		"duration": s.now().Sub(started).String(),
	})
	s.logger.Info(ctx, op+": Cycle complete", map[string]interface{}{
		"cycle":    s.cycleCount,
		"buys":     buys,
		"resolved": len(resolutions),
		"failures": failures,
	})

	// 4. Ledger retention on schedule
	if s.cfg.CleanupEveryN > 0 && s.cycleCount%s.cfg.CleanupEveryN == 0 {
		s.runCleanup(ctx)
	}
}

// failCycle journals and logs a cycle-fatal failure. The loop retries on
// the next tick, never in a tight loop.
func (s *TradingService) failCycle(ctx context.Context, err error, stage string) {
	s.logger.Error(ctx, err, "runCycle: Cycle aborted", map[string]interface{}{
		"cycle": s.cycleCount, "stage": stage})
	s.journalEvent(ctx, cyclelog.EventCycleError, "", map[string]interface{}{
		"cycle": s.cycleCount,
		"stage": stage,
		"error": err.Error(),
	})
}

// accountSnapshot values the account in the quote asset: free and locked
// quote plus every configured crypto holding at its latest price. Cryptos
// whose price lookup fails are skipped, which undervalues the total and
// keeps allocation targets conservative.
func (s *TradingService) accountSnapshot(ctx context.Context) (*accountState, error) {
	balances, err := s.exchange.GetAccountBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account balances: %w", err)
	}
	byAsset := make(map[string]ports.Balance, len(balances))
	for _, b := range balances {
		byAsset[b.Asset] = b
	}

	account := &accountState{}
	if quote, ok := byAsset[s.portfolio.QuoteAsset]; ok {
		account.freeQuote = quote.Free
		account.totalValue = quote.Free + quote.Locked
	}
	for _, crypto := range s.portfolio.Active() {
		b, ok := byAsset[crypto.Name]
		if !ok || b.Free+b.Locked <= 0 {
			continue
		}
		quote, err := s.exchange.GetLatestPrice(ctx, crypto.Symbol)
		if err != nil || quote == nil {
			s.logger.Warn(ctx, "Skipping crypto valuation without a price", map[string]interface{}{
				"symbol": crypto.Symbol})
			continue
		}
		if age := s.now().Sub(quote.At); age > s.cfg.PriceStaleAfter {
			s.logger.Warn(ctx, "Valuing crypto at a stale price", map[string]interface{}{
				"symbol": crypto.Symbol, "age": age.String()})
		}
		account.totalValue += (b.Free + b.Locked) * quote.Price
	}
	return account, nil
}

// evaluateSymbol runs the signal and guard checks for one crypto and
// executes the buy when both agree. Returns whether a buy was executed.
func (s *TradingService) evaluateSymbol(ctx context.Context, crypto config.CryptoConfig, account *accountState) (bool, error) {
	op := "evaluateSymbol"

	activeCount, err := s.store.CountActiveBySymbol(ctx, crypto.Symbol)
	if err != nil {
		return false, fmt.Errorf("failed to count active exit orders for %s: %w", crypto.Symbol, err)
	}

	klines, err := s.exchange.GetKlines(ctx, crypto.Symbol, s.cfg.KlineInterval, s.cfg.KlineLimit)
	if err != nil {
		return false, fmt.Errorf("failed to fetch klines for %s: %w", crypto.Symbol, err)
	}
	if len(klines) == 0 {
		return false, fmt.Errorf("no klines returned for %s", crypto.Symbol)
	}
	currentPrice := klines[len(klines)-1].Close

	shouldBuy, reason := s.strategy.ShouldBuy(ctx, klines, currentPrice, activeCount > 0)
	if !shouldBuy {
		s.logger.Debug(ctx, op+": No entry signal", map[string]interface{}{
			"symbol": crypto.Symbol, "reason": reason})
		return false, nil
	}

	decision, err := s.risk.ApproveBuy(ctx, crypto.Symbol, account.freeQuote, account.totalValue*crypto.MaxAllocation)
	if err != nil {
		return false, fmt.Errorf("buy guards unavailable for %s: %w", crypto.Symbol, err)
	}
	if !decision.Allowed {
		s.logger.Info(ctx, op+": Buy blocked", map[string]interface{}{
			"symbol": crypto.Symbol, "reason": decision.Reason, "signal": reason})
		return false, nil
	}

	if err := s.executeBuy(ctx, crypto, decision.Amount, reason); err != nil {
		return false, err
	}
	account.freeQuote -= decision.Amount
	return true, nil
}

// executeBuy places the market buy, accounts for every fill, and protects
// the position with an exit order. A position that cannot be protected
// raises an urgent alert and is left to the operator.
func (s *TradingService) executeBuy(ctx context.Context, crypto config.CryptoConfig, amount float64, reason string) error {
	op := "executeBuy"
	amountStr := formatQuote(amount)
	s.logger.Info(ctx, op+": Placing market buy", map[string]interface{}{
		"symbol": crypto.Symbol, "amount": amountStr, "signal": reason})

	order, err := s.exchange.PlaceMarketBuy(ctx, crypto.Symbol, amountStr)
	if err != nil {
		return fmt.Errorf("market buy failed for %s: %w", crypto.Symbol, err)
	}
	orderID := strconv.FormatInt(order.OrderID, 10)
	s.logger.Info(ctx, op+": Buy order executed", map[string]interface{}{
		"symbol": crypto.Symbol, "orderID": orderID, "executedQty": order.ExecutedQty})

	pos, fillList, err := s.fills.Collect(ctx, crypto.Symbol, order.OrderID, order.Fills, order.ExecutedQty)
	// Fills the exchange did return are authoritative trades; record them
	// even when the list is incomplete, so the ledger misses rows rather
	// than holds wrong ones. Recording is idempotent per (order, trade).
	recorded := 0
	for _, tx := range fills.BuyTransactions(fillList, domain.OrderTypeMarket) {
		if _, txErr := s.store.RecordTransaction(ctx, tx); txErr != nil {
			s.logger.Error(ctx, txErr, op+": Failed to record buy transaction", map[string]interface{}{
				"symbol": crypto.Symbol, "orderID": tx.OrderID, "tradeID": tx.TradeID})
			continue
		}
		recorded++
	}
	if err != nil {
		s.alertUnprotected(ctx, crypto.Symbol, orderID, order.ExecutedQty, err)
		return fmt.Errorf("fill accounting failed for %s order %s: %w", crypto.Symbol, orderID, err)
	}

	s.journalEvent(ctx, cyclelog.EventBuy, crypto.Symbol, map[string]interface{}{
		"order_id":  orderID,
		"quantity":  pos.TotalQuantity,
		"avg_price": pos.AvgPrice,
		"invested":  pos.Invested(),
		"fills":     pos.FillCount,
	})

	keptFraction := 0.0
	if s.cfg.KeepInAsset {
		keptFraction = crypto.ProfitTarget / 100
	}
	exit, err := s.exits.Open(ctx, exitorder.OpenRequest{
		Position:     pos,
		ProfitTarget: crypto.ProfitTarget,
		StopLoss:     s.cfg.StopLossPct,
		KeptFraction: keptFraction,
	})
	if err != nil {
		s.alertUnprotected(ctx, crypto.Symbol, orderID, pos.TotalQuantity, err)
		return fmt.Errorf("failed to protect position for %s order %s: %w", crypto.Symbol, orderID, err)
	}

	s.journalEvent(ctx, cyclelog.EventExitOpened, crypto.Symbol, map[string]interface{}{
		"order_list_id": exit.OrderListID,
		"profit_price":  exit.ProfitPrice,
		"stop_price":    exit.StopLossPrice,
		"kept_quantity": exit.KeptQuantity,
	})
	s.logger.Info(ctx, op+": Position protected", map[string]interface{}{
		"symbol":       crypto.Symbol,
		"orderListID":  exit.OrderListID,
		"transactions": recorded,
	})
	return nil
}

// runCleanup purges ledger rows past the retention window. Failures are
// logged and retried at the next scheduled cleanup.
func (s *TradingService) runCleanup(ctx context.Context) {
	op := "runCleanup"
	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	result, err := s.store.PurgeOld(ctx, cutoff)
	if err != nil {
		s.logger.Error(ctx, err, op+": Ledger retention failed", map[string]interface{}{
			"cutoff": cutoff.Format(time.RFC3339)})
		return
	}
	s.logger.Info(ctx, op+": Ledger retention complete", map[string]interface{}{
		"cutoff":       cutoff.Format(time.RFC3339),
		"transactions": result.Transactions,
		"exitOrders":   result.ExitOrders,
		"history":      result.History,
	})
}

// alertUnprotected raises the urgent operator alert for a bought position
// carrying no protective exit order.
func (s *TradingService) alertUnprotected(ctx context.Context, symbol, orderID string, quantity float64, cause error) {
	s.logger.Error(ctx, cause, "Unprotected position, raising operator alert", map[string]interface{}{
		"symbol": symbol, "orderID": orderID, "quantity": quantity})

	subject := fmt.Sprintf("URGENT: unprotected position on %s", symbol)
	body := fmt.Sprintf(
		"Buy order %s on %s executed but no exit order protects it.\n"+
			"Quantity at risk: %s\nCause: %v\n\n"+
			"Manual intervention required: place a protective sell or close the position.",
		orderID, symbol, strconv.FormatFloat(quantity, 'f', -1, 64), cause)
	if err := s.notifier.Send(ctx, subject, body); err != nil {
		s.logger.Error(ctx, err, "Failed to deliver unprotected position alert", map[string]interface{}{
			"symbol": symbol, "orderID": orderID})
	}
}

// journalEvent appends to the cycle journal. Journaling is best-effort; a
// full disk must not stop trading.
func (s *TradingService) journalEvent(ctx context.Context, eventType, symbol string, detail map[string]interface{}) {
	if err := s.journal.Append(eventType, symbol, detail); err != nil {
		s.logger.Warn(ctx, "Failed to journal cycle event", map[string]interface{}{
			"event": eventType, "symbol": symbol, "error": err.Error()})
	}
}

// formatQuote formats a quote amount for the exchange API. Stable quote
// assets settle to two decimals.
func formatQuote(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}
