package server

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"cryptoGuardBot/config"
	"cryptoGuardBot/internal/ports"
)

// botActiveWindow is how recent the last transaction must be for the bot
// to report as active.
const botActiveWindow = 15 * time.Minute

const (
	defaultTransactionLimit = 20
	defaultHistoryLimit     = 100
	maxListLimit            = 500
)

type handlers struct {
	store     Store
	balances  Balances
	prices    Prices
	portfolio *config.Portfolio
	logger    ports.Logger
	version   string
	now       func() time.Time
}

type statsResponse struct {
	DailyBuys         int        `json:"daily_buys"`
	ActiveOCO         int        `json:"active_oco"`
	TotalTransactions int        `json:"total_transactions"`
	BotStatus         string     `json:"bot_status"`
	LastUpdate        *time.Time `json:"last_update"`
	Timestamp         time.Time  `json:"timestamp"`
}

type transactionRow struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

type orderRow struct {
	ID            int64     `json:"id"`
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	KeptQuantity  float64   `json:"kept_quantity"`
	BuyPrice      float64   `json:"buy_price"`
	ProfitTarget  float64   `json:"profit_target"`
	ProfitPrice   float64   `json:"profit_price"`
	StopLossPrice float64   `json:"stop_loss_price"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type historyRow struct {
	OrderListID    string    `json:"order_list_id"`
	Symbol         string    `json:"symbol"`
	Status         string    `json:"status"`
	ExecutionType  string    `json:"execution_type"`
	ExecutionPrice float64   `json:"execution_price"`
	ExecutionQty   float64   `json:"execution_qty"`
	KeptQuantity   float64   `json:"kept_quantity"`
	ExecutedAt     time.Time `json:"executed_at"`
}

type cryptoRow struct {
	Name              string  `json:"name"`
	Symbol            string  `json:"symbol"`
	ProfitTarget      float64 `json:"profit_target"`
	MaxAllocation     float64 `json:"max_allocation"`
	Balance           float64 `json:"balance"`
	FreeBalance       float64 `json:"free_balance"`
	LockedBalance     float64 `json:"locked_balance"`
	CurrentPrice      float64 `json:"current_price"`
	Value             float64 `json:"value_usdc"`
	CurrentAllocation float64 `json:"current_allocation"`
}

type portfolioResponse struct {
	ActiveCryptos int         `json:"active_cryptos"`
	Cryptos       []cryptoRow `json:"cryptos"`
	TotalValue    float64     `json:"total_value"`
	FreeQuote     float64     `json:"free_usdc"`
	LastUpdate    time.Time   `json:"last_update"`
}

type performanceResponse struct {
	Today float64 `json:"today"`
	Week  float64 `json:"7d"`
	Month float64 `json:"30d"`
	Total float64 `json:"total"`
}

// GET /api/health
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "cryptoGuardBot dashboard",
		"version":   h.version,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// GET /api/stats
func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	qs, err := h.store.QuickStats(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), err, "Quick stats query failed")
		writeError(w, http.StatusInternalServerError, "reading ledger stats")
		return
	}

	now := h.now()
	status := "idle"
	if qs.LastActivity != nil && now.Sub(*qs.LastActivity) <= botActiveWindow {
		status = "active"
	}

	writeJSON(w, http.StatusOK, statsResponse{
		DailyBuys:         qs.DailyBuys,
		ActiveOCO:         qs.ActiveExitOrders,
		TotalTransactions: qs.TotalTransactions,
		BotStatus:         status,
		LastUpdate:        qs.LastActivity,
		Timestamp:         now,
	})
}

// GET /api/stats/transactions?limit=&period=
func (h *handlers) transactions(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultTransactionLimit)
	period := ports.ParsePeriod(r.URL.Query().Get("period"))

	txs, err := h.store.FindTransactions(r.Context(), ports.TransactionFilter{
		Since: period.Start(h.now()),
		Limit: limit,
	})
	if err != nil {
		h.logger.Error(r.Context(), err, "Transaction query failed")
		writeError(w, http.StatusInternalServerError, "reading transactions")
		return
	}

	rows := make([]transactionRow, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, transactionRow{
			OrderID:   t.OrderID,
			Symbol:    t.Symbol,
			Side:      string(t.Side),
			Price:     t.Price,
			Quantity:  t.Quantity,
			Value:     t.Value(),
			CreatedAt: t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": rows})
}

// GET /api/orders
func (h *handlers) activeOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.FindActive(r.Context(), "")
	if err != nil {
		h.logger.Error(r.Context(), err, "Active order query failed")
		writeError(w, http.StatusInternalServerError, "reading exit orders")
		return
	}

	rows := make([]orderRow, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, orderRow{
			ID:            o.ID,
			Symbol:        o.Symbol,
			Quantity:      o.Quantity,
			KeptQuantity:  o.KeptQuantity,
			BuyPrice:      o.AvgEntryPrice,
			ProfitTarget:  o.ProfitTarget,
			ProfitPrice:   o.ProfitPrice,
			StopLossPrice: o.StopLossPrice,
			Status:        string(o.Status),
			CreatedAt:     o.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": rows})
}

// GET /api/orders/history?limit=
func (h *handlers) orderHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultHistoryLimit)

	records, err := h.store.FindHistory(r.Context(), ports.HistoryFilter{Limit: limit})
	if err != nil {
		h.logger.Error(r.Context(), err, "Order history query failed")
		writeError(w, http.StatusInternalServerError, "reading order history")
		return
	}

	rows := make([]historyRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, historyRow{
			OrderListID:    rec.OrderListID,
			Symbol:         rec.Symbol,
			Status:         string(rec.Status),
			ExecutionType:  string(rec.ExecutionType),
			ExecutionPrice: rec.ExecutionPrice,
			ExecutionQty:   rec.ExecutionQty,
			KeptQuantity:   rec.KeptQuantity,
			ExecutedAt:     rec.ExecutedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": rows})
}

// GET /api/portfolio
//
// Values the configured cryptos against the live account. Configured assets
// with no balance still appear with a zero balance; assets whose price
// lookup fails are skipped rather than failing the response.
func (h *handlers) portfolioSummary(w http.ResponseWriter, r *http.Request) {
	if h.balances == nil || h.prices == nil || h.portfolio == nil {
		writeError(w, http.StatusServiceUnavailable, "portfolio source not configured")
		return
	}

	balances, err := h.balances.GetAccountBalances(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), err, "Account balance fetch failed")
		writeError(w, http.StatusInternalServerError, "reading account balances")
		return
	}
	byAsset := make(map[string]ports.Balance, len(balances))
	for _, b := range balances {
		byAsset[b.Asset] = b
	}

	var total float64
	rows := make([]cryptoRow, 0, len(h.portfolio.Cryptos))
	for _, c := range h.portfolio.Active() {
		bal := byAsset[c.Name]
		quote, err := h.prices.GetLatestPrice(r.Context(), c.Symbol)
		if err != nil || quote == nil {
			h.logger.Warn(r.Context(), "Skipping crypto without a price", map[string]interface{}{
				"symbol": c.Symbol})
			continue
		}

		amount := bal.Free + bal.Locked
		value := amount * quote.Price
		total += value
		rows = append(rows, cryptoRow{
			Name:          c.Name,
			Symbol:        c.Symbol,
			ProfitTarget:  c.ProfitTarget,
			MaxAllocation: c.MaxAllocation,
			Balance:       amount,
			FreeBalance:   bal.Free,
			LockedBalance: bal.Locked,
			CurrentPrice:  quote.Price,
			Value:         value,
		})
	}
	if total > 0 {
		for i := range rows {
			rows[i].CurrentAllocation = rows[i].Value / total
		}
	}

	writeJSON(w, http.StatusOK, portfolioResponse{
		ActiveCryptos: len(rows),
		Cryptos:       rows,
		TotalValue:    total,
		FreeQuote:     byAsset[h.portfolio.QuoteAsset].Free,
		LastUpdate:    h.now(),
	})
}

// GET /api/portfolio/performance
func (h *handlers) performance(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	resp := performanceResponse{}
	windows := []struct {
		period ports.Period
		dest   *float64
	}{
		{ports.PeriodToday, &resp.Today},
		{ports.PeriodWeek, &resp.Week},
		{ports.PeriodMonth, &resp.Month},
		{ports.PeriodAll, &resp.Total},
	}

	for _, win := range windows {
		totals, err := h.store.PeriodTotals(r.Context(), win.period.Start(now))
		if err != nil {
			h.logger.Error(r.Context(), err, "Performance query failed", map[string]interface{}{
				"period": string(win.period)})
			writeError(w, http.StatusInternalServerError, "reading performance")
			return
		}
		*win.dest = netProfitPct(totals)
	}
	writeJSON(w, http.StatusOK, resp)
}

// netProfitPct is the fee-adjusted return on invested quote for a window,
// rounded to two decimals. Zero when nothing was invested.
func netProfitPct(t *ports.PeriodTotals) float64 {
	if t.Invested <= 0 {
		return 0
	}
	profit := t.Recovered - t.Invested - t.Fees
	return math.Round(profit/t.Invested*10000) / 100
}

// queryLimit reads the limit query parameter, applying the default and the
// hard cap.
func queryLimit(r *http.Request, def int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

// writeJSON marshals v and writes it with the given status code. Marshal
// failures fall back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
