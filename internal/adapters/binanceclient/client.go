package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	defaultRulesCacheTTL = 30 * time.Minute
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
	rulesTTL   time.Duration

	mu    sync.Mutex
	rules map[string]cachedRules
}

type cachedRules struct {
	rules     *ports.SymbolRules
	fetchedAt time.Time
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey        string
	SecretKey     string
	UseTestnet    bool
	Logger        ports.Logger
	RulesCacheTTL time.Duration // How long exchange filters are cached per symbol
}

// New creates a new Binance spot client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
		// Allow creation for public endpoints, but log warning.
		// Authentication errors will occur if private endpoints are called.
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using the global binance.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	rulesTTL := cfg.RulesCacheTTL
	if rulesTTL <= 0 {
		rulesTTL = defaultRulesCacheTTL
	}

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
		rulesTTL:   rulesTTL,
		rules:      make(map[string]cachedRules),
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1000, -1001: // Unknown internal error / disconnected
			mappedErr = ports.ErrExchangeUnavailable
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1013: // Filter failure (LOT_SIZE, PRICE_FILTER, MIN_NOTIONAL)
			mappedErr = ports.ErrInvalidRequest
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			// The spot API reports balance problems under this code; the
			// caller needs to tell them apart from other rejections.
			if strings.Contains(strings.ToLower(apiErr.Message), "insufficient balance") {
				mappedErr = ports.ErrInsufficientFunds
			} else {
				mappedErr = ports.ErrOrderPlacementFailed
			}
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014: // API-key format invalid
			mappedErr = ports.ErrInvalidAPIKeys
		case -2015: // Invalid API-key, IP, or permissions for action
			mappedErr = ports.ErrInvalidAPIKeys
		default:
			// General classification for unmapped API errors
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	_, err := c.spotClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetLatestPrice retrieves the last ticker price for a given symbol.
func (c *Client) GetLatestPrice(ctx context.Context, symbol string) (*ports.PriceQuote, error) {
	op := "GetLatestPrice"
	prices, err := c.spotClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		err := fmt.Errorf("no price data returned for symbol %s", symbol)
		return nil, c.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err)
		return nil, c.handleError(ctx, parseErr, op)
	}
	return &ports.PriceQuote{Symbol: symbol, Price: price, At: time.Now()}, nil
}

// GetAccountBalances retrieves all non-zero spot balances.
func (c *Client) GetAccountBalances(ctx context.Context) ([]ports.Balance, error) {
	op := "GetAccountBalances"
	account, err := c.spotClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	balances := make([]ports.Balance, 0, len(account.Balances))
	for _, bal := range account.Balances {
		free, err := strconv.ParseFloat(bal.Free, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse free balance '%s' for asset %s: %w", bal.Free, bal.Asset, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		locked, err := strconv.ParseFloat(bal.Locked, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse locked balance '%s' for asset %s: %w", bal.Locked, bal.Asset, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		if free == 0 && locked == 0 {
			continue
		}
		balances = append(balances, ports.Balance{Asset: bal.Asset, Free: free, Locked: locked})
	}
	return balances, nil
}

// GetSymbolRules retrieves the trading filters for a symbol. Filters change
// rarely, so results are cached in-process.
func (c *Client) GetSymbolRules(ctx context.Context, symbol string) (*ports.SymbolRules, error) {
	op := "GetSymbolRules"

	c.mu.Lock()
	if entry, ok := c.rules[symbol]; ok && time.Since(entry.fetchedAt) < c.rulesTTL {
		c.mu.Unlock()
		return entry.rules, nil
	}
	c.mu.Unlock()

	info, err := c.spotClient.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		lot := s.LotSizeFilter()
		priceFilter := s.PriceFilter()
		if lot == nil || priceFilter == nil {
			err := fmt.Errorf("exchange info for symbol %s is missing LOT_SIZE or PRICE_FILTER", symbol)
			return nil, c.handleError(ctx, err, op)
		}
		rules := &ports.SymbolRules{
			Symbol:   symbol,
			StepSize: lot.StepSize,
			MinQty:   lot.MinQuantity,
			TickSize: priceFilter.TickSize,
		}
		c.mu.Lock()
		c.rules[symbol] = cachedRules{rules: rules, fetchedAt: time.Now()}
		c.mu.Unlock()
		c.logger.Debug(ctx, op+" fetched", map[string]interface{}{
			"symbol":   symbol,
			"stepSize": rules.StepSize,
			"tickSize": rules.TickSize,
		})
		return rules, nil
	}

	err = fmt.Errorf("symbol %s not found in exchange info", symbol)
	return nil, c.handleError(ctx, err, op)
}

// PlaceMarketBuy places a market buy spending the given quote amount. The
// FULL response type makes the exchange return fills inline.
func (c *Client) PlaceMarketBuy(ctx context.Context, symbol string, quoteAmount string) (*ports.OrderResult, error) {
	op := "PlaceMarketBuy"
	order, err := c.spotClient.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(quoteAmount).
		NewClientOrderID(uuid.NewString()).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	result := translateCreateOrder(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":      symbol,
		"quoteAmount": quoteAmount,
		"orderID":     result.OrderID,
		"executedQty": result.ExecutedQty,
		"fills":       len(result.Fills),
	})
	return result, nil
}

// GetOrderFills retrieves every fill recorded for the given order.
func (c *Client) GetOrderFills(ctx context.Context, symbol string, orderID int64) ([]domain.Fill, error) {
	op := "GetOrderFills"
	trades, err := c.spotClient.NewListTradesService().
		Symbol(symbol).
		OrderId(orderID).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	if len(trades) == 0 {
		// An empty trade list cannot distinguish "no fills yet" from "no
		// such order"; query the order itself to tell them apart.
		if _, err := c.GetOrderStatus(ctx, symbol, orderID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	fills := make([]domain.Fill, 0, len(trades))
	for _, trade := range trades {
		price, err := strconv.ParseFloat(trade.Price, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse trade price '%s': %w", trade.Price, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		qty, err := strconv.ParseFloat(trade.Quantity, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse trade quantity '%s': %w", trade.Quantity, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		commission, err := strconv.ParseFloat(trade.Commission, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse trade commission '%s': %w", trade.Commission, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		fills = append(fills, domain.Fill{
			OrderID:         strconv.FormatInt(trade.OrderID, 10),
			TradeID:         trade.ID,
			Symbol:          trade.Symbol,
			Price:           price,
			Quantity:        qty,
			Commission:      commission,
			CommissionAsset: trade.CommissionAsset,
			ExecutedAt:      time.UnixMilli(trade.Time),
		})
	}
	return fills, nil
}

// PlaceOCOSell places a take-profit / stop-loss OCO sell pair.
func (c *Client) PlaceOCOSell(ctx context.Context, symbol, quantity, limitPrice, stopPrice, stopLimitPrice string) (*ports.ExitOrderResult, error) {
	op := "PlaceOCOSell"
	resp, err := c.spotClient.NewCreateOCOService().
		Symbol(symbol).
		Side(binance.SideTypeSell).
		Quantity(quantity).
		Price(limitPrice).
		StopPrice(stopPrice).
		StopLimitPrice(stopLimitPrice).
		StopLimitTimeInForce(binance.TimeInForceTypeGTC).
		ListClientOrderID(uuid.NewString()).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	result := &ports.ExitOrderResult{
		OrderListID:  resp.OrderListID,
		Symbol:       resp.Symbol,
		TransactTime: time.UnixMilli(resp.TransactionTime),
	}
	for _, report := range resp.OrderReports {
		switch report.Type {
		case binance.OrderTypeLimitMaker:
			result.ProfitOrderID = report.OrderID
		case binance.OrderTypeStopLossLimit:
			result.StopOrderID = report.OrderID
		}
	}
	if result.ProfitOrderID == 0 || result.StopOrderID == 0 {
		// Some response types omit the order reports; fall back to the
		// positional order list (stop leg first, limit maker second).
		if len(resp.Orders) == 2 {
			result.StopOrderID = resp.Orders[0].OrderID
			result.ProfitOrderID = resp.Orders[1].OrderID
		} else {
			err := fmt.Errorf("could not identify OCO legs for order list %d", resp.OrderListID)
			return nil, c.handleError(ctx, err, op)
		}
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":         symbol,
		"quantity":       quantity,
		"limitPrice":     limitPrice,
		"stopPrice":      stopPrice,
		"stopLimitPrice": stopLimitPrice,
		"orderListID":    result.OrderListID,
	})
	return result, nil
}

// PlaceLimitSell places a plain limit sell. Used as the fallback when OCO
// placement is rejected.
func (c *Client) PlaceLimitSell(ctx context.Context, symbol, quantity, price string) (*ports.OrderResult, error) {
	op := "PlaceLimitSell"
	order, err := c.spotClient.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(quantity).
		Price(price).
		NewClientOrderID(uuid.NewString()).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	result := translateCreateOrder(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":   symbol,
		"quantity": quantity,
		"price":    price,
		"orderID":  result.OrderID,
	})
	return result, nil
}

// GetOrderStatus retrieves the current state of a single order leg.
func (c *Client) GetOrderStatus(ctx context.Context, symbol string, orderID int64) (*ports.OrderResult, error) {
	op := "GetOrderStatus"
	order, err := c.spotClient.NewGetOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translateQueriedOrder(order), nil
}

// CancelOCO cancels an entire OCO order list.
func (c *Client) CancelOCO(ctx context.Context, symbol string, orderListID int64) error {
	op := "CancelOCO"
	_, err := c.spotClient.NewCancelOCOService().
		Symbol(symbol).
		OrderListID(orderListID).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderListID": orderListID})
	return nil
}

// GetKlines retrieves recent klines/candlestick data for the given symbol.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	binanceKlines, err := c.spotClient.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
		}
		domainKlines = append(domainKlines, dk)
	}
	return domainKlines, nil
}

// --- Translation Helpers ---

func translateCreateOrder(order *binance.CreateOrderResponse) *ports.OrderResult {
	if order == nil {
		return nil
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	quoteQty, _ := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
	transactTime := time.UnixMilli(order.TransactTime)

	fills := make([]domain.Fill, 0, len(order.Fills))
	for _, f := range order.Fills {
		fillPrice, _ := strconv.ParseFloat(f.Price, 64)
		fillQty, _ := strconv.ParseFloat(f.Quantity, 64)
		commission, _ := strconv.ParseFloat(f.Commission, 64)
		fills = append(fills, domain.Fill{
			OrderID:         strconv.FormatInt(order.OrderID, 10),
			TradeID:         f.TradeID,
			Symbol:          order.Symbol,
			Price:           fillPrice,
			Quantity:        fillQty,
			Commission:      commission,
			CommissionAsset: f.CommissionAsset,
			ExecutedAt:      transactTime,
		})
	}

	return &ports.OrderResult{
		OrderID:       order.OrderID,
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Price:         price,
		OrigQuantity:  origQty,
		ExecutedQty:   execQty,
		CumQuoteQty:   quoteQty,
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		TransactTime:  transactTime,
		Fills:         fills,
	}
}

func translateQueriedOrder(order *binance.Order) *ports.OrderResult {
	if order == nil {
		return nil
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	quoteQty, _ := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)

	return &ports.OrderResult{
		OrderID:       order.OrderID,
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Price:         price,
		OrigQuantity:  origQty,
		ExecutedQty:   execQty,
		CumQuoteQty:   quoteQty,
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		TransactTime:  time.UnixMilli(order.UpdateTime),
	}
}

func translateKline(bk *binance.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: time.UnixMilli(bk.CloseTime),
		Symbol:    symbol,   // Not carried in the kline payload
		Interval:  interval, // Not carried in the kline payload
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}
