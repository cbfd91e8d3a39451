// Package fills turns the partial executions of one buy order into a single
// logical position. Every fill contributes to the aggregate; collapsing the
// list to its first element silently truncates the protected quantity, which
// is the one regression this package exists to prevent.
package fills

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jpillora/backoff"

	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"
)

// QuantityTolerance is the absolute rounding slack allowed between the sum
// of fill quantities and the executed quantity the venue reports.
const QuantityTolerance = 1e-8

// Source is the slice of the exchange client the aggregator depends on.
type Source interface {
	GetOrderFills(ctx context.Context, symbol string, orderID int64) ([]domain.Fill, error)
}

// Config holds the dependencies and retry policy for an Aggregator.
type Config struct {
	Source      Source
	Logger      ports.Logger
	MaxAttempts int           // Re-fetch attempts before giving up (default 5)
	RetryMin    time.Duration // Initial backoff delay (default 500ms)
	RetryMax    time.Duration // Backoff ceiling (default 8s)
}

// Aggregator collects and folds the fills of completed buy orders.
type Aggregator struct {
	source      Source
	logger      ports.Logger
	maxAttempts int
	retryMin    time.Duration
	retryMax    time.Duration
}

// New creates an Aggregator, applying retry defaults where the config is
// silent.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Source == nil {
		return nil, errors.New("fill source is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = 500 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 8 * time.Second
	}
	return &Aggregator{
		source:      cfg.Source,
		logger:      cfg.Logger,
		maxAttempts: cfg.MaxAttempts,
		retryMin:    cfg.RetryMin,
		retryMax:    cfg.RetryMax,
	}, nil
}

// Aggregate folds every fill into one Position: total quantity is the sum
// over all fills and the average price is volume-weighted. Fails with
// ErrIncompleteFillData when the list is empty or sums to nothing.
func Aggregate(fills []domain.Fill) (*domain.Position, error) {
	if len(fills) == 0 {
		return nil, fmt.Errorf("aggregate: %w: no fills observed", ports.ErrIncompleteFillData)
	}

	var totalQty, weighted, commission float64
	first, last := fills[0].ExecutedAt, fills[0].ExecutedAt
	for _, f := range fills {
		totalQty += f.Quantity
		weighted += f.Price * f.Quantity
		commission += f.Commission
		if f.ExecutedAt.Before(first) {
			first = f.ExecutedAt
		}
		if f.ExecutedAt.After(last) {
			last = f.ExecutedAt
		}
	}
	if totalQty <= 0 {
		return nil, fmt.Errorf("aggregate: %w: fills sum to zero quantity", ports.ErrIncompleteFillData)
	}

	return &domain.Position{
		Symbol:        fills[0].Symbol,
		OrderID:       fills[0].OrderID,
		TotalQuantity: totalQty,
		AvgPrice:      weighted / totalQty,
		Commission:    commission,
		FirstFillAt:   first,
		LastFillAt:    last,
		FillCount:     len(fills),
	}, nil
}

// Collect returns the aggregated position for a buy order the venue reports
// as executed. It starts from the fills returned inline with the order and
// re-fetches the list with bounded backoff while it is missing or short of
// executedQty. After the final attempt it fails with ErrIncompleteFillData;
// the caller must not protect the position on a possibly-wrong quantity.
func (a *Aggregator) Collect(ctx context.Context, symbol string, orderID int64, inline []domain.Fill, executedQty float64) (*domain.Position, []domain.Fill, error) {
	op := "Collect"
	fills := inline

	b := &backoff.Backoff{Min: a.retryMin, Max: a.retryMax, Factor: 2, Jitter: true}
	for attempt := 1; !complete(fills, executedQty); attempt++ {
		if attempt > a.maxAttempts {
			a.logger.Error(ctx, ports.ErrIncompleteFillData, "giving up on fill collection",
				map[string]interface{}{"op": op, "symbol": symbol, "orderID": orderID, "attempts": a.maxAttempts, "haveQty": sumQuantity(fills), "wantQty": executedQty})
			return nil, fills, fmt.Errorf("%s: order %d: %w", op, orderID, ports.ErrIncompleteFillData)
		}

		delay := b.Duration()
		a.logger.Warn(ctx, "fill list incomplete, re-fetching",
			map[string]interface{}{"op": op, "symbol": symbol, "orderID": orderID, "attempt": attempt, "delay": delay.String(), "haveQty": sumQuantity(fills), "wantQty": executedQty})

		select {
		case <-ctx.Done():
			return nil, fills, fmt.Errorf("%s: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
		case <-time.After(delay):
		}

		fetched, err := a.source.GetOrderFills(ctx, symbol, orderID)
		if err != nil {
			// Transient exchange trouble rides the same backoff as a short
			// fill list; the attempt budget bounds both.
			a.logger.Warn(ctx, "fill fetch failed",
				map[string]interface{}{"op": op, "symbol": symbol, "orderID": orderID, "attempt": attempt, "error": err.Error()})
			continue
		}
		if len(fetched) > 0 {
			// The trade listing is authoritative over inline fills.
			fills = fetched
		}
	}

	pos, err := Aggregate(fills)
	if err != nil {
		return nil, fills, err
	}
	a.logger.Debug(ctx, "fills aggregated",
		map[string]interface{}{"op": op, "symbol": symbol, "orderID": orderID, "fills": pos.FillCount, "totalQty": pos.TotalQuantity, "avgPrice": pos.AvgPrice})
	return pos, fills, nil
}

// BuyTransactions maps fills to the BUY transaction rows recorded for audit
// granularity: one row per fill, never one per order.
func BuyTransactions(fills []domain.Fill, orderType domain.OrderType) []*domain.Transaction {
	txs := make([]*domain.Transaction, 0, len(fills))
	for _, f := range fills {
		txs = append(txs, &domain.Transaction{
			Symbol:          f.Symbol,
			OrderID:         f.OrderID,
			TradeID:         f.TradeID,
			Side:            domain.Buy,
			OrderType:       orderType,
			Price:           f.Price,
			Quantity:        f.Quantity,
			Commission:      f.Commission,
			CommissionAsset: f.CommissionAsset,
			TransactTime:    f.ExecutedAt,
		})
	}
	return txs
}

// complete reports whether the fill list fully covers the executed quantity
// the venue reported. A non-positive executedQty only requires a non-empty
// list (the caller could not learn the executed quantity).
func complete(fills []domain.Fill, executedQty float64) bool {
	if len(fills) == 0 {
		return false
	}
	if executedQty <= 0 {
		return true
	}
	return math.Abs(sumQuantity(fills)-executedQty) <= QuantityTolerance
}

func sumQuantity(fills []domain.Fill) float64 {
	var total float64
	for _, f := range fills {
		total += f.Quantity
	}
	return total
}
