// Package server exposes the bot's ledger and portfolio as a read-only
// HTTP API for the dashboard. Every handler is a synchronous pull query;
// writes stay with the bot process.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cryptoGuardBot/config"
	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"
)

// Store is the ledger slice the read API serves.
type Store interface {
	QuickStats(ctx context.Context) (*ports.QuickStats, error)
	FindTransactions(ctx context.Context, filter ports.TransactionFilter) ([]*domain.Transaction, error)
	FindActive(ctx context.Context, symbol string) ([]*domain.ExitOrder, error)
	FindHistory(ctx context.Context, filter ports.HistoryFilter) ([]*domain.HistoryRecord, error)
	PeriodTotals(ctx context.Context, since time.Time) (*ports.PeriodTotals, error)
}

// Balances provides the spot account balances.
type Balances interface {
	GetAccountBalances(ctx context.Context) ([]ports.Balance, error)
}

// Prices provides the latest market price per symbol.
type Prices interface {
	GetLatestPrice(ctx context.Context, symbol string) (*ports.PriceQuote, error)
}

// Config holds the dashboard server dependencies and settings.
type Config struct {
	Port        int      // Defaults to 5000
	CORSOrigins []string // Empty allows all origins
	Version     string   // Reported by the health endpoint

	Store     Store
	Balances  Balances
	Prices    Prices
	Portfolio *config.Portfolio
	Logger    ports.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	httpServer *http.Server
	logger     ports.Logger
}

// New creates a Server with all routes registered.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("ledger store is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	port := cfg.Port
	if port == 0 {
		port = 5000
	}

	h := &handlers{
		store:     cfg.Store,
		balances:  cfg.Balances,
		prices:    cfg.Prices,
		portfolio: cfg.Portfolio,
		logger:    cfg.Logger,
		version:   cfg.Version,
		now:       time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.health)
	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("GET /api/stats/transactions", h.transactions)
	mux.HandleFunc("GET /api/orders", h.activeOrders)
	mux.HandleFunc("GET /api/orders/history", h.orderHistory)
	mux.HandleFunc("GET /api/portfolio", h.portfolioSummary)
	mux.HandleFunc("GET /api/portfolio/performance", h.performance)

	var handler http.Handler = mux
	handler = requestLogging(cfg.Logger)(handler)
	handler = cors(cfg.CORSOrigins)(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: cfg.Logger}, nil
}

// Start listens for HTTP requests. It blocks until the server fails or is
// shut down.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "Dashboard server starting", map[string]interface{}{
		"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "Dashboard server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard server shutdown: %w", err)
	}
	return nil
}
