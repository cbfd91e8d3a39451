package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptoGuardBot/config"
	"cryptoGuardBot/internal/adapters/binanceclient"
	"cryptoGuardBot/internal/adapters/logger"
	"cryptoGuardBot/internal/adapters/sqlite"
	"cryptoGuardBot/internal/server"
)

// version is stamped by the build; "dev" when run from source.
var version = "dev"

func main() {
	port := flag.Int("port", 0, "listen port (overrides DASHBOARD_PORT)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	if *port == 0 {
		*port = cfg.DashboardPort
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Load Portfolio
	pf, err := config.LoadPortfolio(cfg.PortfolioPath)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to load portfolio")
		log.Fatalf("FATAL: Failed to load portfolio: %v", err)
	}

	// 4. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 5. Initialize Exchange Client (prices and balances for the portfolio
	// endpoints; the dashboard works read-only without trade permissions)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 6. Initialize the HTTP Server
	srv, err := server.New(server.Config{
		Port:      *port,
		Version:   version,
		Store:     repo,
		Balances:  binanceClient,
		Prices:    binanceClient,
		Portfolio: pf,
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize dashboard server")
		log.Fatalf("FATAL: Failed to initialize dashboard server: %v", err)
	}

	// 7. Serve until a shutdown signal arrives
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		appLogger.Info(context.Background(), "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			appLogger.Error(ctx, err, "Dashboard server shutdown failed")
			log.Fatalf("FATAL: Dashboard server shutdown failed: %v", err)
		}
		<-errCh
	case err := <-errCh:
		if err != nil {
			appLogger.Error(context.Background(), err, "Dashboard server exited with error")
			log.Fatalf("FATAL: Dashboard server exited with error: %v", err)
		}
	}

	appLogger.Info(context.Background(), "Dashboard stopped.")
}
