package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"cryptoGuardBot/config"
	"cryptoGuardBot/internal/adapters/binanceclient"
	"cryptoGuardBot/internal/adapters/logger"
	"cryptoGuardBot/internal/adapters/notify"
	"cryptoGuardBot/internal/adapters/sqlite"
	"cryptoGuardBot/internal/app"
	"cryptoGuardBot/internal/cyclelog"
	"cryptoGuardBot/internal/exitorder"
	"cryptoGuardBot/internal/fills"
	"cryptoGuardBot/internal/ports"
	"cryptoGuardBot/internal/risk"
	"cryptoGuardBot/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
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
	if total := pf.TotalAllocation(); total > 1.0 {
		appLogger.Warn(context.Background(), "Portfolio allocations sum above 1.0; targets cannot all be reached at once",
			map[string]interface{}{"totalAllocation": total})
	}
	appLogger.Info(context.Background(), "Portfolio loaded", map[string]interface{}{
		"path":    cfg.PortfolioPath,
		"cryptos": len(pf.Active()),
	})

	// 4. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 5. Initialize Exchange Client (Binance Adapter)
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
	appLogger.Info(context.Background(), "Binance client initialized")

	// 6. Initialize Notification Channels
	var senders []ports.Notifier
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegramSender(notify.TelegramConfig{
			Token:  cfg.TelegramToken,
			ChatID: cfg.TelegramChatID,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Telegram sender")
			log.Fatalf("FATAL: Failed to initialize Telegram sender: %v", err)
		}
		senders = append(senders, tg)
	}
	if cfg.SMTPHost != "" {
		email, err := notify.NewEmailSender(notify.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
			To:       cfg.EmailRecipients,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize email sender")
			log.Fatalf("FATAL: Failed to initialize email sender: %v", err)
		}
		senders = append(senders, email)
	}
	notifier, err := notify.NewDispatcher(appLogger, senders...)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize notification dispatcher")
		log.Fatalf("FATAL: Failed to initialize notification dispatcher: %v", err)
	}
	appLogger.Info(context.Background(), "Notification channels initialized", map[string]interface{}{"channels": len(senders)})

	// 7. Initialize Strategy
	strat, err := strategy.New(strategy.Config{
		RSIPeriod:  cfg.RSIPeriod,
		EntryRSI:   cfg.EntryRSI,
		ReentryRSI: cfg.ReentryRSI,
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading strategy")
		log.Fatalf("FATAL: Failed to initialize trading strategy: %v", err)
	}
	appLogger.Info(context.Background(), "Trading strategy initialized")

	// 8. Initialize Trading Components
	riskMgr, err := risk.NewRiskManager(risk.RiskConfig{
		MaxTradeAmount:     cfg.MaxTradeAmount,
		FreeBalancePct:     cfg.FreeBalancePct,
		ReserveBalance:     cfg.ReserveBalance,
		MinNotional:        cfg.MinNotional,
		Cooldown:           cfg.TradeCooldown,
		MaxDailyBuys:       cfg.MaxDailyBuys,
		MaxActivePerSymbol: cfg.MaxActivePerSymbol,
	}, repo, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize risk manager")
		log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
	}

	aggregator, err := fills.New(fills.Config{
		Source: binanceClient,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize fill aggregator")
		log.Fatalf("FATAL: Failed to initialize fill aggregator: %v", err)
	}

	exits, err := exitorder.New(exitorder.Config{
		Exchange:     binanceClient,
		Repo:         repo,
		Logger:       appLogger,
		StopLimitGap: cfg.StopLimitGap,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize exit order manager")
		log.Fatalf("FATAL: Failed to initialize exit order manager: %v", err)
	}
	appLogger.Info(context.Background(), "Trading components initialized")

	// 9. Initialize Application Service
	tradingService, err := app.NewTradingService(app.Config{
		Cfg:       cfg,
		Portfolio: pf,
		Logger:    appLogger,
		Exchange:  binanceClient,
		Store:     repo,
		Strategy:  strat,
		Risk:      riskMgr,
		Fills:     aggregator,
		Exits:     exits,
		Journal:   cyclelog.New(cfg.CycleLogDir),
		Notifier:  notifier,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(context.Background(), "Trading service initialized")

	// 10. Start the Service
	// Use context.Background() as the base context for the application run
	if err := tradingService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
