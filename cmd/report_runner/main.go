package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"cryptoGuardBot/config"
	"cryptoGuardBot/internal/adapters/binanceclient"
	"cryptoGuardBot/internal/adapters/logger"
	"cryptoGuardBot/internal/adapters/notify"
	"cryptoGuardBot/internal/adapters/sqlite"
	"cryptoGuardBot/internal/cyclelog"
	"cryptoGuardBot/internal/portfolio"
	"cryptoGuardBot/internal/ports"
	"cryptoGuardBot/internal/report"
)

func main() {
	periodFlag := flag.String("period", "day", "report window: day or week")
	dryRun := flag.Bool("dry-run", false, "print the report instead of sending it")
	flag.Parse()

	var period report.Period
	switch *periodFlag {
	case "day":
		period = report.PeriodDay
	case "week":
		period = report.PeriodWeek
	default:
		fmt.Fprintf(os.Stderr, "unknown period %q (want day or week)\n", *periodFlag)
		os.Exit(2)
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

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

	// 5. Initialize Exchange Client (valuation prices; the report degrades
	// to ledger prices when the exchange is unreachable)
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

	// 6. Assemble the Report Sources
	classifier, err := portfolio.New(portfolio.Config{
		Prices:     binanceClient,
		Ledger:     repo,
		Logger:     appLogger,
		StaleAfter: cfg.PriceStaleAfter,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize classifier")
		log.Fatalf("FATAL: Failed to initialize classifier: %v", err)
	}
	summarizer, err := portfolio.NewSummarizer(portfolio.SummaryConfig{
		Balances:   binanceClient,
		Prices:     binanceClient,
		Logger:     appLogger,
		QuoteAsset: pf.QuoteAsset,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize summarizer")
		log.Fatalf("FATAL: Failed to initialize summarizer: %v", err)
	}

	aggregator, err := report.New(report.Config{
		Ledger:     repo,
		Classifier: classifier,
		Journal:    cyclelog.New(cfg.CycleLogDir),
		Summarizer: summarizer,
		Health:     report.NewHealthCollector(filepath.Dir(cfg.DBPath), appLogger),
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize report aggregator")
		log.Fatalf("FATAL: Failed to initialize report aggregator: %v", err)
	}

	// 7. Build and Render
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rep := aggregator.Build(ctx, period, time.Now())
	// Subject carries the condensed line so the report is readable from
	// the inbox or notification preview alone.
	subject := report.Condensed(rep, pf.QuoteAsset)
	text := report.Render(rep, pf.QuoteAsset)

	if *dryRun {
		fmt.Println(subject)
		fmt.Println()
		fmt.Println(text)
		if len(rep.Problems) > 0 {
			fmt.Fprintf(os.Stderr, "report degraded: %d section problem(s)\n", len(rep.Problems))
		}
		return
	}

	// 8. Deliver
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

	if err := notifier.Send(ctx, subject, text); err != nil {
		appLogger.Error(ctx, err, "Report delivery failed")
		log.Fatalf("FATAL: Report delivery failed: %v", err)
	}
	appLogger.Info(ctx, "Report delivered", map[string]interface{}{
		"period":     string(period),
		"channels":   len(senders),
		"problems":   len(rep.Problems),
		"lastRunAge": report.LastRunAge(rep, time.Now()),
	})
}
