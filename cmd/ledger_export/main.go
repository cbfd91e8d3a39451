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
	"cryptoGuardBot/internal/adapters/logger"
	"cryptoGuardBot/internal/adapters/sqlite"
	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/ports"
	"cryptoGuardBot/internal/utils"
)

func main() {
	out := flag.String("out", "data/ledger_export.csv", "destination CSV for transactions")
	historyOut := flag.String("history-out", "", "optional destination CSV for completed exit history")
	symbol := flag.String("symbol", "", "restrict the export to one symbol, e.g. SOLUSDC")
	status := flag.String("status", "", "restrict the history export to one terminal status: PROFIT_FILLED, STOP_FILLED or CANCELLED")
	days := flag.Int("days", 0, "export only the last N days (0 = everything)")
	flag.Parse()

	exitStatus := domain.ExitOrderStatus(*status)
	if *status != "" && !exitStatus.IsTerminal() {
		log.Fatalf("FATAL: Unknown history status %q (want PROFIT_FILLED, STOP_FILLED or CANCELLED)", *status)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

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

	var since time.Time
	if *days > 0 {
		since = time.Now().AddDate(0, 0, -*days)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	txs, err := repo.FindTransactions(ctx, ports.TransactionFilter{
		Symbol: *symbol,
		Since:  since,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load transactions")
		log.Fatalf("FATAL: Failed to load transactions: %v", err)
	}

	if dir := filepath.Dir(*out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("FATAL: Failed to create output directory: %v", err)
		}
	}
	if err := utils.WriteTransactionsToCSV(txs, *out); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to write transaction CSV")
		log.Fatalf("FATAL: Failed to write transaction CSV: %v", err)
	}
	fmt.Printf("Wrote %d transactions to %s\n", len(txs), *out)

	if *historyOut == "" {
		return
	}

	records, err := repo.FindHistory(ctx, ports.HistoryFilter{
		Symbol: *symbol,
		Status: exitStatus,
		Since:  since,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load exit history")
		log.Fatalf("FATAL: Failed to load exit history: %v", err)
	}
	if dir := filepath.Dir(*historyOut); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("FATAL: Failed to create output directory: %v", err)
		}
	}
	if err := utils.WriteHistoryToCSV(records, *historyOut); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to write history CSV")
		log.Fatalf("FATAL: Failed to write history CSV: %v", err)
	}
	fmt.Printf("Wrote %d history records to %s\n", len(records), *historyOut)
}
