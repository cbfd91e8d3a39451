package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"cryptoGuardBot/config"
	"cryptoGuardBot/internal/adapters/logger"
	"cryptoGuardBot/internal/adapters/sqlite"
)

func main() {
	days := flag.Int("days", 90, "purge completed rows older than this many days")
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	backupDir := flag.String("backup-dir", "", "directory for the pre-purge backup (default: next to the database)")
	flag.Parse()

	if *days <= 0 {
		fmt.Fprintln(os.Stderr, "-days must be positive")
		os.Exit(2)
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Orphan scan first: purging with dangling cross-references usually
	// means something upstream misbehaved, so surface it before deleting.
	orphans, err := repo.FindOrphans(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Orphan scan failed")
		log.Fatalf("FATAL: Orphan scan failed: %v", err)
	}
	fmt.Printf("Database: %s\n", cfg.DBPath)
	fmt.Printf("Unprotected buys (no exit order): %d\n", len(orphans.BuysWithoutExit))
	for _, id := range orphans.BuysWithoutExit {
		fmt.Printf("  buy %s\n", id)
	}
	fmt.Printf("Orphaned exit orders (no matching buy): %d\n", len(orphans.ExitOrdersWithoutBuy))
	for _, id := range orphans.ExitOrdersWithoutBuy {
		fmt.Printf("  exit order %s\n", id)
	}
	fmt.Printf("Orphaned history rows (no matching exit order): %d\n", len(orphans.HistoryWithoutOrder))
	for _, id := range orphans.HistoryWithoutOrder {
		fmt.Printf("  history %s\n", id)
	}

	cutoff := time.Now().AddDate(0, 0, -*days)
	fmt.Printf("\nAbout to purge completed rows older than %s (%d days).\n", cutoff.Format("2006-01-02"), *days)
	fmt.Println("Active exit orders and their buys are kept regardless of age.")

	if !*yes {
		fmt.Print("Proceed? [y/N] ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			log.Fatalf("FATAL: Failed to read confirmation: %v", err)
		}
		if strings.ToLower(strings.TrimSpace(line)) != "y" {
			fmt.Println("Aborted.")
			return
		}
	}

	// Always back up before deleting anything.
	backupPath, err := repo.Backup(ctx, *backupDir)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Backup failed, nothing was purged")
		log.Fatalf("FATAL: Backup failed, nothing was purged: %v", err)
	}
	fmt.Printf("Backup written to %s\n", backupPath)

	result, err := repo.PurgeOld(ctx, cutoff)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Purge failed")
		log.Fatalf("FATAL: Purge failed: %v", err)
	}
	fmt.Printf("Purged %d transactions, %d exit orders, %d history rows.\n",
		result.Transactions, result.ExitOrders, result.History)
}
