package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoGuardBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Portfolio
	PortfolioPath string // TOML file listing the tradable cryptos

	// Strategy Parameters
	RSIPeriod     int     // e.g. 14
	EntryRSI      float64 // First-entry threshold, e.g. 35.0
	ReentryRSI    float64 // Re-entry threshold while positions are open, e.g. 30.0
	KlineInterval string  // Candle interval the RSI is computed on
	KlineLimit    int     // Candles fetched per evaluation

	// Buy Guards
	MaxTradeAmount     float64       // Hard cap per buy, quote units
	FreeBalancePct     float64       // Fraction of the free balance a single buy may use
	ReserveBalance     float64       // Quote balance never spent
	MinNotional        float64       // Smallest buy worth placing
	TradeCooldown      time.Duration // Wait between buys of the same symbol
	MaxDailyBuys       int           // Buys per day across all symbols (0 = unlimited)
	MaxActivePerSymbol int           // ACTIVE exit orders per symbol (0 = unlimited)

	// Exit Orders
	StopLossPct  float64 // Stop trigger distance below entry, percent
	StopLimitGap float64 // Stop limit leg distance below the trigger, percent
	KeepInAsset  bool    // Keep the profit-target fraction of each buy unprotected

	// Cycle Engine
	CycleInterval   time.Duration // Time between trading cycles
	CleanupEveryN   int           // Run ledger retention every Nth cycle (0 = never)
	RetentionDays   int           // Ledger rows older than this are purged
	PriceStaleAfter time.Duration // Price age beyond which valuations are flagged stale

	// Database
	DBPath string

	// Cycle Journal
	CycleLogDir string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// Dashboard
	DashboardPort int

	// Notifications (optional; a channel is enabled when its settings are set)
	TelegramToken   string
	TelegramChatID  string
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	EmailFrom       string
	EmailRecipients []string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Basic API Key validation (can be enhanced)
	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Portfolio
	cfg.PortfolioPath = getEnv("PORTFOLIO_PATH", "./config/cryptos.toml")
	if cfg.PortfolioPath == "" {
		errs = append(errs, "PORTFOLIO_PATH must be set")
	}

	// Strategy Parameters (using defaults if not set)
	cfg.RSIPeriod = getEnvAsInt("RSI_PERIOD", 14)
	cfg.EntryRSI = getEnvAsFloat("ENTRY_RSI", 35.0)
	cfg.ReentryRSI = getEnvAsFloat("REENTRY_RSI", 30.0)
	cfg.KlineInterval = getEnv("KLINE_INTERVAL", "1m")
	cfg.KlineLimit = getEnvAsInt("KLINE_LIMIT", 100)

	if cfg.RSIPeriod <= 0 {
		errs = append(errs, "RSI_PERIOD must be positive")
	}
	if cfg.EntryRSI <= 0 || cfg.EntryRSI > 100 {
		errs = append(errs, "ENTRY_RSI must be between 0 and 100")
	}
	if cfg.ReentryRSI <= 0 || cfg.ReentryRSI > cfg.EntryRSI {
		errs = append(errs, "REENTRY_RSI must be positive and not above ENTRY_RSI")
	}
	if cfg.KlineInterval == "" {
		errs = append(errs, "KLINE_INTERVAL must be set")
	}
	if cfg.KlineLimit <= cfg.RSIPeriod {
		errs = append(errs, "KLINE_LIMIT must exceed RSI_PERIOD")
	}

	// Buy Guards
	cfg.MaxTradeAmount, err = getEnvAsFloatRequired("MAX_TRADE_AMOUNT", 165.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_TRADE_AMOUNT: %v", err))
	} else if cfg.MaxTradeAmount <= 0 {
		errs = append(errs, "MAX_TRADE_AMOUNT must be positive")
	}

	cfg.FreeBalancePct, err = getEnvAsFloatRequired("FREE_BALANCE_PCT", 0.25)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FREE_BALANCE_PCT: %v", err))
	} else if cfg.FreeBalancePct <= 0 || cfg.FreeBalancePct > 1.0 {
		errs = append(errs, "FREE_BALANCE_PCT must be between 0.0 and 1.0")
	}

	cfg.ReserveBalance, err = getEnvAsFloatRequired("RESERVE_BALANCE", 21.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RESERVE_BALANCE: %v", err))
	} else if cfg.ReserveBalance < 0 {
		errs = append(errs, "RESERVE_BALANCE cannot be negative")
	}

	cfg.MinNotional, err = getEnvAsFloatRequired("MIN_NOTIONAL", 10.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_NOTIONAL: %v", err))
	} else if cfg.MinNotional < 0 {
		errs = append(errs, "MIN_NOTIONAL cannot be negative")
	}

	cooldownMinutes := getEnvAsInt("COOLDOWN_MINUTES", 30)
	if cooldownMinutes < 0 {
		errs = append(errs, "COOLDOWN_MINUTES cannot be negative")
	}
	cfg.TradeCooldown = time.Duration(cooldownMinutes) * time.Minute

	cfg.MaxDailyBuys = getEnvAsInt("MAX_DAILY_BUYS", 50)
	if cfg.MaxDailyBuys < 0 {
		errs = append(errs, "MAX_DAILY_BUYS cannot be negative")
	}

	cfg.MaxActivePerSymbol = getEnvAsInt("MAX_ACTIVE_PER_SYMBOL", 10)
	if cfg.MaxActivePerSymbol < 0 {
		errs = append(errs, "MAX_ACTIVE_PER_SYMBOL cannot be negative")
	}

	// Exit Orders
	cfg.StopLossPct, err = getEnvAsFloatRequired("STOP_LOSS_PCT", 8.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PCT: %v", err))
	} else if cfg.StopLossPct <= 0 || cfg.StopLossPct >= 100 {
		errs = append(errs, "STOP_LOSS_PCT must be between 0 and 100 (exclusive)")
	}

	cfg.StopLimitGap, err = getEnvAsFloatRequired("STOP_LIMIT_GAP", 2.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LIMIT_GAP: %v", err))
	} else if cfg.StopLimitGap < 0 || cfg.StopLimitGap >= 100 {
		errs = append(errs, "STOP_LIMIT_GAP must be between 0 and 100")
	}

	cfg.KeepInAsset = getEnvAsBool("KEEP_IN_ASSET", true)

	// Cycle Engine
	cycleMinutes := getEnvAsInt("CYCLE_INTERVAL_MINUTES", 15)
	if cycleMinutes <= 0 {
		errs = append(errs, "CYCLE_INTERVAL_MINUTES must be positive")
	}
	cfg.CycleInterval = time.Duration(cycleMinutes) * time.Minute

	cfg.CleanupEveryN = getEnvAsInt("CLEANUP_EVERY_N_CYCLES", 0)
	if cfg.CleanupEveryN < 0 {
		errs = append(errs, "CLEANUP_EVERY_N_CYCLES cannot be negative")
	}

	cfg.RetentionDays = getEnvAsInt("RETENTION_DAYS", 90)
	if cfg.RetentionDays <= 0 {
		errs = append(errs, "RETENTION_DAYS must be positive")
	}

	staleSeconds := getEnvAsInt("PRICE_STALE_SECONDS", 300)
	if staleSeconds <= 0 {
		errs = append(errs, "PRICE_STALE_SECONDS must be positive")
	}
	cfg.PriceStaleAfter = time.Duration(staleSeconds) * time.Second

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trading_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Cycle Journal
	cfg.CycleLogDir = getEnv("CYCLE_LOG_DIR", "./logs")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Dashboard
	cfg.DashboardPort = getEnvAsInt("DASHBOARD_PORT", 5000)
	if cfg.DashboardPort <= 0 || cfg.DashboardPort > 65535 {
		errs = append(errs, "DASHBOARD_PORT must be a valid port number")
	}

	// Notifications
	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")
	if (cfg.TelegramToken == "") != (cfg.TelegramChatID == "") {
		errs = append(errs, "TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	cfg.SMTPHost = getEnv("SMTP_HOST", "")
	cfg.SMTPPort = getEnvAsInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnv("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnv("SMTP_PASSWORD", "")
	cfg.EmailFrom = getEnv("EMAIL_FROM", "")
	cfg.EmailRecipients = getEnvAsSlice("EMAIL_RECIPIENTS")
	if cfg.SMTPHost != "" {
		if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
			errs = append(errs, "SMTP_PORT must be a valid port number")
		}
		if cfg.EmailFrom == "" {
			errs = append(errs, "EMAIL_FROM must be set when SMTP_HOST is set")
		}
		if len(cfg.EmailRecipients) == 0 {
			errs = append(errs, "EMAIL_RECIPIENTS must be set when SMTP_HOST is set")
		}
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}
