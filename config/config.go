package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"coinPilot/internal/adapters/logger"
	"coinPilot/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (required only for real trading)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading
	Symbols             []string
	QuoteAsset          string
	DefaultMode         domain.TradeMode
	DefaultStrategy     domain.StrategyID
	AutoSelect          bool // start with the strategy-review loop enabled
	AutoStart           bool // start trading immediately on boot
	TradingInterval     time.Duration
	ReviewInterval      time.Duration
	PriceBatchSize      int
	PriceBatchDelay     time.Duration
	MinReviewConfidence float64
	MinStrategyDwell    time.Duration

	// Entry admission: "all" admits every tick, "token_bucket" throttles.
	AdmissionPolicy string
	EntryBurst      int
	EntryInterval   time.Duration

	// Paper trading
	PaperInitialBalance float64

	// Database
	DBPath string

	// HTTP API
	ServerHost     string
	ServerPort     int
	ProductionMode bool

	// Logging
	LogLevel  zerolog.Level
	LogPretty bool
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	cfg.DefaultMode = domain.TradeMode(getEnv("TRADE_MODE", string(domain.ModePaper)))
	if !cfg.DefaultMode.IsValid() {
		errs = append(errs, fmt.Sprintf("invalid TRADE_MODE %q (paper or real)", cfg.DefaultMode))
	}
	if cfg.DefaultMode == domain.ModeReal {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set for real trading")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set for real trading")
		}
	}

	cfg.DefaultStrategy = domain.StrategyID(getEnv("DEFAULT_STRATEGY", string(domain.StrategyAdaptive)))
	if !cfg.DefaultStrategy.IsValid() {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_STRATEGY %q", cfg.DefaultStrategy))
	}
	cfg.AutoSelect = getEnvAsBool("AUTO_SELECT_STRATEGY", true)
	cfg.AutoStart = getEnvAsBool("AUTO_START", false)

	symbolsRaw := getEnv("SYMBOLS", "BTCUSDT,ETHUSDT,BNBUSDT,SOLUSDT,XRPUSDT,ADAUSDT")
	for _, s := range strings.Split(symbolsRaw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Symbols = append(cfg.Symbols, strings.ToUpper(s))
		}
	}
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}
	cfg.QuoteAsset = strings.ToUpper(getEnv("QUOTE_ASSET", "USDT"))

	tradingIntervalSec := getEnvAsInt("TRADING_INTERVAL_SECONDS", 30)
	if tradingIntervalSec <= 0 {
		errs = append(errs, "TRADING_INTERVAL_SECONDS must be positive")
	}
	cfg.TradingInterval = time.Duration(tradingIntervalSec) * time.Second

	reviewIntervalSec := getEnvAsInt("REVIEW_INTERVAL_SECONDS", 300)
	if reviewIntervalSec <= 0 {
		errs = append(errs, "REVIEW_INTERVAL_SECONDS must be positive")
	}
	cfg.ReviewInterval = time.Duration(reviewIntervalSec) * time.Second

	cfg.PriceBatchSize = getEnvAsInt("PRICE_BATCH_SIZE", 5)
	if cfg.PriceBatchSize <= 0 {
		errs = append(errs, "PRICE_BATCH_SIZE must be positive")
	}
	cfg.PriceBatchDelay = time.Duration(getEnvAsInt("PRICE_BATCH_DELAY_MS", 200)) * time.Millisecond

	cfg.MinReviewConfidence = getEnvAsFloat("MIN_REVIEW_CONFIDENCE", 70)
	if cfg.MinReviewConfidence < 0 || cfg.MinReviewConfidence > 100 {
		errs = append(errs, "MIN_REVIEW_CONFIDENCE must be between 0 and 100")
	}
	cfg.MinStrategyDwell = time.Duration(getEnvAsInt("MIN_STRATEGY_DWELL_MINUTES", 30)) * time.Minute

	cfg.AdmissionPolicy = strings.ToLower(getEnv("ADMISSION_POLICY", "all"))
	if cfg.AdmissionPolicy != "all" && cfg.AdmissionPolicy != "token_bucket" {
		errs = append(errs, fmt.Sprintf("invalid ADMISSION_POLICY %q (all or token_bucket)", cfg.AdmissionPolicy))
	}
	cfg.EntryBurst = getEnvAsInt("ENTRY_BURST", 3)
	cfg.EntryInterval = time.Duration(getEnvAsInt("ENTRY_INTERVAL_SECONDS", 120)) * time.Second

	cfg.PaperInitialBalance = getEnvAsFloat("PAPER_INITIAL_BALANCE", 10000)
	if cfg.PaperInitialBalance <= 0 {
		errs = append(errs, "PAPER_INITIAL_BALANCE must be positive")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/coinpilot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.ServerHost = getEnv("SERVER_HOST", "0.0.0.0")
	cfg.ServerPort = getEnvAsInt("SERVER_PORT", 8080)
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		errs = append(errs, "SERVER_PORT must be a valid port number")
	}
	cfg.ProductionMode = getEnvAsBool("PRODUCTION_MODE", false)

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogPretty = getEnvAsBool("LOG_PRETTY", !cfg.ProductionMode)

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
