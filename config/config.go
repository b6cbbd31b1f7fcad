package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"perpRiskBot/internal/adapters/logger"
)

// Supported exchanges.
const (
	ExchangeBybit   = "bybit"
	ExchangeBinance = "binance"
)

// Config holds process configuration. Trading settings live in the database,
// not here.
type Config struct {
	// Exchange
	Exchange   string // bybit or binance
	APIKey     string // key for the selected exchange
	SecretKey  string
	IsTestnet  bool
	QuoteAsset string

	// Engine
	OHLCVLimit        int
	EntryPollInterval time.Duration
	ErrorBackoff      time.Duration
	AutoStart         bool

	// Strategy Parameters
	StrategyFastEMA       int
	StrategySlowEMA       int
	StrategyMinCloses     int
	StrategyRSIPeriod     int // 0 disables the RSI filter
	StrategyRSIOverbought float64
	StrategyRSIOversold   float64

	// Seeds for the settings row on first creation.
	DefaultSymbol    string
	DefaultTimeframe string

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat logger.Format

	// Control surface
	HTTPAddr string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.Exchange = strings.ToLower(getEnv("EXCHANGE", ExchangeBybit))
	switch cfg.Exchange {
	case ExchangeBybit:
		cfg.APIKey = getEnv("BYBIT_API_KEY", "")
		cfg.SecretKey = getEnv("BYBIT_API_SECRET", "")
	case ExchangeBinance:
		cfg.APIKey = getEnv("BINANCE_API_KEY", "")
		cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	default:
		errs = append(errs, fmt.Sprintf("EXCHANGE must be %q or %q, got %q", ExchangeBybit, ExchangeBinance, cfg.Exchange))
	}
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	cfg.QuoteAsset = strings.ToUpper(getEnv("QUOTE_ASSET", "USDT"))

	cfg.OHLCVLimit, err = getEnvAsIntRequired("OHLCV_LIMIT", 200)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid OHLCV_LIMIT: %v", err))
	} else if cfg.OHLCVLimit <= 0 {
		errs = append(errs, "OHLCV_LIMIT must be positive")
	}

	cfg.EntryPollInterval, err = getEnvAsDuration("ENTRY_POLL_INTERVAL", 700*time.Millisecond)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ENTRY_POLL_INTERVAL: %v", err))
	} else if cfg.EntryPollInterval <= 0 {
		errs = append(errs, "ENTRY_POLL_INTERVAL must be positive")
	}

	cfg.ErrorBackoff, err = getEnvAsDuration("ERROR_BACKOFF", 3*time.Second)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ERROR_BACKOFF: %v", err))
	} else if cfg.ErrorBackoff < 0 {
		errs = append(errs, "ERROR_BACKOFF cannot be negative")
	}

	cfg.AutoStart = getEnvAsBool("AUTO_START", false)

	// Strategy Parameters (using defaults if not set)
	cfg.StrategyFastEMA = getEnvAsInt("STRATEGY_FAST_EMA", 20)
	cfg.StrategySlowEMA = getEnvAsInt("STRATEGY_SLOW_EMA", 50)
	cfg.StrategyMinCloses = getEnvAsInt("STRATEGY_MIN_CLOSES", 60)
	cfg.StrategyRSIPeriod = getEnvAsInt("STRATEGY_RSI_PERIOD", 0)
	cfg.StrategyRSIOverbought = getEnvAsFloat("STRATEGY_RSI_OVERBOUGHT", 70.0)
	cfg.StrategyRSIOversold = getEnvAsFloat("STRATEGY_RSI_OVERSOLD", 30.0)

	if cfg.StrategyFastEMA <= 0 || cfg.StrategySlowEMA <= 0 {
		errs = append(errs, "strategy EMA periods must be positive")
	}
	if cfg.StrategyFastEMA >= cfg.StrategySlowEMA {
		errs = append(errs, "STRATEGY_FAST_EMA must be less than STRATEGY_SLOW_EMA")
	}
	if cfg.StrategyMinCloses < 0 || cfg.StrategyRSIPeriod < 0 {
		errs = append(errs, "STRATEGY_MIN_CLOSES and STRATEGY_RSI_PERIOD cannot be negative")
	}
	if cfg.StrategyRSIOverbought <= cfg.StrategyRSIOversold || cfg.StrategyRSIOverbought > 100 || cfg.StrategyRSIOversold < 0 {
		errs = append(errs, "invalid RSI thresholds (Overbought must be > Oversold, between 0-100)")
	}

	cfg.DefaultSymbol = strings.ToUpper(getEnv("DEFAULT_SYMBOL", "BTCUSDT"))
	cfg.DefaultTimeframe = getEnv("DEFAULT_TIMEFRAME", "5m")

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/perp_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = logger.ParseFormat(getEnv("LOG_FORMAT", "json"))

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

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
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
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

// getEnvAsDuration accepts Go duration strings ("700ms", "3s").
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
