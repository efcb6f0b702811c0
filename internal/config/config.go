// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/meridianfund/meridian/internal/domain"
)

// Interval bounds for the autonomous trading loop, in minutes.
const (
	MinTradingIntervalMinutes = 5
	MaxTradingIntervalMinutes = 240
)

// Config holds application configuration. Built once at startup and passed
// by reference into every component; nothing reads ambient state afterwards.
type Config struct {
	DataDir string // Base directory for databases and the disk cache

	// Universe and pipeline
	Tickers          []string
	SelectedAnalysts []string // empty = all registered analysts
	InitialCash      float64

	// Risk limits
	MaxPositionSize      float64 // global per-position cap in dollars
	MaxPortfolioValue    float64 // total exposure cap in dollars
	PerTickerExposureCap float64 // fraction of portfolio value per ticker

	// Scheduling
	TradingInterval  time.Duration
	MarketHoursOnly  bool
	RetryAttempts    int
	RetryDelay       time.Duration
	CycleTimeout     time.Duration
	AnalystTimeout   time.Duration
	MarketPollPeriod time.Duration

	// Execution
	TradingMode domain.TradingMode

	// Collaborator endpoints
	MarketDataBaseURL string
	MarketDataAPIKey  string
	OracleBaseURL     string
	OracleAPIKey      string
	BrokerBaseURL     string
	BrokerAPIKey      string
	BrokerAPISecret   string

	// Backup (optional; disabled when Bucket is empty)
	BackupBucket    string
	BackupEndpoint  string
	BackupAccessKey string
	BackupSecretKey string
	BackupRetention int // days

	LogLevel string
	Port     int
	DevMode  bool
}

// Load reads configuration from environment variables.
// A .env file in the working directory is honored if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("MERIDIAN_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		Tickers:          splitList(getEnv("TICKERS", "")),
		SelectedAnalysts: splitList(getEnv("SELECTED_ANALYSTS", "")),
		InitialCash:      getEnvAsFloat("INITIAL_CASH", 100000.0),

		MaxPositionSize:      getEnvAsFloat("MAX_POSITION_SIZE", 25000.0),
		MaxPortfolioValue:    getEnvAsFloat("MAX_PORTFOLIO_VALUE", 1000000.0),
		PerTickerExposureCap: getEnvAsFloat("PER_TICKER_EXPOSURE_CAP", 0.20),

		TradingInterval:  time.Duration(getEnvAsInt("TRADING_INTERVAL_MINUTES", 60)) * time.Minute,
		MarketHoursOnly:  getEnvAsBool("MARKET_HOURS_ONLY", true),
		RetryAttempts:    getEnvAsInt("RETRY_ATTEMPTS", 3),
		RetryDelay:       time.Duration(getEnvAsInt("RETRY_DELAY_SECONDS", 5)) * time.Second,
		CycleTimeout:     time.Duration(getEnvAsInt("CYCLE_TIMEOUT_SECONDS", 300)) * time.Second,
		AnalystTimeout:   time.Duration(getEnvAsInt("ANALYST_TIMEOUT_SECONDS", 60)) * time.Second,
		MarketPollPeriod: time.Duration(getEnvAsInt("MARKET_POLL_SECONDS", 60)) * time.Second,

		TradingMode: domain.TradingMode(getEnv("TRADING_MODE", string(domain.ModePaper))),

		MarketDataBaseURL: getEnv("FINANCIAL_DATASETS_BASE_URL", "https://api.financialdatasets.ai"),
		MarketDataAPIKey:  getEnv("FINANCIAL_DATASETS_API_KEY", ""),
		OracleBaseURL:     getEnv("ORACLE_BASE_URL", ""), // empty = built-in rule policy
		OracleAPIKey:      getEnv("ORACLE_API_KEY", ""),
		BrokerBaseURL:     getEnv("BROKER_BASE_URL", "https://paper-api.alpaca.markets"),
		BrokerAPIKey:      getEnv("BROKER_API_KEY", ""),
		BrokerAPISecret:   getEnv("BROKER_API_SECRET", ""),

		BackupBucket:    getEnv("BACKUP_BUCKET", ""),
		BackupEndpoint:  getEnv("BACKUP_ENDPOINT", ""),
		BackupAccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
		BackupSecretKey: getEnv("BACKUP_SECRET_KEY", ""),
		BackupRetention: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants. Any violation is a
// *domain.ConfigError and must abort startup before the scheduler runs.
func (c *Config) Validate() error {
	if len(c.Tickers) == 0 {
		return &domain.ConfigError{Field: "TICKERS", Reason: "no tickers specified"}
	}
	if c.InitialCash < 0 {
		return &domain.ConfigError{Field: "INITIAL_CASH", Reason: "must not be negative"}
	}
	if c.MaxPositionSize <= 0 {
		return &domain.ConfigError{Field: "MAX_POSITION_SIZE", Reason: "must be positive"}
	}
	if c.MaxPortfolioValue <= 0 {
		return &domain.ConfigError{Field: "MAX_PORTFOLIO_VALUE", Reason: "must be positive"}
	}
	if c.PerTickerExposureCap <= 0 || c.PerTickerExposureCap > 1 {
		return &domain.ConfigError{Field: "PER_TICKER_EXPOSURE_CAP", Reason: "must be in (0,1]"}
	}

	minInterval := time.Duration(MinTradingIntervalMinutes) * time.Minute
	maxInterval := time.Duration(MaxTradingIntervalMinutes) * time.Minute
	if c.TradingInterval < minInterval || c.TradingInterval > maxInterval {
		return &domain.ConfigError{
			Field: "TRADING_INTERVAL_MINUTES",
			Reason: fmt.Sprintf("must be between %d and %d minutes",
				MinTradingIntervalMinutes, MaxTradingIntervalMinutes),
		}
	}

	if c.RetryAttempts < 1 {
		return &domain.ConfigError{Field: "RETRY_ATTEMPTS", Reason: "must be at least 1"}
	}
	if c.RetryDelay <= 0 {
		return &domain.ConfigError{Field: "RETRY_DELAY_SECONDS", Reason: "must be positive"}
	}
	if c.TradingMode != domain.ModePaper && c.TradingMode != domain.ModeLive {
		return &domain.ConfigError{Field: "TRADING_MODE", Reason: "must be paper or live"}
	}
	if c.TradingMode == domain.ModeLive && (c.BrokerAPIKey == "" || c.BrokerAPISecret == "") {
		return &domain.ConfigError{Field: "BROKER_API_KEY", Reason: "required in live mode"}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// splitList parses a comma-separated env value into trimmed entries.
func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
