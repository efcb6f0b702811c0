package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfund/meridian/internal/domain"
)

func validConfig() *Config {
	return &Config{
		Tickers:              []string{"AAPL", "MSFT"},
		InitialCash:          100000,
		MaxPositionSize:      25000,
		MaxPortfolioValue:    1000000,
		PerTickerExposureCap: 0.20,
		TradingInterval:      60 * time.Minute,
		RetryAttempts:        3,
		RetryDelay:           5 * time.Second,
		TradingMode:          domain.ModePaper,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"no tickers", func(c *Config) { c.Tickers = nil }, "TICKERS"},
		{"negative cash", func(c *Config) { c.InitialCash = -1 }, "INITIAL_CASH"},
		{"zero position size", func(c *Config) { c.MaxPositionSize = 0 }, "MAX_POSITION_SIZE"},
		{"zero portfolio cap", func(c *Config) { c.MaxPortfolioValue = 0 }, "MAX_PORTFOLIO_VALUE"},
		{"exposure cap zero", func(c *Config) { c.PerTickerExposureCap = 0 }, "PER_TICKER_EXPOSURE_CAP"},
		{"exposure cap above one", func(c *Config) { c.PerTickerExposureCap = 1.5 }, "PER_TICKER_EXPOSURE_CAP"},
		{"interval too short", func(c *Config) { c.TradingInterval = time.Minute }, "TRADING_INTERVAL_MINUTES"},
		{"interval too long", func(c *Config) { c.TradingInterval = 10 * time.Hour }, "TRADING_INTERVAL_MINUTES"},
		{"zero retries", func(c *Config) { c.RetryAttempts = 0 }, "RETRY_ATTEMPTS"},
		{"zero retry delay", func(c *Config) { c.RetryDelay = 0 }, "RETRY_DELAY_SECONDS"},
		{"unknown mode", func(c *Config) { c.TradingMode = "margin" }, "TRADING_MODE"},
		{"live without broker keys", func(c *Config) { c.TradingMode = domain.ModeLive }, "BROKER_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *domain.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestValidateBoundaryIntervals(t *testing.T) {
	cfg := validConfig()
	cfg.TradingInterval = 5 * time.Minute
	assert.NoError(t, cfg.Validate())

	cfg.TradingInterval = 240 * time.Minute
	assert.NoError(t, cfg.Validate())
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Nil(t, splitList("  "))
	assert.Equal(t, []string{"AAPL", "MSFT"}, splitList("AAPL, MSFT"))
	assert.Equal(t, []string{"NVDA"}, splitList(",NVDA,,"))
}

func TestValidateLiveModeWithCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.TradingMode = domain.ModeLive
	cfg.BrokerAPIKey = "key"
	cfg.BrokerAPISecret = "secret"
	assert.NoError(t, cfg.Validate())
}
