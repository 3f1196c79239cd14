package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("AI_API_KEY", "")
	t.Setenv("VARIATION_TIMEFRAME", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 8*time.Second, cfg.OracleTimeout)
	assert.Equal(t, 3*time.Second, cfg.MarketDataTimeout)
	assert.Equal(t, 30*time.Second, cfg.PriceCacheTTL)
	assert.Equal(t, "M15", cfg.VariationTimeFrame)
	assert.False(t, cfg.OracleConfigured())
	assert.NotNil(t, cfg.Risk)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AI_API_KEY", "sk-test")
	t.Setenv("ORACLE_TIMEOUT", "2s")
	t.Setenv("PRICE_CACHE_TTL", "not-a-duration")
	t.Setenv("AI_MAX_TOKENS", "1200")
	t.Setenv("BINANCE_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.OracleConfigured())
	assert.Equal(t, 2*time.Second, cfg.OracleTimeout)
	assert.Equal(t, 30*time.Second, cfg.PriceCacheTTL, "invalid duration falls back to default")
	assert.Equal(t, 1200, cfg.AIMaxTokens)
	assert.False(t, cfg.BinanceEnabled)
}

func TestLoadMaxDirectRiskPercent(t *testing.T) {
	t.Setenv("MAX_DIRECT_RISK_PERCENT", "10")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.Risk.MaxDirectRiskPercent)

	t.Setenv("MAX_DIRECT_RISK_PERCENT", "250")
	_, err = Load()
	assert.ErrorContains(t, err, "MAX_DIRECT_RISK_PERCENT")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:              "8080",
			AIMaxTokens:       800,
			OracleTimeout:     time.Second,
			MarketDataTimeout: time.Second,
			PriceCacheTTL:     30 * time.Second,
			RateLimitRPS:      1,
			RateLimitBurst:    5,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Port = "" }, "PORT is required"},
		{"zero oracle timeout", func(c *Config) { c.OracleTimeout = 0 }, "ORACLE_TIMEOUT"},
		{"negative ttl", func(c *Config) { c.PriceCacheTTL = -time.Second }, "PRICE_CACHE_TTL"},
		{"oanda without account", func(c *Config) { c.OandaToken = "tok" }, "OANDA_ACCOUNT_ID"},
		{"telegram without chat", func(c *Config) { c.TelegramToken = "tok" }, "TELEGRAM_CHAT_ID"},
		{"zero burst", func(c *Config) { c.RateLimitBurst = 0 }, "RATE_LIMIT"},
		{"direct risk above 100", func(c *Config) { c.Risk = DefaultRiskConfig(); c.Risk.MaxDirectRiskPercent = 150 }, "MAX_DIRECT_RISK_PERCENT"},
		{"direct risk zero", func(c *Config) { c.Risk = DefaultRiskConfig(); c.Risk.MaxDirectRiskPercent = 0 }, "MAX_DIRECT_RISK_PERCENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestYAMLOmitsSecrets(t *testing.T) {
	cfg := &Config{Port: "8080", AIAPIKey: "sk-secret", TelegramToken: "bot-secret", OandaToken: "oanda-secret"}
	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, out, "port: \"8080\"")
	assert.NotContains(t, out, "secret")
}

func TestRiskConfigClamps(t *testing.T) {
	rc := DefaultRiskConfig()

	assert.Equal(t, 0.1, rc.ClampVariationRisk(0.01))
	assert.Equal(t, 5.0, rc.ClampVariationRisk(150))
	assert.Equal(t, 2.0, rc.ClampVariationRisk(2))

	assert.Equal(t, 3, rc.ClampVariations(0))
	assert.Equal(t, 5, rc.ClampVariations(12))
	assert.Equal(t, 2, rc.ClampVariations(2))
}
