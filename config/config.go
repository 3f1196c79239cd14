package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 服务配置，全部来自环境变量（可选 .env）
type Config struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	// AI 模型（OpenAI 兼容接口）
	AIAPIKey    string `yaml:"-"`
	AIAPIURL    string `yaml:"ai_api_url"`
	AIModel     string `yaml:"ai_model"`
	AIMaxTokens int    `yaml:"ai_max_tokens"`

	// 外部调用超时
	OracleTimeout     time.Duration `yaml:"oracle_timeout"`
	MarketDataTimeout time.Duration `yaml:"market_data_timeout"`
	PriceCacheTTL     time.Duration `yaml:"price_cache_ttl"`

	// 行情数据
	RedisURL       string `yaml:"redis_url,omitempty"`
	BinanceEnabled bool   `yaml:"binance_enabled"`
	OandaToken     string `yaml:"-"`
	OandaAccountID string `yaml:"oanda_account_id,omitempty"`
	OandaPractice  bool   `yaml:"oanda_practice"`

	InstrumentsFile string `yaml:"instruments_file,omitempty"`

	// 各端点强制的周期，空字符串保留模型给出的周期
	SignalTimeFrame    string `yaml:"signal_timeframe"`
	VariationTimeFrame string `yaml:"variation_timeframe"`

	// 模型端点限流
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	// Telegram 广播（可选）
	TelegramToken  string `yaml:"-"`
	TelegramChatID int64  `yaml:"telegram_chat_id,omitempty"`

	Risk *RiskConfig `yaml:"-"`
}

// Load 读取环境变量并校验
func Load() (*Config, error) {
	// 没有 .env 文件时忽略错误
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: boolFromEnv("LOG_PRETTY", false),

		AIAPIKey:    getEnv("AI_API_KEY", ""),
		AIAPIURL:    getEnv("AI_API_URL", "https://api.openai.com/v1"),
		AIModel:     getEnv("AI_MODEL", "gpt-4o-mini"),
		AIMaxTokens: intFromEnv("AI_MAX_TOKENS", 800),

		OracleTimeout:     durationFromEnv("ORACLE_TIMEOUT", "8s"),
		MarketDataTimeout: durationFromEnv("MARKET_DATA_TIMEOUT", "3s"),
		PriceCacheTTL:     durationFromEnv("PRICE_CACHE_TTL", "30s"),

		RedisURL:       getEnv("REDIS_URL", ""),
		BinanceEnabled: boolFromEnv("BINANCE_ENABLED", true),
		OandaToken:     getEnv("OANDA_TOKEN", ""),
		OandaAccountID: getEnv("OANDA_ACCOUNT_ID", ""),
		OandaPractice:  boolFromEnv("OANDA_PRACTICE", true),

		InstrumentsFile: getEnv("INSTRUMENTS_FILE", ""),

		SignalTimeFrame:    getEnv("SIGNAL_TIMEFRAME", ""),
		VariationTimeFrame: getEnv("VARIATION_TIMEFRAME", "M15"),

		RateLimitRPS:   floatFromEnv("RATE_LIMIT_RPS", 1),
		RateLimitBurst: intFromEnv("RATE_LIMIT_BURST", 5),

		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: int64FromEnv("TELEGRAM_CHAT_ID", 0),

		Risk: DefaultRiskConfig(),
	}
	cfg.Risk.MaxDirectRiskPercent = floatFromEnv("MAX_DIRECT_RISK_PERCENT", cfg.Risk.MaxDirectRiskPercent)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.OracleTimeout <= 0 {
		return fmt.Errorf("ORACLE_TIMEOUT must be positive")
	}
	if c.MarketDataTimeout <= 0 {
		return fmt.Errorf("MARKET_DATA_TIMEOUT must be positive")
	}
	if c.PriceCacheTTL < 0 {
		return fmt.Errorf("PRICE_CACHE_TTL must not be negative")
	}
	if c.AIMaxTokens <= 0 {
		return fmt.Errorf("AI_MAX_TOKENS must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.Risk != nil && (c.Risk.MaxDirectRiskPercent <= 0 || c.Risk.MaxDirectRiskPercent > 100) {
		return fmt.Errorf("MAX_DIRECT_RISK_PERCENT must be in (0, 100]")
	}
	if c.OandaToken != "" && c.OandaAccountID == "" {
		return fmt.Errorf("OANDA_ACCOUNT_ID is required when OANDA_TOKEN is set")
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}
	return nil
}

// OracleConfigured 是否配置了 AI API 密钥
func (c *Config) OracleConfigured() bool {
	return c.AIAPIKey != ""
}

// YAML 输出生效的配置（不含密钥）
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func int64FromEnv(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getEnv(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
