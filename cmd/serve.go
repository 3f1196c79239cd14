package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"tradeidea/api"
	"tradeidea/config"
	"tradeidea/decision"
	"tradeidea/logger"
	"tradeidea/market"
	"tradeidea/mcp"
	"tradeidea/middleware"
	"tradeidea/notify"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if servePort != "" {
			cfg.Port = servePort
		}
		logger.Init(cfg.LogLevel, cfg.LogPretty)
		if cfg.LogLevel != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (overrides PORT)")
}

func serve(ctx context.Context, cfg *config.Config) error {
	table, err := loadInstruments(cfg.InstrumentsFile)
	if err != nil {
		return err
	}

	cache, closeCache := priceCache(ctx, cfg)
	defer closeCache()

	var sources market.MultiSource
	if cfg.BinanceEnabled {
		sources = append(sources, market.NewBinanceSource(table))
		logger.Infof("✓ Binance 行情已启用 (加密货币)")
	}
	if cfg.OandaToken != "" {
		sources = append(sources, market.NewOandaSource(cfg.OandaToken, cfg.OandaAccountID, cfg.OandaPractice, table))
		logger.Infof("✓ OANDA 行情已启用 (外汇/贵金属, practice=%v)", cfg.OandaPractice)
	}
	feed := market.NewPriceFeed(sources, cache, cfg.PriceCacheTTL, cfg.MarketDataTimeout)

	ai := mcp.New(cfg.AIAPIKey, cfg.AIAPIURL, cfg.AIModel, cfg.AIMaxTokens)
	if !ai.Configured() {
		logger.Warnf("⚠️  未配置 AI_API_KEY，所有交易想法将使用合成降级")
	}

	engine := decision.NewEngine(decision.EngineOptions{
		AI:               ai,
		Prices:           feed,
		Sentiment:        market.NewFearGreedClient(""),
		Instruments:      table,
		Risk:             cfg.Risk,
		OracleTimeout:    cfg.OracleTimeout,
		SentimentTimeout: cfg.MarketDataTimeout,
	})

	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			logger.Warnf("⚠️  Telegram 初始化失败，已禁用广播: %v", err)
		} else {
			notifier = tg
		}
	}
	defer notifier.Close()

	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	defer limiter.Stop()

	srv := api.NewServer(api.Options{
		Generator:          engine,
		Instruments:        table,
		Risk:               cfg.Risk,
		Notifier:           notifier,
		Limiter:            limiter,
		SignalTimeFrame:    cfg.SignalTimeFrame,
		VariationTimeFrame: cfg.VariationTimeFrame,
		OracleConfigured:   ai.Configured(),
	})
	return srv.Run(ctx, ":"+cfg.Port)
}

// priceCache 优先使用 Redis，连接失败时退回进程内缓存
func priceCache(ctx context.Context, cfg *config.Config) (market.PriceCache, func()) {
	if cfg.RedisURL == "" {
		return market.NewMemoryPriceCache(), func() {}
	}
	rc, err := market.NewRedisPriceCacheFromURL(cfg.RedisURL, 0)
	if err != nil {
		logger.Warnf("⚠️  REDIS_URL 无效，使用内存缓存: %v", err)
		return market.NewMemoryPriceCache(), func() {}
	}
	pctx, cancel := context.WithTimeout(ctx, cfg.MarketDataTimeout)
	defer cancel()
	if err := rc.Ping(pctx); err != nil {
		logger.Warnf("⚠️  Redis 不可用，使用内存缓存: %v", err)
		_ = rc.Close()
		return market.NewMemoryPriceCache(), func() {}
	}
	logger.Infof("✓ 价格缓存: Redis")
	return rc, func() { _ = rc.Close() }
}

func loadInstruments(path string) (*market.InstrumentTable, error) {
	if path == "" {
		return market.NewInstrumentTable(), nil
	}
	t, err := market.LoadInstrumentFile(path)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 已加载品种表 %s", path)
	return t, nil
}
