package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradeidea/config"
	"tradeidea/decision"
	"tradeidea/logger"
	"tradeidea/market"
	"tradeidea/metrics"
	"tradeidea/middleware"
	"tradeidea/notify"
)

// SignalGenerator 交易想法生成器（decision.Engine 实现）
type SignalGenerator interface {
	Generate(ctx context.Context, req decision.Request) decision.Result
	GenerateVariations(ctx context.Context, req decision.Request, n int) decision.VariationsResult
}

// Options 服务依赖
type Options struct {
	Generator   SignalGenerator
	Instruments *market.InstrumentTable
	Risk        *config.RiskConfig
	Notifier    notify.Notifier
	// Limiter 保护模型端点，nil 表示不限流
	Limiter *middleware.IPRateLimiter

	// 强制输出周期，空字符串表示保留模型给出的周期
	SignalTimeFrame    string
	VariationTimeFrame string

	OracleConfigured bool
}

// Server HTTP API
type Server struct {
	gen         SignalGenerator
	instruments *market.InstrumentTable
	risk        *config.RiskConfig
	notifier    notify.Notifier
	limiter     *middleware.IPRateLimiter

	signalTF    string
	variationTF string
	oracleOK    bool
	started     time.Time

	router *gin.Engine
}

// NewServer 创建 API 服务并注册路由
func NewServer(opts Options) *Server {
	s := &Server{
		gen:         opts.Generator,
		instruments: opts.Instruments,
		risk:        opts.Risk,
		notifier:    opts.Notifier,
		limiter:     opts.Limiter,
		signalTF:    opts.SignalTimeFrame,
		variationTF: opts.VariationTimeFrame,
		oracleOK:    opts.OracleConfigured,
		started:     time.Now(),
	}
	if s.instruments == nil {
		s.instruments = market.NewInstrumentTable()
	}
	if s.risk == nil {
		s.risk = config.DefaultRiskConfig()
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	s.router = s.routes()
	return s
}

// Handler 返回路由，供测试和自定义 http.Server 使用
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), middleware.Metrics(), middleware.Recovery(), middleware.CORS())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		api.POST("/position-size", s.handlePositionSize)
		api.GET("/instruments", s.handleInstruments)
		api.GET("/instruments/:symbol", s.handleInstrument)

		oracle := api.Group("")
		if s.limiter != nil {
			oracle.Use(middleware.RateLimitMiddleware(s.limiter))
		}
		oracle.POST("/signal", s.handleSignal)
		oracle.POST("/variations", s.handleVariations)
	}
	return r
}

// Run 启动 HTTP 服务，ctx 取消时优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("🚀 API 服务启动于 %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infof("📡 正在关闭 API 服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
