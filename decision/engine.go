package decision

import (
	"context"
	"errors"
	"math"
	"time"

	"tradeidea/config"
	"tradeidea/logger"
	"tradeidea/market"
	"tradeidea/mcp"
	"tradeidea/metrics"
	"tradeidea/trader"
)

// PriceReferencer 参考价来源，永不失败
type PriceReferencer interface {
	ReferencePrice(ctx context.Context, symbol string) market.Quote
}

// SentimentSource 加密货币市场情绪（可选）
type SentimentSource interface {
	Index(ctx context.Context) (*market.FearGreedIndex, error)
}

// EngineOptions 引擎依赖
type EngineOptions struct {
	AI            mcp.AIClient
	Prices        PriceReferencer
	Sentiment     SentimentSource
	Instruments   *market.InstrumentTable
	Fallback      *FallbackGenerator
	Risk          *config.RiskConfig
	OracleTimeout time.Duration
	// SentimentTimeout 市场情绪获取的独立预算，默认 2s
	SentimentTimeout time.Duration
}

// Engine 交易想法生成：参考价 -> 模型调用 -> 解析 -> 归一化，任何模型失败都降级为合成想法
type Engine struct {
	ai            mcp.AIClient
	prices        PriceReferencer
	sentiment     SentimentSource
	instruments   *market.InstrumentTable
	fallback      *FallbackGenerator
	risk          *config.RiskConfig
	oracleTimeout time.Duration
	sentimentTTL  time.Duration
}

func NewEngine(opts EngineOptions) *Engine {
	e := &Engine{
		ai:            opts.AI,
		prices:        opts.Prices,
		sentiment:     opts.Sentiment,
		instruments:   opts.Instruments,
		fallback:      opts.Fallback,
		risk:          opts.Risk,
		oracleTimeout: opts.OracleTimeout,
		sentimentTTL:  opts.SentimentTimeout,
	}
	if e.prices == nil {
		e.prices = market.NewPriceFeed(nil, nil, 0, 0)
	}
	if e.instruments == nil {
		e.instruments = market.NewInstrumentTable()
	}
	if e.fallback == nil {
		e.fallback = NewFallbackGenerator(nil)
	}
	if e.risk == nil {
		e.risk = config.DefaultRiskConfig()
	}
	if e.oracleTimeout <= 0 {
		e.oracleTimeout = 8 * time.Second
	}
	if e.sentimentTTL <= 0 {
		e.sentimentTTL = 2 * time.Second
	}
	return e
}

// Request 生成请求
type Request struct {
	Symbol string
	Risk   trader.RiskInputs
	// TimeFrame 非空时强制覆盖输出周期
	TimeFrame string
}

// Result 单个交易想法
type Result struct {
	Trade    ProposedTrade
	Quote    market.Quote
	Fallback bool
	Reason   FallbackReason
	// OracleLatency 未调用模型时为 0
	OracleLatency time.Duration
}

// VariationsResult 多个交易想法
type VariationsResult struct {
	Trades []ProposedTrade
	Quote  market.Quote
	// Fallback 至少有一个想法是合成的
	Fallback      bool
	OracleLatency time.Duration
}

// Generate 生成单个交易想法。模型的失败在这里被吸收，不会向调用方返回错误。
func (e *Engine) Generate(ctx context.Context, req Request) Result {
	sym := market.CanonicalSymbol(req.Symbol)
	quote := e.prices.ReferencePrice(ctx, sym)
	opts := e.normalizeOptions(quote, req.TimeFrame)

	text, latency, reason := e.callOracle(ctx, sym, req, quote, 0)
	res := Result{Quote: quote, OracleLatency: latency}

	if reason == ReasonNone {
		switch r := ParseProposal(text).(type) {
		case ParsedTrade:
			res.Trade = Normalize(r.Fields, sym, req.Risk, opts)
			e.checkDeviation(res.Trade, quote)
		case ParseFailure:
			logger.Warnf("⚠️  [%s] 模型输出不可用 (%s): %s", sym, r.Reason, r.Detail)
			reason = r.Reason
		}
	}

	if reason != ReasonNone {
		res.Trade = e.fallback.Generate(sym, req.Risk, reason, opts)
		res.Fallback = true
		res.Reason = reason
		metrics.FallbacksTotal.WithLabelValues(string(reason)).Inc()
	}
	metrics.SignalsTotal.WithLabelValues(string(res.Trade.Source)).Inc()

	logger.Infof("✓ [%s] %s %s entry=%.5f sl=%.5f tp1=%.5f tp2=%.5f source=%s",
		sym, res.Trade.Direction, res.Trade.OrderType, res.Trade.EntryPrice, res.Trade.StopLoss,
		res.Trade.TakeProfit1, res.Trade.TakeProfit2, res.Trade.Source)
	return res
}

// GenerateVariations 生成 n 个交易想法（n 裁剪到配置范围）。缺失或不可用的条目由合成想法补齐，
// 因此总是返回恰好 n 个。
func (e *Engine) GenerateVariations(ctx context.Context, req Request, n int) VariationsResult {
	n = e.risk.ClampVariations(n)
	sym := market.CanonicalSymbol(req.Symbol)
	quote := e.prices.ReferencePrice(ctx, sym)
	opts := e.normalizeOptions(quote, req.TimeFrame)

	text, latency, reason := e.callOracle(ctx, sym, req, quote, n)
	out := VariationsResult{Quote: quote, OracleLatency: latency, Trades: make([]ProposedTrade, 0, n)}

	var items []ParseResult
	if reason == ReasonNone {
		items = ParseProposalList(text)
	}

	for i := 0; i < n; i++ {
		itemReason := reason
		if itemReason == ReasonNone {
			if i >= len(items) {
				itemReason = ReasonMissingFields
			} else {
				switch r := items[i].(type) {
				case ParsedTrade:
					t := Normalize(r.Fields, sym, req.Risk, opts)
					e.checkDeviation(t, quote)
					out.Trades = append(out.Trades, t)
					metrics.SignalsTotal.WithLabelValues(string(SourceOracle)).Inc()
					continue
				case ParseFailure:
					itemReason = r.Reason
				}
			}
		}

		out.Trades = append(out.Trades, e.fallback.Generate(sym, req.Risk, itemReason, opts))
		out.Fallback = true
		metrics.FallbacksTotal.WithLabelValues(string(itemReason)).Inc()
		metrics.SignalsTotal.WithLabelValues(string(SourceFallback)).Inc()
	}

	logger.Infof("✓ [%s] 生成 %d 个交易想法 (fallback=%v)", sym, len(out.Trades), out.Fallback)
	return out
}

func (e *Engine) normalizeOptions(quote market.Quote, timeFrame string) NormalizeOptions {
	return NormalizeOptions{
		ReferencePrice: quote.Value,
		ForceTimeFrame: timeFrame,
		Risk:           e.risk,
	}
}

// callOracle 单次调用模型，不重试。返回的 reason 非空表示需要降级。
func (e *Engine) callOracle(ctx context.Context, sym string, req Request, quote market.Quote, variations int) (string, time.Duration, FallbackReason) {
	if !e.oracleConfigured() {
		return "", 0, ReasonUnconfigured
	}

	pc := promptContext{
		Symbol:     sym,
		Instrument: e.instruments.Lookup(sym),
		Quote:      quote,
		Risk:       req.Risk,
		TimeFrame:  req.TimeFrame,
	}
	if pc.Instrument.Kind == market.KindCrypto && e.sentiment != nil {
		pc.Sentiment = e.fetchSentiment(ctx, sym)
	}

	cctx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()

	start := time.Now()
	text, err := e.ai.CallWithMessages(cctx, buildSystemPrompt(variations), buildUserPrompt(pc, variations))
	latency := time.Since(start)
	metrics.OracleLatency.Observe(latency.Seconds())

	if err != nil {
		reason := classifyOracleError(err)
		logger.Warnf("⚠️  [%s] 调用AI失败，使用合成想法 (%s, %v): %v", sym, reason, latency, err)
		return "", latency, reason
	}
	logger.Debugf("📡 [%s] AI 响应耗时 %v", sym, latency)
	return text, latency, ReasonNone
}

// fetchSentiment 在独立预算内获取市场情绪，超时或失败返回空字符串。
// 非关键数据，不等待慢速的数据源返回。
func (e *Engine) fetchSentiment(ctx context.Context, sym string) string {
	sctx, cancel := context.WithTimeout(ctx, e.sentimentTTL)
	defer cancel()

	ch := make(chan string, 1)
	go func() {
		idx, err := e.sentiment.Index(sctx)
		if err != nil || idx == nil {
			logger.Debugf("⚠️  [%s] 获取市场情绪失败: %v", sym, err)
			ch <- ""
			return
		}
		ch <- idx.Sentiment()
	}()

	select {
	case s := <-ch:
		return s
	case <-sctx.Done():
		logger.Debugf("⚠️  [%s] 获取市场情绪超时 (%v)，跳过", sym, e.sentimentTTL)
		return ""
	}
}

func (e *Engine) oracleConfigured() bool {
	if e.ai == nil {
		return false
	}
	if c, ok := e.ai.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

func classifyOracleError(err error) FallbackReason {
	switch {
	case errors.Is(err, mcp.ErrNotConfigured):
		return ReasonUnconfigured
	case errors.Is(err, mcp.ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, mcp.ErrEmptyResponse):
		return ReasonMalformed
	}
	return ReasonTransport
}

// checkDeviation 入场价偏离实时参考价过多时记录警告（不修改）
func (e *Engine) checkDeviation(t ProposedTrade, quote market.Quote) {
	if quote.Origin == market.OriginMock || quote.Value <= 0 {
		return
	}
	if dev := math.Abs(t.EntryPrice-quote.Value) / quote.Value; dev > 0.2 {
		logger.Warnf("⚠️  [%s] 入场价 %.5f 偏离参考价 %.5f 达 %.1f%%", t.Symbol, t.EntryPrice, quote.Value, dev*100)
	}
}
