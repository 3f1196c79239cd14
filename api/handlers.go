package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradeidea/config"
	"tradeidea/decision"
	"tradeidea/logger"
	"tradeidea/market"
	"tradeidea/trader"
)

// signalRequest /api/signal 与 /api/variations 的请求体
type signalRequest struct {
	Symbol           string   `json:"symbol"`
	AccountSize      *float64 `json:"accountSize"`
	TradeRiskPercent *float64 `json:"tradeRiskPercent"`
	NumVariations    int      `json:"numVariations"`
}

type positionSizeRequest struct {
	Symbol           string   `json:"symbol"`
	AccountSize      *float64 `json:"accountSize"`
	TradeRiskPercent *float64 `json:"tradeRiskPercent"`
	Side             string   `json:"side"`
	EntryPrice       *float64 `json:"entryPrice"`
	StopLoss         *float64 `json:"stopLoss"`
	TakeProfit1      *float64 `json:"takeProfit1"`
	TakeProfit2      *float64 `json:"takeProfit2"`
}

// riskView 响应中的风险部分（显示精度）
type riskView struct {
	AccountSize float64 `json:"accountSize"`
	RiskPercent float64 `json:"riskPercent"`
	UnitsPerLot float64 `json:"unitsPerLot"`
	trader.SizingDisplay
	trader.DerivedMetrics
	trader.Assessment
}

type priceView struct {
	Value  float64 `json:"value"`
	Origin string  `json:"origin"`
}

type signalResponse struct {
	Signal         decision.ProposedTrade `json:"signal"`
	Risk           riskView               `json:"risk"`
	Fallback       bool                   `json:"fallback"`
	ReferencePrice priceView              `json:"referencePrice"`
}

type variation struct {
	Signal decision.ProposedTrade `json:"signal"`
	Risk   riskView               `json:"risk"`
}

type variationsResponse struct {
	Variations     []variation `json:"variations"`
	Fallback       bool        `json:"fallback"`
	ReferencePrice priceView   `json:"referencePrice"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"oracle":  s.oracleOK,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"version": Version,
	})
}

// handleSignal 直接信号：风险百分比超出 (0, MaxDirectRiskPercent] 直接拒绝
func (s *Server) handleSignal(c *gin.Context) {
	var req signalRequest
	if !bindJSON(c, &req) {
		return
	}
	sym, in, err := directInputs(req.Symbol, req.AccountSize, req.TradeRiskPercent, s.risk)
	if err != nil {
		s.fail(c, err)
		return
	}

	res := s.gen.Generate(c.Request.Context(), decision.Request{Symbol: sym, Risk: in, TimeFrame: s.signalTF})
	risk, err := s.riskFor(in, res.Trade)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.notifier.NotifySignal(res.Trade, risk.SizingDisplay)

	c.JSON(http.StatusOK, signalResponse{
		Signal:         res.Trade,
		Risk:           risk,
		Fallback:       res.Fallback,
		ReferencePrice: priceView{Value: res.Quote.Value, Origin: res.Quote.Origin},
	})
}

// handleVariations 变体：风险百分比与数量都裁剪到配置范围，不拒绝
func (s *Server) handleVariations(c *gin.Context) {
	var req signalRequest
	if !bindJSON(c, &req) {
		return
	}
	sym := market.CanonicalSymbol(req.Symbol)
	if sym == "" {
		s.fail(c, trader.Invalid("symbol", "is required"))
		return
	}
	if req.AccountSize == nil {
		s.fail(c, trader.Invalid("accountSize", "is required"))
		return
	}
	if req.TradeRiskPercent == nil {
		s.fail(c, trader.Invalid("tradeRiskPercent", "is required"))
		return
	}
	in := trader.RiskInputs{
		AccountSize: *req.AccountSize,
		RiskPercent: s.risk.ClampVariationRisk(*req.TradeRiskPercent),
	}
	if err := in.ValidateWith(s.risk); err != nil {
		s.fail(c, err)
		return
	}

	out := s.gen.GenerateVariations(c.Request.Context(),
		decision.Request{Symbol: sym, Risk: in, TimeFrame: s.variationTF}, req.NumVariations)

	resp := variationsResponse{
		Variations:     make([]variation, 0, len(out.Trades)),
		Fallback:       out.Fallback,
		ReferencePrice: priceView{Value: out.Quote.Value, Origin: out.Quote.Origin},
	}
	for _, t := range out.Trades {
		risk, err := s.riskFor(in, t)
		if err != nil {
			s.fail(c, err)
			return
		}
		s.notifier.NotifySignal(t, risk.SizingDisplay)
		resp.Variations = append(resp.Variations, variation{Signal: t, Risk: risk})
	}
	c.JSON(http.StatusOK, resp)
}

// handlePositionSize 纯计算器，不调用模型
func (s *Server) handlePositionSize(c *gin.Context) {
	var req positionSizeRequest
	if !bindJSON(c, &req) {
		return
	}
	sym, in, err := directInputs(req.Symbol, req.AccountSize, req.TradeRiskPercent, s.risk)
	if err != nil {
		s.fail(c, err)
		return
	}
	if req.EntryPrice == nil || *req.EntryPrice <= 0 {
		s.fail(c, trader.Invalid("entryPrice", "must be a number greater than 0"))
		return
	}
	if req.StopLoss == nil || *req.StopLoss <= 0 {
		s.fail(c, trader.Invalid("stopLoss", "must be a number greater than 0"))
		return
	}

	entry := *req.EntryPrice
	// 未给出止盈时盈利按 0 计
	tp1, tp2 := entry, entry
	if req.TakeProfit1 != nil {
		tp1 = *req.TakeProfit1
	}
	if req.TakeProfit2 != nil {
		tp2 = *req.TakeProfit2
	}

	t := decision.ProposedTrade{
		Symbol:      sym,
		Direction:   trader.ParseDirection(strings.ToLower(strings.TrimSpace(req.Side))),
		EntryPrice:  entry,
		StopLoss:    *req.StopLoss,
		TakeProfit1: tp1,
		TakeProfit2: tp2,
	}
	risk, err := s.riskFor(in, t)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"instrument": s.instruments.Lookup(sym),
		"risk":       risk,
	})
}

func (s *Server) handleInstruments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"instruments": s.instruments.All()})
}

// handleInstrument 未知品种也返回 200，known=false 表示使用了默认规格
func (s *Server) handleInstrument(c *gin.Context) {
	c.JSON(http.StatusOK, s.instruments.Lookup(c.Param("symbol")))
}

// riskFor 对交易想法做仓位计算、派生指标和风险评估
func (s *Server) riskFor(in trader.RiskInputs, t decision.ProposedTrade) (riskView, error) {
	inst := s.instruments.Lookup(t.Symbol)
	ps, err := trader.ComputeSizingFor(in, t.EntryPrice, t.StopLoss, inst)
	if err != nil {
		return riskView{}, err
	}
	dm := trader.ComputeDerived(t.Direction, ps.Entry, ps.Stop, t.TakeProfit1, t.TakeProfit2,
		ps.Units, ps.RiskAmount, ps.ValuePerUnit)

	return riskView{
		AccountSize:    in.AccountSize,
		RiskPercent:    in.RiskPercent,
		UnitsPerLot:    ps.UnitsPerLot,
		SizingDisplay:  ps.Display(),
		DerivedMetrics: dm.Display(),
		Assessment:     trader.Assess(in, ps, dm, s.risk),
	}, nil
}

// directInputs 直接端点的校验：symbol 必填，风险百分比必须在 (0, MaxDirectRiskPercent]
func directInputs(symbol string, account, pct *float64, cfg *config.RiskConfig) (string, trader.RiskInputs, error) {
	sym := market.CanonicalSymbol(symbol)
	if sym == "" {
		return "", trader.RiskInputs{}, trader.Invalid("symbol", "is required")
	}
	if account == nil {
		return "", trader.RiskInputs{}, trader.Invalid("accountSize", "is required")
	}
	if pct == nil {
		return "", trader.RiskInputs{}, trader.Invalid("tradeRiskPercent", "is required")
	}
	in := trader.RiskInputs{AccountSize: *account, RiskPercent: *pct}
	if err := in.ValidateWith(cfg); err != nil {
		return "", trader.RiskInputs{}, err
	}
	return sym, in, nil
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

// fail 输入错误返回 400 和字段信息，其他错误只返回通用 500
func (s *Server) fail(c *gin.Context, err error) {
	var ire *trader.InvalidRequestError
	if errors.As(err, &ire) {
		c.JSON(http.StatusBadRequest, gin.H{"error": ire.Error(), "field": ire.Field})
		return
	}
	logger.Errorf("🔴 %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
