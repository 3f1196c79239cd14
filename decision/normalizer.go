package decision

import (
	"math"
	"strings"

	"github.com/google/uuid"

	"tradeidea/config"
	"tradeidea/logger"
	"tradeidea/market"
	"tradeidea/metrics"
	"tradeidea/trader"
)

// NormalizeOptions 归一化参数
type NormalizeOptions struct {
	// ReferencePrice 入场价缺失时的默认值；<= 0 时使用静态参考价
	ReferencePrice float64
	// ForceTimeFrame 非空时覆盖来源给出的周期
	ForceTimeFrame string
	Risk           *config.RiskConfig
	Source         Source
}

// Normalize 把不可信的提案强制转换为结构合法、方向一致的交易想法。
// 不会失败：非法字段取默认值，方向不一致时由入场价重新推导止损止盈。
func Normalize(raw RawTrade, symbol string, in trader.RiskInputs, opts NormalizeOptions) ProposedTrade {
	sym := market.CanonicalSymbol(symbol)
	ref := opts.ReferencePrice
	if !(ref > 0) || math.IsInf(ref, 0) {
		ref = market.MockPrice(sym)
	}
	env := coercionEnv{reference: ref, offsets: offsetsFrom(opts.Risk)}

	source := opts.Source
	if source == "" {
		source = SourceOracle
	}
	t := ProposedTrade{
		ID:     uuid.New().String(),
		Symbol: sym,
		Source: source,
	}

	var defaulted []string
	for _, r := range coercionTable {
		if r.apply(raw, &t, env) {
			defaulted = append(defaulted, r.field())
		}
	}
	if len(defaulted) > 0 && source == SourceOracle {
		logger.Debugf("⚠️  [%s] 字段使用默认值: %s", sym, strings.Join(defaulted, ","))
	}

	// 只信任本地重新计算的风险金额
	if v, ok := parsePrice(raw.lookup("riskAmount", []string{"risk_amount", "risk_usd"})); ok {
		if want := in.RiskAmount(); math.Abs(v-want) > 0.01 {
			logger.Infof("⚠️  [%s] 忽略模型给出的风险金额 %.2f，使用重新计算的 %.2f", sym, v, want)
		}
	}

	if !t.OrderingHolds() {
		repair(&t, env)
	}

	if opts.ForceTimeFrame != "" {
		t.TimeFrame = strings.ToUpper(strings.TrimSpace(opts.ForceTimeFrame))
	}
	return t
}

// repair 方向不一致时由入场价按固定比例重新推导
func repair(t *ProposedTrade, env coercionEnv) {
	t.StopLoss, t.TakeProfit1, t.TakeProfit2 = env.offsets.derive(t.Direction, t.EntryPrice)
	if !t.OrderingHolds() {
		// 入场价极端（例如接近 0）时推导结果可能重合，改用参考价
		t.EntryPrice = env.reference
		t.StopLoss, t.TakeProfit1, t.TakeProfit2 = env.offsets.derive(t.Direction, t.EntryPrice)
	}
	if !t.OrderingHolds() {
		// 参考价本身极端（例如接近 MaxFloat64，推导止盈溢出为 Inf），改用静态价格
		t.EntryPrice = market.MockPrice(t.Symbol)
		t.StopLoss, t.TakeProfit1, t.TakeProfit2 = env.offsets.derive(t.Direction, t.EntryPrice)
	}
	t.Repaired = true
	metrics.RepairsTotal.Inc()
	logger.Debugf("🔧 [%s] 价格顺序不一致，已按入场价 %.5f 重新推导止损止盈", t.Symbol, t.EntryPrice)
}
