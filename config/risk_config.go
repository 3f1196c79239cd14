package config

// RiskConfig 统一风控参数配置
// 集中管理止损/止盈偏移、风险百分比校验范围等参数，避免硬编码分散
type RiskConfig struct {
	// 降级/修复用的价格偏移（相对入场价的比例）
	StopOffsetPct        float64 // 止损偏移 (默认 1%)
	TakeProfit1OffsetPct float64 // 第一止盈偏移 (默认 2%)
	TakeProfit2OffsetPct float64 // 第二止盈偏移 (默认 3%)

	// 风险百分比校验
	MaxDirectRiskPercent float64 // 直接信号端点上限，超出即拒绝 (默认 100，最大 100)
	MinVariationRiskPct  float64 // 变体端点下限，超出则裁剪 (默认 0.1)
	MaxVariationRiskPct  float64 // 变体端点上限，超出则裁剪 (默认 5)
	AggressiveRiskPct    float64 // 超过即标记为激进（仅提示，不拒绝）(默认 3)

	// 风险等级划分
	MediumRiskPct float64 // > 该值为 medium (默认 1)
	HighRiskPct   float64 // > 该值为 high (默认 2)

	// 变体数量
	DefaultVariations int // 默认 3
	MaxVariations     int // 上限 5

	// 止损距离低于入场价的该百分比时提示止损过紧 (默认 0.1)
	MinStopDistancePct float64
}

// DefaultRiskConfig 返回默认风控配置
func DefaultRiskConfig() *RiskConfig {
	return &RiskConfig{
		StopOffsetPct:        0.01,
		TakeProfit1OffsetPct: 0.02,
		TakeProfit2OffsetPct: 0.03,

		MaxDirectRiskPercent: 100,
		MinVariationRiskPct:  0.1,
		MaxVariationRiskPct:  5,
		AggressiveRiskPct:    3,

		MediumRiskPct: 1,
		HighRiskPct:   2,

		DefaultVariations: 3,
		MaxVariations:     5,

		MinStopDistancePct: 0.1,
	}
}

// ClampVariationRisk 把变体端点的风险百分比裁剪到 [MinVariationRiskPct, MaxVariationRiskPct]
func (c *RiskConfig) ClampVariationRisk(pct float64) float64 {
	if pct < c.MinVariationRiskPct {
		return c.MinVariationRiskPct
	}
	if pct > c.MaxVariationRiskPct {
		return c.MaxVariationRiskPct
	}
	return pct
}

// ClampVariations 裁剪变体数量，n <= 0 表示使用默认值
func (c *RiskConfig) ClampVariations(n int) int {
	if n <= 0 {
		return c.DefaultVariations
	}
	if n > c.MaxVariations {
		return c.MaxVariations
	}
	return n
}
