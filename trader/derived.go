package trader

import "math"

// Direction 交易方向
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// ParseDirection 只有精确等于 "sell" 才是卖出，其余一律视为买入
func ParseDirection(s string) Direction {
	if s == string(Sell) {
		return Sell
	}
	return Buy
}

// DerivedMetrics 各止盈位的预期盈利与盈亏比
type DerivedMetrics struct {
	Direction     Direction `json:"direction"`
	LossAtStop    float64   `json:"lossAtStop"`
	ProfitAtTP1   float64   `json:"profitAtTP1"`
	ProfitAtTP2   float64   `json:"profitAtTP2"`
	RiskRewardTP1 float64   `json:"riskRewardTP1"`
	RiskRewardTP2 float64   `json:"riskRewardTP2"`
}

// ComputeDerived 计算止盈位盈利和盈亏比
//
// 盈利取绝对值，方向已经体现在止盈止损相对入场价的位置上。
// riskAmount 为 0 时盈亏比为 0，输出中不会出现 NaN 或 Inf。
func ComputeDerived(dir Direction, entry, stop, tp1, tp2, units, riskAmount, valuePerUnit float64) DerivedMetrics {
	move := func(target float64) float64 {
		return safe(units * math.Abs(target-entry) * valuePerUnit)
	}

	dm := DerivedMetrics{
		Direction:   dir,
		LossAtStop:  move(stop),
		ProfitAtTP1: move(tp1),
		ProfitAtTP2: move(tp2),
	}
	if finite(riskAmount) && riskAmount > 0 {
		dm.RiskRewardTP1 = safe(dm.ProfitAtTP1 / riskAmount)
		dm.RiskRewardTP2 = safe(dm.ProfitAtTP2 / riskAmount)
	}
	return dm
}

// Display 所有指标保留两位小数
func (dm DerivedMetrics) Display() DerivedMetrics {
	return DerivedMetrics{
		Direction:     dm.Direction,
		LossAtStop:    round2(dm.LossAtStop),
		ProfitAtTP1:   round2(dm.ProfitAtTP1),
		ProfitAtTP2:   round2(dm.ProfitAtTP2),
		RiskRewardTP1: round2(dm.RiskRewardTP1),
		RiskRewardTP2: round2(dm.RiskRewardTP2),
	}
}
