package trader

import (
	"fmt"

	"tradeidea/config"
)

// 风险等级
const (
	RiskLow        = "low"
	RiskMedium     = "medium"
	RiskHigh       = "high"
	RiskAggressive = "aggressive"
)

// Assessment 建议性风险评估，只产生提示，从不拒绝请求
type Assessment struct {
	RiskLevel  string   `json:"riskLevel"`
	Aggressive bool     `json:"aggressive"`
	Warnings   []string `json:"warnings"`
}

// Assess 评估风险等级并给出提示
func Assess(in RiskInputs, ps PositionSizing, dm DerivedMetrics, cfg *config.RiskConfig) Assessment {
	if cfg == nil {
		cfg = config.DefaultRiskConfig()
	}

	a := Assessment{
		Aggressive: in.RiskPercent > cfg.AggressiveRiskPct,
		Warnings:   make([]string, 0),
	}

	// 根据单笔风险百分比划分
	switch {
	case a.Aggressive:
		a.RiskLevel = RiskAggressive
		a.Warnings = append(a.Warnings,
			fmt.Sprintf("risk of %.2f%% per trade is aggressive (above %.0f%%)", in.RiskPercent, cfg.AggressiveRiskPct))
	case in.RiskPercent > cfg.HighRiskPct:
		a.RiskLevel = RiskHigh
	case in.RiskPercent > cfg.MediumRiskPct:
		a.RiskLevel = RiskMedium
	default:
		a.RiskLevel = RiskLow
	}

	if ps.StopDistance == 0 {
		a.Warnings = append(a.Warnings, "stop distance is zero; position size set to 0")
		return a
	}

	if ps.Entry > 0 {
		distPct := ps.StopDistance / ps.Entry * 100
		if distPct < cfg.MinStopDistancePct {
			a.Warnings = append(a.Warnings,
				fmt.Sprintf("stop is very tight: %.3f%% of entry < %.2f%%", distPct, cfg.MinStopDistancePct))
		}
	}

	if dm.RiskRewardTP1 > 0 && dm.RiskRewardTP1 < 1 {
		a.Warnings = append(a.Warnings,
			fmt.Sprintf("reward at TP1 is below the amount risked (R:R %.2f)", dm.RiskRewardTP1))
	}

	if ps.UnitsPerLot > 1 && ps.Lots < 0.01 {
		a.Warnings = append(a.Warnings,
			fmt.Sprintf("position of %.4f lots is below the 0.01 micro lot most brokers accept", ps.Lots))
	}

	if !ps.KnownInstrument {
		a.Warnings = append(a.Warnings,
			fmt.Sprintf("%s is not in the instrument table; default contract size used", ps.Symbol))
	}
	return a
}
