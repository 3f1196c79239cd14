package trader

import (
	"math"

	"tradeidea/market"
)

// PositionSizing 仓位计算结果（全精度）
type PositionSizing struct {
	Symbol       string  `json:"symbol"`
	Entry        float64 `json:"entryPrice"`
	Stop         float64 `json:"stopLoss"`
	RiskAmount   float64 `json:"riskAmount"`
	StopDistance float64 `json:"stopDistance"`
	Units        float64 `json:"units"`
	Lots         float64 `json:"lots"`
	UnitsPerLot  float64 `json:"unitsPerLot"`
	ValuePerUnit float64 `json:"valuePerUnit"`
	// KnownInstrument 为 false 表示合约规格来自默认规则
	KnownInstrument bool `json:"knownInstrument"`
}

// ComputeSizing 根据风险参数和止损距离计算仓位，品种规格取自内置表
func ComputeSizing(in RiskInputs, entry, stop float64, symbol string) (PositionSizing, error) {
	return ComputeSizingFor(in, entry, stop, market.Lookup(symbol))
}

// ComputeSizingFor 使用给定品种规格计算仓位
//
// riskAmount 每次都由 accountSize × (riskPercent / 100) 重新计算，从不采用外部提供的值。
// 止损距离为 0 或非有限数时返回 0 仓位，不报错。
func ComputeSizingFor(in RiskInputs, entry, stop float64, inst market.Instrument) (PositionSizing, error) {
	if err := in.Validate(); err != nil {
		return PositionSizing{}, err
	}

	valuePerUnit := inst.ValuePerUnit
	if !finite(valuePerUnit) || valuePerUnit <= 0 {
		valuePerUnit = 1
	}
	unitsPerLot := inst.UnitsPerLot
	if !finite(unitsPerLot) || unitsPerLot <= 0 {
		unitsPerLot = 1
	}

	ps := PositionSizing{
		Symbol:          inst.Symbol,
		Entry:           entry,
		Stop:            stop,
		RiskAmount:      in.RiskAmount(),
		UnitsPerLot:     unitsPerLot,
		ValuePerUnit:    valuePerUnit,
		KnownInstrument: inst.Known,
	}

	distance := math.Abs(entry - stop)
	if !finite(entry) || !finite(stop) || !finite(distance) || distance == 0 {
		return ps, nil
	}
	ps.StopDistance = distance

	units := ps.RiskAmount / (distance * valuePerUnit)
	if !finite(units) {
		return ps, nil
	}
	ps.Units = units
	ps.Lots = units / unitsPerLot
	return ps, nil
}

// SizingDisplay 仓位的显示值（两位小数）
type SizingDisplay struct {
	RiskAmount   float64 `json:"riskAmount"`
	StopDistance float64 `json:"stopDistance"`
	Units        float64 `json:"positionSize"`
	Lots         float64 `json:"recommendedLots"`
}

// Display 金额、单位数和手数保留两位小数；止损距离保留 6 位，避免外汇距离被舍入成 0.01
func (ps PositionSizing) Display() SizingDisplay {
	return SizingDisplay{
		RiskAmount:   round2(ps.RiskAmount),
		StopDistance: Round(ps.StopDistance, 6),
		Units:        round2(ps.Units),
		Lots:         round2(ps.Lots),
	}
}
