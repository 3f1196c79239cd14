package decision

import (
	"math"

	"tradeidea/trader"
)

// Source 交易想法的来源
type Source string

const (
	SourceOracle   Source = "oracle"
	SourceFallback Source = "fallback"
)

// FallbackReason 降级原因
type FallbackReason string

const (
	ReasonNone          FallbackReason = ""
	ReasonUnconfigured  FallbackReason = "oracle_unconfigured"
	ReasonTransport     FallbackReason = "oracle_transport"
	ReasonRateLimited   FallbackReason = "oracle_rate_limited"
	ReasonMalformed     FallbackReason = "oracle_malformed"
	ReasonMissingFields FallbackReason = "oracle_missing_fields"
)

// OrderType 下单方式
type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// ParseOrderType 只有精确等于 "limit" 才是限价单，其余一律视为市价单
func ParseOrderType(s string) OrderType {
	if s == string(Limit) {
		return Limit
	}
	return Market
}

// DefaultTimeFrame 来源未给出周期时使用
const DefaultTimeFrame = "H1"

// ProposedTrade 归一化后的交易想法，字段保证有限且方向一致
type ProposedTrade struct {
	ID             string           `json:"id"`
	Symbol         string           `json:"symbol"`
	Direction      trader.Direction `json:"direction"`
	OrderType      OrderType        `json:"orderType"`
	EntryPrice     float64          `json:"entryPrice"`
	StopLoss       float64          `json:"stopLoss"`
	TakeProfit1    float64          `json:"takeProfit1"`
	TakeProfit2    float64          `json:"takeProfit2"`
	TimeFrame      string           `json:"timeFrame"`
	Comment        string           `json:"comment"`
	Source         Source           `json:"source"`
	FallbackReason FallbackReason   `json:"fallbackReason,omitempty"`
	// Repaired 止损止盈是否由入场价重新推导
	Repaired bool `json:"repaired,omitempty"`
}

// OrderingHolds 买入: stop < entry < tp1 < tp2；卖出反之
func (p ProposedTrade) OrderingHolds() bool {
	for _, v := range []float64{p.EntryPrice, p.StopLoss, p.TakeProfit1, p.TakeProfit2} {
		if !(v > 0) || math.IsInf(v, 0) {
			return false
		}
	}
	if p.Direction == trader.Sell {
		return p.StopLoss > p.EntryPrice && p.EntryPrice > p.TakeProfit1 && p.TakeProfit1 > p.TakeProfit2
	}
	return p.StopLoss < p.EntryPrice && p.EntryPrice < p.TakeProfit1 && p.TakeProfit1 < p.TakeProfit2
}
