package decision

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"tradeidea/trader"
)

// FallbackGenerator 模型不可用时生成合成交易想法（安全回退）
type FallbackGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewFallbackGenerator rnd 为 nil 时使用按时间播种的随机源，测试可注入固定种子
func NewFallbackGenerator(rnd *rand.Rand) *FallbackGenerator {
	if rnd == nil {
		now := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(now, now>>1|1))
	}
	return &FallbackGenerator{rnd: rnd}
}

func (g *FallbackGenerator) side() trader.Direction {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rnd.IntN(2) == 1 {
		return trader.Sell
	}
	return trader.Buy
}

// Generate 以参考价为入场价、固定比例推导止损止盈的市价单
func (g *FallbackGenerator) Generate(symbol string, in trader.RiskInputs, reason FallbackReason, opts NormalizeOptions) ProposedTrade {
	opts.Source = SourceFallback
	raw := RawTrade{
		"direction": string(g.side()),
		"orderType": string(Market),
		"comment":   fallbackComment(reason),
	}
	t := Normalize(raw, symbol, in, opts)
	t.FallbackReason = reason
	return t
}

func fallbackComment(reason FallbackReason) string {
	switch reason {
	case ReasonUnconfigured:
		return "Synthetic idea: AI oracle is not configured. Levels are fixed offsets from the reference price."
	case ReasonRateLimited:
		return "Synthetic idea: AI oracle is rate limited. Levels are fixed offsets from the reference price."
	case ReasonTransport:
		return "Synthetic idea: AI oracle could not be reached. Levels are fixed offsets from the reference price."
	}
	return fmt.Sprintf("Synthetic idea: AI oracle returned an unusable proposal (%s). Levels are fixed offsets from the reference price.", reason)
}
