package decision

import (
	"fmt"
	"strings"

	"tradeidea/market"
	"tradeidea/trader"
)

// promptContext 构建提示词所需的动态数据
type promptContext struct {
	Symbol     string
	Instrument market.Instrument
	Quote      market.Quote
	Risk       trader.RiskInputs
	TimeFrame  string
	Sentiment  string
}

// buildSystemPrompt 构建 System Prompt（固定规则与输出格式）
func buildSystemPrompt(variations int) string {
	var sb strings.Builder

	sb.WriteString("You are a professional trading analyst. Propose concrete, conservative trade ideas.\n\n")

	sb.WriteString("# Rules\n\n")
	sb.WriteString("1. Every idea has a direction (buy or sell), an entry price, a stop loss and two take-profit levels.\n")
	sb.WriteString("2. For buy: stopLoss < entryPrice < takeProfit1 < takeProfit2. For sell the order is reversed.\n")
	sb.WriteString("3. Prices are plain numbers: no ranges (~), no thousands separators, no units.\n")
	sb.WriteString("4. Position size and risk amount are computed by the system. Do not include them.\n\n")

	sb.WriteString("# Output format (strict)\n\n")
	sb.WriteString("Reply with JSON only, inside <decision> tags.\n\n")
	sb.WriteString("<decision>\n")
	if variations > 0 {
		sb.WriteString(fmt.Sprintf("[ %d objects like the one below, each a distinct idea ]\n", variations))
	}
	sb.WriteString(`{"direction": "buy", "orderType": "limit", "entryPrice": 2000.5, "stopLoss": 1985.0, "takeProfit1": 2030.0, "takeProfit2": 2050.0, "timeFrame": "H1", "comment": "Pullback to support within uptrend"}`)
	sb.WriteString("\n</decision>\n\n")

	sb.WriteString("## Fields\n\n")
	sb.WriteString("- `direction`: buy | sell\n")
	sb.WriteString("- `orderType`: market | limit\n")
	sb.WriteString("- `timeFrame`: M5 | M15 | M30 | H1 | H4 | D1\n")
	sb.WriteString("- `comment`: one or two sentences of rationale\n")
	return sb.String()
}

// buildUserPrompt 构建 User Prompt（动态数据）
func buildUserPrompt(pc promptContext, variations int) string {
	var sb strings.Builder

	if variations > 0 {
		sb.WriteString(fmt.Sprintf("# Generate %d trade ideas for %s\n\n", variations, pc.Symbol))
	} else {
		sb.WriteString(fmt.Sprintf("# Generate one trade idea for %s\n\n", pc.Symbol))
	}

	sb.WriteString("## Market\n\n")
	if pc.Quote.Origin == market.OriginMock {
		sb.WriteString(fmt.Sprintf("- Approximate price: %s (no live quote available, use your own estimate if better)\n", formatPrice(pc.Quote.Value, pc.Instrument)))
	} else {
		sb.WriteString(fmt.Sprintf("- Current price: %s (source: %s)\n", formatPrice(pc.Quote.Value, pc.Instrument), pc.Quote.Origin))
	}
	sb.WriteString(fmt.Sprintf("- Instrument type: %s\n", pc.Instrument.Kind))
	if pc.Instrument.PipSize > 0 {
		sb.WriteString(fmt.Sprintf("- Pip size: %g\n", pc.Instrument.PipSize))
	}
	if pc.Sentiment != "" {
		sb.WriteString(fmt.Sprintf("- Crypto market sentiment: %s\n", pc.Sentiment))
	}

	sb.WriteString("\n## Account\n\n")
	sb.WriteString(fmt.Sprintf("- Account size: %.2f\n", pc.Risk.AccountSize))
	sb.WriteString(fmt.Sprintf("- Risk per trade: %.2f%%\n", pc.Risk.RiskPercent))
	if pc.TimeFrame != "" {
		sb.WriteString(fmt.Sprintf("- Preferred timeframe: %s\n", pc.TimeFrame))
	}

	sb.WriteString("\nReply with the JSON only.\n")
	return sb.String()
}

func formatPrice(v float64, inst market.Instrument) string {
	switch {
	case inst.PipSize > 0 && inst.PipSize < 0.001:
		return fmt.Sprintf("%.5f", v)
	case v < 10:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}
