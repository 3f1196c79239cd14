package decision

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"tradeidea/config"
	"tradeidea/trader"
)

const maxCommentRunes = 500

// coercionEnv 计算默认值所需的上下文
type coercionEnv struct {
	reference float64
	offsets   offsets
}

// offsets 相对入场价的止损/止盈比例
type offsets struct {
	stop, tp1, tp2 float64
}

func offsetsFrom(cfg *config.RiskConfig) offsets {
	def := config.DefaultRiskConfig()
	if cfg == nil {
		cfg = def
	}
	o := offsets{stop: cfg.StopOffsetPct, tp1: cfg.TakeProfit1OffsetPct, tp2: cfg.TakeProfit2OffsetPct}
	// 偏移必须在 (0,1) 且 tp1 < tp2，否则无法保证方向一致
	if !(o.stop > 0 && o.stop < 1 && o.tp1 > 0 && o.tp2 > o.tp1 && o.tp2 < 1) {
		o = offsets{stop: def.StopOffsetPct, tp1: def.TakeProfit1OffsetPct, tp2: def.TakeProfit2OffsetPct}
	}
	return o
}

// derive 由入场价和方向推导止损与两个止盈
func (o offsets) derive(dir trader.Direction, entry float64) (stop, tp1, tp2 float64) {
	if dir == trader.Sell {
		return entry * (1 + o.stop), entry * (1 - o.tp1), entry * (1 - o.tp2)
	}
	return entry * (1 - o.stop), entry * (1 + o.tp1), entry * (1 + o.tp2)
}

// fieldRule 一条声明式强制转换规则：字段名 -> {别名, 解析器, 非法时的默认值}
type fieldRule interface {
	field() string
	apply(raw RawTrade, t *ProposedTrade, env coercionEnv) (defaulted bool)
}

type rule[T any] struct {
	Field   string
	Aliases []string
	Parse   func(v any) (T, bool)
	Default func(t *ProposedTrade, env coercionEnv) T
	Set     func(t *ProposedTrade, v T)
}

func (r rule[T]) field() string { return r.Field }

func (r rule[T]) apply(raw RawTrade, t *ProposedTrade, env coercionEnv) bool {
	if v, ok := r.Parse(raw.lookup(r.Field, r.Aliases)); ok {
		r.Set(t, v)
		return false
	}
	r.Set(t, r.Default(t, env))
	return true
}

type requiredField struct {
	key     string
	aliases []string
}

var (
	entryAliases = []string{"entry", "entry_price", "price"}
	stopAliases  = []string{"stop", "stop_loss", "sl"}
)

// requiredFields 缺失任何一个都视为不可用的提案
var requiredFields = []requiredField{
	{key: "entryPrice", aliases: entryAliases},
	{key: "stopLoss", aliases: stopAliases},
}

// coercionTable 按顺序应用：方向和入场价先定，止损止盈的默认值依赖它们
var coercionTable = []fieldRule{
	rule[trader.Direction]{
		Field:   "direction",
		Aliases: []string{"side", "action"},
		Parse:   parseDirection,
		Default: func(*ProposedTrade, coercionEnv) trader.Direction { return trader.Buy },
		Set:     func(t *ProposedTrade, v trader.Direction) { t.Direction = v },
	},
	rule[OrderType]{
		Field:   "orderType",
		Aliases: []string{"entryType", "order_type", "type"},
		Parse:   parseOrderType,
		Default: func(*ProposedTrade, coercionEnv) OrderType { return Market },
		Set:     func(t *ProposedTrade, v OrderType) { t.OrderType = v },
	},
	rule[float64]{
		Field:   "entryPrice",
		Aliases: entryAliases,
		Parse:   parsePrice,
		Default: func(_ *ProposedTrade, env coercionEnv) float64 { return env.reference },
		Set:     func(t *ProposedTrade, v float64) { t.EntryPrice = v },
	},
	rule[float64]{
		Field:   "stopLoss",
		Aliases: stopAliases,
		Parse:   parsePrice,
		Default: func(t *ProposedTrade, env coercionEnv) float64 {
			stop, _, _ := env.offsets.derive(t.Direction, t.EntryPrice)
			return stop
		},
		Set: func(t *ProposedTrade, v float64) { t.StopLoss = v },
	},
	rule[float64]{
		Field:   "takeProfit1",
		Aliases: []string{"takeProfit", "tp1", "take_profit_1", "take_profit"},
		Parse:   parsePrice,
		Default: func(t *ProposedTrade, env coercionEnv) float64 {
			_, tp1, _ := env.offsets.derive(t.Direction, t.EntryPrice)
			return tp1
		},
		Set: func(t *ProposedTrade, v float64) { t.TakeProfit1 = v },
	},
	rule[float64]{
		Field:   "takeProfit2",
		Aliases: []string{"tp2", "take_profit_2"},
		Parse:   parsePrice,
		Default: func(t *ProposedTrade, env coercionEnv) float64 {
			_, _, tp2 := env.offsets.derive(t.Direction, t.EntryPrice)
			return tp2
		},
		Set: func(t *ProposedTrade, v float64) { t.TakeProfit2 = v },
	},
	rule[string]{
		Field:   "timeFrame",
		Aliases: []string{"timeframe", "time_frame", "tf"},
		Parse:   parseTimeFrame,
		Default: func(*ProposedTrade, coercionEnv) string { return DefaultTimeFrame },
		Set:     func(t *ProposedTrade, v string) { t.TimeFrame = v },
	},
	rule[string]{
		Field:   "comment",
		Aliases: []string{"reasoning", "rationale", "note"},
		Parse:   parseComment,
		Default: func(*ProposedTrade, coercionEnv) string { return "" },
		Set:     func(t *ProposedTrade, v string) { t.Comment = v },
	},
}

// parsePrice 严格数值解析：有限、大于 0；接受 JSON 数字或数字字符串
func parsePrice(v any) (float64, bool) {
	var f float64
	var err error
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return f, true
}

func parseDirection(v any) (trader.Direction, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return trader.ParseDirection(s), true
}

func parseOrderType(v any) (OrderType, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return ParseOrderType(s), true
}

func parseTimeFrame(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || len(s) > 8 {
		return "", false
	}
	return s, true
}

func parseComment(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxCommentRunes {
		s = string([]rune(s)[:maxCommentRunes])
	}
	return s, true
}
