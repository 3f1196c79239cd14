package market

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// InstrumentKind 品种类别
type InstrumentKind string

const (
	KindForex  InstrumentKind = "forex"
	KindMetal  InstrumentKind = "metal"
	KindCrypto InstrumentKind = "crypto"
	KindIndex  InstrumentKind = "index"
	KindOther  InstrumentKind = "other"
)

// Instrument 合约规格（每手单位数、每单位价值、点值粒度）
type Instrument struct {
	Symbol       string         `json:"symbol" yaml:"symbol"`
	Kind         InstrumentKind `json:"kind" yaml:"kind"`
	UnitsPerLot  float64        `json:"unitsPerLot" yaml:"units_per_lot"`
	ValuePerUnit float64        `json:"valuePerUnit" yaml:"value_per_unit"`
	PipSize      float64        `json:"pipSize,omitempty" yaml:"pip_size,omitempty"`
	// Known 为 false 表示由默认规则合成
	Known bool `json:"known" yaml:"-"`
}

var isoCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true, "CAD": true,
	"AUD": true, "NZD": true, "SEK": true, "NOK": true, "DKK": true, "SGD": true,
	"HKD": true, "CNH": true, "MXN": true, "ZAR": true, "TRY": true, "PLN": true,
}

func fx(symbol string) Instrument {
	pip := 0.0001
	if strings.HasSuffix(symbol, "JPY") {
		pip = 0.01
	}
	return Instrument{Symbol: symbol, Kind: KindForex, UnitsPerLot: 100000, ValuePerUnit: 1, PipSize: pip, Known: true}
}

func unitLot(symbol string, kind InstrumentKind) Instrument {
	return Instrument{Symbol: symbol, Kind: kind, UnitsPerLot: 1, ValuePerUnit: 1, Known: true}
}

func builtinInstruments() map[string]Instrument {
	m := map[string]Instrument{
		"XAUUSD": {Symbol: "XAUUSD", Kind: KindMetal, UnitsPerLot: 100, ValuePerUnit: 1, PipSize: 0.01, Known: true},
		"XAGUSD": {Symbol: "XAGUSD", Kind: KindMetal, UnitsPerLot: 5000, ValuePerUnit: 1, PipSize: 0.001, Known: true},
	}
	for _, s := range []string{"EURUSD", "GBPUSD", "AUDUSD", "NZDUSD", "USDCAD", "USDCHF", "USDJPY", "EURJPY", "GBPJPY", "EURGBP"} {
		m[s] = fx(s)
	}
	for _, s := range []string{"BTCUSD", "BTCUSDT", "ETHUSD", "ETHUSDT", "SOLUSDT", "BNBUSDT"} {
		m[s] = unitLot(s, KindCrypto)
	}
	for _, s := range []string{"US30", "NAS100", "SPX500"} {
		m[s] = unitLot(s, KindIndex)
	}
	return m
}

// CanonicalSymbol 统一品种代码：去空白、转大写、去掉 / - _ 分隔符
func CanonicalSymbol(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '-', '_', ' ', '\t':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(s)))
}

// LooksLikeForex 规范化后的代码是否由两个 ISO 货币代码组成
func LooksLikeForex(canonical string) bool {
	if len(canonical) != 6 {
		return false
	}
	return isoCurrencies[canonical[:3]] && isoCurrencies[canonical[3:]]
}

// InstrumentTable 品种表，启动时加载一次，之后只读
type InstrumentTable struct {
	entries map[string]Instrument
}

// NewInstrumentTable 返回内置品种表
func NewInstrumentTable() *InstrumentTable {
	return &InstrumentTable{entries: builtinInstruments()}
}

// instrumentFile YAML 覆盖文件格式
type instrumentFile struct {
	Instruments []Instrument `yaml:"instruments"`
}

// LoadInstrumentFile 读取 YAML 覆盖文件并合并到内置表之上，返回新表
func LoadInstrumentFile(path string) (*InstrumentTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instrument file: %w", err)
	}
	return ParseInstrumentYAML(data)
}

// ParseInstrumentYAML 把 YAML 条目合并到内置表之上
func ParseInstrumentYAML(data []byte) (*InstrumentTable, error) {
	var f instrumentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse instrument file: %w", err)
	}

	t := NewInstrumentTable()
	for i, inst := range f.Instruments {
		sym := CanonicalSymbol(inst.Symbol)
		if sym == "" {
			return nil, fmt.Errorf("instrument #%d: symbol is required", i)
		}
		if inst.UnitsPerLot <= 0 {
			return nil, fmt.Errorf("instrument %s: units_per_lot must be positive", sym)
		}
		if inst.ValuePerUnit == 0 {
			inst.ValuePerUnit = 1
		}
		if inst.ValuePerUnit < 0 {
			return nil, fmt.Errorf("instrument %s: value_per_unit must be positive", sym)
		}
		if inst.Kind == "" {
			inst.Kind = KindOther
		}
		inst.Symbol = sym
		inst.Known = true
		t.entries[sym] = inst
	}
	return t, nil
}

// Lookup 查询品种规格，未知品种按规则回退，永不失败
func (t *InstrumentTable) Lookup(symbol string) Instrument {
	sym := CanonicalSymbol(symbol)
	if inst, ok := t.entries[sym]; ok {
		return inst
	}
	if LooksLikeForex(sym) {
		inst := fx(sym)
		inst.Known = false
		return inst
	}
	return Instrument{Symbol: sym, Kind: KindOther, UnitsPerLot: 1, ValuePerUnit: 1}
}

// All 按代码排序返回所有已知品种
func (t *InstrumentTable) All() []Instrument {
	out := make([]Instrument, 0, len(t.entries))
	for _, inst := range t.entries {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

var defaultTable = NewInstrumentTable()

// Lookup 使用内置品种表查询
func Lookup(symbol string) Instrument {
	return defaultTable.Lookup(symbol)
}
