package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"tradeidea/logger"
	"tradeidea/metrics"
)

// 除数据源名称外的报价来源
const (
	OriginCache = "cache"
	OriginMock  = "mock"
)

// ErrNoSource 没有数据源支持该品种
var ErrNoSource = errors.New("no price source supports symbol")

// Quote 参考价
type Quote struct {
	Symbol    string    `json:"symbol"`
	Value     float64   `json:"value"`
	Origin    string    `json:"origin"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// MultiSource 按顺序选择第一个支持该品种的数据源
type MultiSource []PriceSource

func (m MultiSource) Name() string { return "multi" }

func (m MultiSource) Supports(symbol string) bool {
	return m.pick(symbol) != nil
}

func (m MultiSource) pick(symbol string) PriceSource {
	for _, s := range m {
		if s != nil && s.Supports(symbol) {
			return s
		}
	}
	return nil
}

func (m MultiSource) Price(ctx context.Context, symbol string) (float64, error) {
	s := m.pick(symbol)
	if s == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoSource, symbol)
	}
	return s.Price(ctx, symbol)
}

// source 实际提供该品种报价的数据源名称
func (m MultiSource) source(symbol string) string {
	if s := m.pick(symbol); s != nil {
		return s.Name()
	}
	return ""
}

// mockPrices 行情不可用时的静态参考价
var mockPrices = map[string]float64{
	"XAUUSD":  2000,
	"XAGUSD":  24,
	"EURUSD":  1.08,
	"GBPUSD":  1.27,
	"AUDUSD":  0.66,
	"NZDUSD":  0.61,
	"USDCAD":  1.36,
	"USDCHF":  0.88,
	"USDJPY":  150,
	"EURJPY":  162,
	"GBPJPY":  190,
	"EURGBP":  0.85,
	"BTCUSD":  60000,
	"BTCUSDT": 60000,
	"ETHUSD":  3000,
	"ETHUSDT": 3000,
	"SOLUSDT": 150,
	"BNBUSDT": 550,
	"US30":    39000,
	"NAS100":  18000,
	"SPX500":  5200,
}

const defaultMockPrice = 100

// MockPrice 返回品种的静态参考价
func MockPrice(symbol string) float64 {
	sym := CanonicalSymbol(symbol)
	if v, ok := mockPrices[sym]; ok {
		return v
	}
	if LooksLikeForex(sym) {
		if sym[3:] == "JPY" {
			return 100
		}
		return 1
	}
	return defaultMockPrice
}

// PriceFeed 参考价获取：缓存 -> 数据源（带超时）-> 静态价格，永不失败
type PriceFeed struct {
	cache   PriceCache
	source  PriceSource
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewPriceFeed source 和 cache 都可以为 nil
func NewPriceFeed(source PriceSource, cache PriceCache, ttl, timeout time.Duration) *PriceFeed {
	if cache == nil {
		cache = NewMemoryPriceCache()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PriceFeed{cache: cache, source: source, ttl: ttl, timeout: timeout, now: time.Now}
}

// ReferencePrice 获取参考价
func (f *PriceFeed) ReferencePrice(ctx context.Context, symbol string) Quote {
	sym := CanonicalSymbol(symbol)
	now := f.now()

	if cp, ok := f.cache.Get(ctx, sym); ok && validPrice(cp.Value) && cp.Fresh(now, f.ttl) {
		metrics.PriceLookups.WithLabelValues(OriginCache).Inc()
		return Quote{Symbol: sym, Value: cp.Value, Origin: OriginCache, FetchedAt: cp.FetchedAt}
	}

	if f.source != nil && f.source.Supports(sym) {
		cctx, cancel := context.WithTimeout(ctx, f.timeout)
		v, err := f.source.Price(cctx, sym)
		cancel()
		if err == nil && validPrice(v) {
			origin := f.source.Name()
			if ms, ok := f.source.(MultiSource); ok {
				origin = ms.source(sym)
			}
			f.cache.Set(ctx, sym, CachedPrice{Value: v, Source: origin, FetchedAt: now})
			metrics.PriceLookups.WithLabelValues(origin).Inc()
			return Quote{Symbol: sym, Value: v, Origin: origin, FetchedAt: now}
		}
		if err == nil {
			err = fmt.Errorf("invalid price %v", v)
		}
		logger.Warnf("⚠️  参考价获取失败 [%s]，使用静态价格: %v", sym, err)
	}

	metrics.PriceLookups.WithLabelValues(OriginMock).Inc()
	return Quote{Symbol: sym, Value: MockPrice(sym), Origin: OriginMock, FetchedAt: now}
}

// validPrice 价格必须为有限正数
func validPrice(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
