package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"

	"tradeidea/logger"
)

// PriceSource 行情数据源
type PriceSource interface {
	Name() string
	Supports(symbol string) bool
	Price(ctx context.Context, symbol string) (float64, error)
}

// tickerLister 抽出 go-binance 的最新价查询，便于测试替换
type tickerLister interface {
	ListPrices(ctx context.Context, symbol string) ([]*binance.SymbolPrice, error)
}

type binanceTicker struct {
	client *binance.Client
}

func (b binanceTicker) ListPrices(ctx context.Context, symbol string) ([]*binance.SymbolPrice, error) {
	return b.client.NewListPricesService().Symbol(symbol).Do(ctx)
}

// BinanceSource 使用 Binance 现货最新价作为加密货币参考价（公开接口，无需密钥）
type BinanceSource struct {
	tickers tickerLister
	table   *InstrumentTable
}

// NewBinanceSource 创建 Binance 数据源实例
func NewBinanceSource(table *InstrumentTable) *BinanceSource {
	if table == nil {
		table = defaultTable
	}
	return &BinanceSource{
		tickers: binanceTicker{client: binance.NewClient("", "")},
		table:   table,
	}
}

func (b *BinanceSource) Name() string { return "binance" }

// Supports 仅处理加密货币品种
func (b *BinanceSource) Supports(symbol string) bool {
	return b.table.Lookup(symbol).Kind == KindCrypto
}

// Price 获取最新成交价。BTCUSD 这类报价映射到 USDT 交易对。
func (b *BinanceSource) Price(ctx context.Context, symbol string) (float64, error) {
	pair := binancePair(CanonicalSymbol(symbol))
	prices, err := b.tickers.ListPrices(ctx, pair)
	if err != nil {
		logger.Warnf("⚠️  Binance 获取价格失败 [%s]: %v", pair, err)
		return 0, fmt.Errorf("binance price %s: %w", pair, err)
	}
	for _, p := range prices {
		if p == nil || p.Symbol != pair {
			continue
		}
		v, err := strconv.ParseFloat(p.Price, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("binance price %s: invalid value %q", pair, p.Price)
		}
		logger.Debugf("✓ Binance 价格 [%s]: %.4f", pair, v)
		return v, nil
	}
	return 0, fmt.Errorf("binance price %s: symbol not returned", pair)
}

func binancePair(sym string) string {
	if strings.HasSuffix(sym, "USD") {
		return sym + "T"
	}
	return sym
}
