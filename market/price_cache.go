package market

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedPrice 缓存的参考价及其获取时间
type CachedPrice struct {
	Value     float64   `json:"value"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Fresh 在 now 时刻是否仍在 ttl 内
func (c CachedPrice) Fresh(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(c.FetchedAt) < ttl
}

// PriceCache 价格缓存抽象。TTL 由调用方判断，缓存本身只负责存取。
// 并发写入按最后写入为准，过期或重复写入都无害。
type PriceCache interface {
	Get(ctx context.Context, symbol string) (CachedPrice, bool)
	Set(ctx context.Context, symbol string, p CachedPrice)
}

// MemoryPriceCache 进程内缓存
type MemoryPriceCache struct {
	m sync.Map
}

func NewMemoryPriceCache() *MemoryPriceCache {
	return &MemoryPriceCache{}
}

func (c *MemoryPriceCache) Get(_ context.Context, symbol string) (CachedPrice, bool) {
	v, ok := c.m.Load(symbol)
	if !ok {
		return CachedPrice{}, false
	}
	return v.(CachedPrice), true
}

func (c *MemoryPriceCache) Set(_ context.Context, symbol string, p CachedPrice) {
	c.m.Store(symbol, p)
}

// RedisPriceCache 多实例部署时共享的 Redis 缓存
type RedisPriceCache struct {
	rdb *redis.Client
	// keep 是 Redis 保留条目的时长，是否新鲜仍由调用方判断
	keep time.Duration
}

// NewRedisPriceCache 包装已有客户端，keep <= 0 时默认保留 5 分钟
func NewRedisPriceCache(rdb *redis.Client, keep time.Duration) *RedisPriceCache {
	if keep <= 0 {
		keep = 5 * time.Minute
	}
	return &RedisPriceCache{rdb: rdb, keep: keep}
}

// NewRedisPriceCacheFromURL 解析 redis:// 地址
func NewRedisPriceCacheFromURL(url string, keep time.Duration) (*RedisPriceCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisPriceCache(redis.NewClient(opts), keep), nil
}

// Ping 检查连接
func (c *RedisPriceCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisPriceCache) Close() error {
	return c.rdb.Close()
}

func (c *RedisPriceCache) Get(ctx context.Context, symbol string) (CachedPrice, bool) {
	data, err := c.rdb.Get(ctx, priceKey(symbol)).Bytes()
	if err != nil {
		return CachedPrice{}, false
	}
	var p CachedPrice
	if json.Unmarshal(data, &p) != nil {
		return CachedPrice{}, false
	}
	return p, true
}

func (c *RedisPriceCache) Set(ctx context.Context, symbol string, p CachedPrice) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, priceKey(symbol), data, c.keep)
}

func priceKey(symbol string) string { return "price:" + symbol }
