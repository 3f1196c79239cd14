package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// FearGreedIndex 恐慌贪婪指数数据
type FearGreedIndex struct {
	Value     int       `json:"value"`      // 0-100 (0=极度恐慌, 100=极度贪婪)
	ValueText string    `json:"value_text"` // "Extreme Fear", "Fear", "Neutral", "Greed", "Extreme Greed"
	Timestamp time.Time `json:"timestamp"`
}

type fearGreedAPIResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
}

// FearGreedClient 恐慌贪婪指数客户端，仅用于给加密货币提示词补充市场情绪
type FearGreedClient struct {
	apiURL     string
	httpClient *http.Client

	mu          sync.Mutex
	cache       *FearGreedIndex
	cacheExpiry time.Time
}

// NewFearGreedClient 创建恐慌贪婪指数客户端
func NewFearGreedClient(apiURL string) *FearGreedClient {
	if apiURL == "" {
		apiURL = "https://api.alternative.me/fng/?limit=1"
	}
	return &FearGreedClient{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Index 获取当前恐慌贪婪指数。锁只保护缓存读写，HTTP 请求在锁外进行，
// 慢请求不会阻塞其他调用方读取缓存。
func (c *FearGreedClient) Index(ctx context.Context) (*FearGreedIndex, error) {
	// alternative.me 每天更新一次，缓存 4 小时避免被限流
	c.mu.Lock()
	if c.cache != nil && time.Now().Before(c.cacheExpiry) {
		cached := c.cache
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	index, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache = index
	c.cacheExpiry = time.Now().Add(4 * time.Hour)
	c.mu.Unlock()
	return index, nil
}

func (c *FearGreedClient) fetch(ctx context.Context) (*FearGreedIndex, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求恐慌贪婪指数失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 返回错误状态码: %d", resp.StatusCode)
	}

	var apiResp fearGreedAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("解析 JSON 失败: %w", err)
	}
	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("API 返回空数据")
	}

	data := apiResp.Data[0]
	value, err := strconv.Atoi(data.Value)
	if err != nil || value < 0 || value > 100 {
		return nil, fmt.Errorf("无效的指数值: %q", data.Value)
	}
	ts, _ := strconv.ParseInt(data.Timestamp, 10, 64)

	return &FearGreedIndex{
		Value:     value,
		ValueText: data.ValueClassification,
		Timestamp: time.Unix(ts, 0),
	}, nil
}

// Sentiment 获取市场情绪描述
func (fgi *FearGreedIndex) Sentiment() string {
	var label string
	switch {
	case fgi.Value <= 20:
		label = "Extreme fear"
	case fgi.Value <= 40:
		label = "Fear"
	case fgi.Value <= 60:
		label = "Neutral"
	case fgi.Value <= 80:
		label = "Greed"
	default:
		label = "Extreme greed"
	}
	return fmt.Sprintf("%s (Fear & Greed: %d/100)", label, fgi.Value)
}
