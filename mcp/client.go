package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"tradeidea/logger"
)

var (
	// ErrNotConfigured 未配置 API 密钥
	ErrNotConfigured = errors.New("ai client: api key not configured")
	// ErrRateLimited 服务端返回 429
	ErrRateLimited = errors.New("ai client: rate limited")
	// ErrEmptyResponse 响应中没有 choices
	ErrEmptyResponse = errors.New("ai client: empty response")
)

// APIError 非 200 响应
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API返回错误 (status %d): %s", e.StatusCode, e.Body)
}

// AIClient 大模型调用接口。只调用一次，不重试，失败交给调用方降级处理。
type AIClient interface {
	CallWithMessages(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client OpenAI 兼容的 chat completions 客户端
type Client struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	UseFullURL  bool // URL 以 # 结尾时按完整地址使用，不追加 /chat/completions

	httpClient *http.Client
}

// New 创建客户端。apiURL 以 # 结尾时视为完整地址。
func New(apiKey, apiURL, model string, maxTokens int) *Client {
	c := &Client{
		APIKey:      apiKey,
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: 0.5, // 较低温度提高 JSON 格式稳定性
		httpClient:  &http.Client{},
	}
	if strings.HasSuffix(apiURL, "#") {
		c.BaseURL = strings.TrimSuffix(apiURL, "#")
		c.UseFullURL = true
	} else {
		c.BaseURL = strings.TrimRight(apiURL, "/")
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 800
	}
	return c
}

// Configured 是否设置了 API 密钥
func (c *Client) Configured() bool { return c != nil && c.APIKey != "" }

func (c *Client) endpoint() string {
	if c.UseFullURL {
		return c.BaseURL
	}
	return c.BaseURL + "/chat/completions"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CallWithMessages 使用 system + user prompt 调用 AI API，超时由 ctx 控制
func (c *Client) CallWithMessages(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	checkTokenLimits(systemPrompt, userPrompt, c.Model)

	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	jsonData, err := json.Marshal(chatRequest{
		Model:       c.Model,
		Messages:    messages,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	logger.Debugf("📡 [MCP] 请求 %s (model=%s)", c.endpoint(), c.Model)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		// 只保留前 200 字节，避免日志泄露过多上游内容
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return "", &APIError{StatusCode: resp.StatusCode, Body: snippet}
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("解析响应失败: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	logger.Debugf("✓ [MCP] 响应耗时 %v", time.Since(start))
	return result.Choices[0].Message.Content, nil
}

// ModelLimits AI模型的token限制
type ModelLimits struct {
	TotalLimit int
	Model      string
}

func getModelLimits(modelName string) ModelLimits {
	m := strings.ToLower(modelName)
	switch {
	case strings.Contains(m, "gpt-4o"), strings.Contains(m, "gpt-4-turbo"), strings.Contains(m, "gpt-4.1"):
		return ModelLimits{TotalLimit: 128000, Model: "GPT-4o/4-Turbo"}
	case strings.Contains(m, "gpt-4"):
		return ModelLimits{TotalLimit: 8192, Model: "GPT-4"}
	case strings.Contains(m, "deepseek"):
		return ModelLimits{TotalLimit: 64000, Model: "DeepSeek"}
	case strings.Contains(m, "qwen"):
		return ModelLimits{TotalLimit: 32000, Model: "Qwen"}
	}
	// 默認（保守估計）
	return ModelLimits{TotalLimit: 16000, Model: "Unknown"}
}

// estimateTokens 粗略估算：约 2 个字符 = 1 token（保守）
func estimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 2
}

// checkTokenLimits 检查并警告 token 使用情况，返回估算总数
func checkTokenLimits(systemPrompt, userPrompt, modelName string) int {
	total := estimateTokens(systemPrompt) + estimateTokens(userPrompt)
	limits := getModelLimits(modelName)

	switch {
	case total > limits.TotalLimit:
		logger.Errorf("🔴 [Token] 总 Token 数超限：%d tokens（%s 限制：%d）", total, limits.Model, limits.TotalLimit)
	case total > int(float64(limits.TotalLimit)*0.8):
		logger.Warnf("⚠️  [Token] 接近限制：%d tokens (限制: %d, 使用率: %.1f%%)",
			total, limits.TotalLimit, float64(total)/float64(limits.TotalLimit)*100)
	}
	return total
}
