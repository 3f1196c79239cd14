package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"tradeidea/logger"
	"tradeidea/metrics"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter IP 级别的速率限制器，保护模型调用额度
type IPRateLimiter struct {
	mu   sync.Mutex
	ips  map[string]*visitor
	r    rate.Limit // 每秒允许的请求数
	b    int        // 令牌桶容量
	idle time.Duration
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewIPRateLimiter 创建 IP 速率限制器并启动后台清理
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	l := &IPRateLimiter{
		ips:  make(map[string]*visitor),
		r:    r,
		b:    b,
		idle: 10 * time.Minute,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	go l.cleanupLoop(time.Minute)
	return l
}

// GetLimiter 获取或创建指定 IP 的限制器
func (l *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.ips[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.r, l.b)}
		l.ips[ip] = v
	}
	v.lastSeen = l.now()
	return v.limiter
}

// Len 当前跟踪的 IP 数量
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ips)
}

// Stop 停止后台清理
func (l *IPRateLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *IPRateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if n := l.evictIdle(); n > 0 {
				logger.Debugf("🧹 [RATE_LIMITER] 清理 %d 个空闲限制器", n)
			}
		}
	}
}

// evictIdle 删除超过 idle 未访问的 IP
func (l *IPRateLimiter) evictIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idle)
	n := 0
	for ip, v := range l.ips {
		if v.lastSeen.Before(cutoff) {
			delete(l.ips, ip)
			n++
		}
	}
	return n
}

// RateLimitMiddleware 按客户端 IP 限流，超限返回 429
func RateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	retryAfter := 1
	if limiter.r > 0 && float64(limiter.r) < 1 {
		retryAfter = int(1/float64(limiter.r) + 0.5)
	}
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.GetLimiter(ip).Allow() {
			metrics.RateLimited.Inc()
			logger.Warnf("⚠️ [RATE_LIMIT] IP %s 请求过于频繁 (%s)", ip, c.FullPath())
			c.Header("Retry-After", itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}
