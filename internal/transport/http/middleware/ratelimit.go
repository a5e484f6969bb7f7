package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	resp "health-diary/internal/transport/http/response"
)

// RateLimit 全局令牌桶限速
func RateLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	lim := rate.NewLimiter(rps, burst)
	return func(c *gin.Context) {
		if lim.Allow() {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeTooManyRequests, "too many requests"))
	}
}

// RateLimitPerIP 每 IP 限速（登录口防爆破）
func RateLimitPerIP(rps rate.Limit, burst int) gin.HandlerFunc {
	l := newIPLimiter(rps, burst, time.Now)
	return func(c *gin.Context) {
		if l.allow(c.ClientIP()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeTooManyRequests, "too many requests"))
	}
}

const ipIdleTTL = 10 * time.Minute

type ipBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// ipLimiter 闲置超过 idle 的桶被回收；idle 不短于桶回满的时间，回收不会多放行
type ipLimiter struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
	buckets   map[string]*ipBucket
	lastSweep time.Time
}

func newIPLimiter(rps rate.Limit, burst int, now func() time.Time) *ipLimiter {
	idle := ipIdleTTL
	if rps > 0 {
		if full := time.Duration(float64(burst) / float64(rps) * float64(time.Second)); full > idle {
			idle = full
		}
	}
	return &ipLimiter{rps: rps, burst: burst, idle: idle, now: now, buckets: map[string]*ipBucket{}, lastSweep: now()}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (l *ipLimiter) sweep(now time.Time) {
	for ip, b := range l.buckets {
		if now.Sub(b.seen) >= l.idle {
			delete(l.buckets, ip)
		}
	}
	l.lastSweep = now
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
