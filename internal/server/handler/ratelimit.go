package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleEviction  = 10 * time.Minute
)

// ClientLimiter throttles the API per client IP with one token bucket per
// client. Buckets for idle clients are evicted by Run.
type ClientLimiter struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rps     rate.Limit
	burst   int
	logger  *zap.Logger
}

type clientBucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a ClientLimiter allowing rps sustained requests
// per second per client, with the given burst headroom.
func NewClientLimiter(rps, burst int, logger *zap.Logger) *ClientLimiter {
	return &ClientLimiter{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		logger:  logger,
	}
}

// Middleware returns the Gin middleware enforcing the limit. Throttled
// requests get 429 with a Retry-After hint; state-changing treasury
// operations are deliberately not exempted.
func (l *ClientLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !l.allow(ip) {
			l.logger.Debug("request throttled", zap.String("client_ip", ip))
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func (l *ClientLimiter) allow(ip string) bool {
	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &clientBucket{tokens: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()
	return b.tokens.Allow()
}

// Run evicts buckets for clients idle longer than limiterIdleEviction. It
// blocks until ctx is cancelled.
func (l *ClientLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

func (l *ClientLimiter) evictIdle(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleEviction {
			delete(l.buckets, ip)
		}
	}
}
