package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yungbote/chatbridge-backend/internal/platform/envutil"
	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/requestdata"
)

// RateLimitMiddleware throttles per principal, falling back to the
// client IP before authentication. Idle limiters are dropped after an
// hour so the map does not grow without bound.
type RateLimitMiddleware struct {
	log      *logger.Logger
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	enabled  bool
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimitMiddleware(baseLog *logger.Logger) *RateLimitMiddleware {
	perMinute := envutil.Float("RATE_LIMIT_PER_MINUTE", 60)
	burst := envutil.Int("RATE_LIMIT_BURST", 10)
	m := &RateLimitMiddleware{
		log:      baseLog.With("middleware", "RateLimitMiddleware"),
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(perMinute / 60.0),
		burst:    burst,
		enabled:  envutil.Bool("RATE_LIMIT_ENABLED", true),
	}
	go m.reap()
	return m
}

func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}
		key := c.ClientIP()
		if rd := requestdata.GetRequestData(c.Request.Context()); rd != nil && rd.UserID != uuid.Nil {
			key = rd.UserID.String()
		}
		if !m.limiterFor(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (m *RateLimitMiddleware) limiterFor(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (m *RateLimitMiddleware) reap() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-time.Hour)
		m.mu.Lock()
		for key, entry := range m.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(m.limiters, key)
			}
		}
		m.mu.Unlock()
	}
}
