package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/reprotech/pregtrack/internal/platform/auth"
	"github.com/reprotech/pregtrack/internal/platform/clock"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// Now defaults to the wall clock.
	Now clock.Func
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
	}
}

// limiterStore holds one limiter per branch and client address.
type limiterStore struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	return &limiterStore{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.BurstSize,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.RLock()
	l, ok := s.limiters[key]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[key]; ok {
		return l
	}
	l = rate.NewLimiter(s.limit, s.burst)
	s.limiters[key] = l
	return l
}

// retryAfter is the whole number of seconds until l holds a token again.
func retryAfter(l *rate.Limiter, now time.Time) int {
	if l.Limit() <= 0 {
		return 1
	}
	missing := 1 - l.TokensAt(now)
	if missing <= 0 {
		return 1
	}
	secs := int(math.Ceil(missing / float64(l.Limit())))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func rateLimitKey(c echo.Context) string {
	key := c.RealIP()
	if branch, ok := c.Get(auth.BranchClaimKey).(string); ok && branch != "" {
		key = branch + ":" + key
	}
	return key
}

// RateLimit throttles requests per branch and client IP with token buckets.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			l := store.get(rateLimitKey(c))
			t := now()
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			if !l.AllowN(t, 1) {
				h.Set("Retry-After", strconv.Itoa(retryAfter(l, t)))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
