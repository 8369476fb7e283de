package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	defaultRatePerSecond = 10.0
	defaultBurst         = 20

	// visitorMaxIdle is how long an IP's token bucket survives without
	// traffic before it is pruned
	visitorMaxIdle = 10 * time.Minute
)

// visitor pairs a token bucket with its last activity, so idle buckets can
// be pruned without resetting active ones
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter hands out one token bucket per client IP
type ipLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
}

func newIPLimiter(r rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    burst,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// prune drops buckets that have been idle longer than maxIdle
func (l *ipLimiter) prune(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

// RateLimiter throttles requests per client IP. Webhook deliveries and
// widget traffic share the limiter, so the burst must absorb a batchy
// Pub/Sub redelivery without rejections. Non-positive arguments fall back
// to the defaults.
func RateLimiter(requestsPerSecond float64, burst int, logger *slog.Logger) echo.MiddlewareFunc {
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRatePerSecond
	}
	if burst <= 0 {
		burst = defaultBurst
	}

	limiter := newIPLimiter(rate.Limit(requestsPerSecond), burst)

	go func() {
		ticker := time.NewTicker(visitorMaxIdle)
		defer ticker.Stop()
		for range ticker.C {
			limiter.prune(visitorMaxIdle)
		}
	}()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !limiter.allow(ip) {
				if logger != nil {
					logger.Warn("rate limit exceeded",
						slog.String("ip", ip),
						slog.String("path", c.Path()))
				}
				c.Response().Header().Set("Retry-After", "60")
				return echo.NewHTTPError(429, map[string]string{
					"error":       "rate limit exceeded",
					"code":        "RATE_LIMITED",
					"retry_after": "60",
				})
			}
			return next(c)
		}
	}
}
