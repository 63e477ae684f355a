package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-router"
	"golang.org/x/time/rate"
)

// Logger matches the printf logging contract the rest of the server uses.
type Logger interface {
	Warn(format string, args ...any)
}

// IPRateLimiter applies a token bucket per client IP. Buckets for idle
// clients are swept after five minutes.
type IPRateLimiter struct {
	visitors sync.Map
	rps      rate.Limit
	burst    int
	log      Logger
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter builds a limiter allowing perMinute requests with a small
// burst headroom.
func NewIPRateLimiter(perMinute int, burst int, logger Logger) *IPRateLimiter {
	if burst <= 0 {
		burst = 5
	}
	l := &IPRateLimiter{
		rps:   rate.Limit(float64(perMinute) / 60.0),
		burst: burst,
		log:   logger,
	}
	go l.cleanupVisitors()
	return l
}

func (l *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	v, ok := l.visitors.Load(ip)
	if ok {
		vi := v.(*visitor)
		vi.lastSeen = time.Now()
		return vi.limiter
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.visitors.Store(ip, &visitor{limiter: lim, lastSeen: time.Now()})
	return lim
}

func (l *IPRateLimiter) cleanupVisitors() {
	for {
		time.Sleep(time.Minute)
		cutoff := time.Now().Add(-5 * time.Minute)
		l.visitors.Range(func(k, v interface{}) bool {
			vi := v.(*visitor)
			if vi.lastSeen.Before(cutoff) {
				l.visitors.Delete(k)
			}
			return true
		})
	}
}

// Allow reports whether the client identified by ip may proceed.
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.getLimiter(ip).Allow()
}

// Middleware wraps handlers with the limiter.
func (l *IPRateLimiter) Middleware() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			ip := ClientIP(c)
			if !l.Allow(ip) {
				if l.log != nil {
					l.log.Warn("rate limit exceeded ip=%s path=%s", ip, c.Path())
				}
				return c.JSON(router.StatusTooManyRequests, map[string]string{
					"error": "Too many requests, please try again later",
				})
			}
			return c.Next()
		}
	}
}

// ClientIP resolves the caller address from proxy headers, falling back to
// "unknown" for direct requests without them.
func ClientIP(c router.Context) string {
	if fwd := c.Header("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	if ip := c.Header("X-Real-Ip"); ip != "" {
		return ip
	}
	return "unknown"
}
