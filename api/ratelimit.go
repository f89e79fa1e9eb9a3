package api

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter is the check-and-increment collaborator consulted by the
// pipeline. The key combines the caller identity (or IP) with the route
// path. A false result comes with a hint for the Retry-After header.
type RateLimiter interface {
	Allow(key string) (ok bool, retryAfter time.Duration)
}

// ---------------------------------------------------------------------------
// In-process token bucket
// ---------------------------------------------------------------------------

// TokenBucketLimiter keeps a token bucket per key. State is process-local;
// deployments with more than one process should use the Redis limiter so
// limits hold across the fleet.
type TokenBucketLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

var _ RateLimiter = (*TokenBucketLimiter)(nil)

// NewTokenBucketLimiter creates a limiter allowing requestsPerSecond with
// the given burst per key.
func NewTokenBucketLimiter(requestsPerSecond, burst int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (l *TokenBucketLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = lim
	}
	// Bound the map so a key-spraying client cannot grow it without limit.
	if len(l.limiters) > 100000 {
		l.limiters = map[string]*rate.Limiter{key: lim}
	}
	l.mu.Unlock()

	if lim.Allow() {
		return true, 0
	}
	// One token's worth of waiting is the soonest a retry can succeed.
	return false, time.Duration(float64(time.Second) / float64(l.rate))
}

// ---------------------------------------------------------------------------
// Redis fixed window
// ---------------------------------------------------------------------------

// RedisLimiter counts requests per key in fixed one-second windows shared
// across processes via INCR + EXPIRE. On Redis failure it fails open: a
// broken counter store must not take the whole API down.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

var _ RateLimiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a Redis-backed limiter allowing limit requests
// per window per key.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &RedisLimiter{client: client, limit: int64(limit), window: window}
}

func (l *RedisLimiter) Allow(key string) (bool, time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	windowKey := "ratelimit:" + key + ":" + strconv.FormatInt(time.Now().UnixNano()/int64(l.window), 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0
	}
	if incr.Val() > l.limit {
		return false, l.window
	}
	return true, 0
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// clientIP returns the best-effort client IP address.
//
// Proxy headers (X-Forwarded-For, X-Real-IP) are only honored when the
// direct peer falls inside a configured trusted-proxy CIDR; otherwise an
// untrusted client could spoof its source and dodge its rate bucket. With
// no trusted proxies configured (the default) RemoteAddr always wins.
func (a *API) clientIPWithProxies(r *http.Request) string {
	remoteIP, _ := parseIPCandidate(r.RemoteAddr)

	proxyTrusted := false
	if len(a.trustedProxies) > 0 && remoteIP != "" {
		if addr, err := netip.ParseAddr(remoteIP); err == nil {
			for _, prefix := range a.trustedProxies {
				if prefix.Contains(addr) {
					proxyTrusted = true
					break
				}
			}
		}
	}

	if proxyTrusted {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			for _, part := range strings.Split(xff, ",") {
				if ip, ok := parseIPCandidate(part); ok {
					return ip
				}
			}
		}
		if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
			if ip, ok := parseIPCandidate(xrip); ok {
				return ip
			}
		}
	}

	if remoteIP != "" {
		return remoteIP
	}
	return r.RemoteAddr
}

// clientIP trusts no proxy headers; it is the fail-safe default used when
// no API instance is in scope.
func clientIP(r *http.Request) string {
	if ip, ok := parseIPCandidate(r.RemoteAddr); ok {
		return ip
	}
	return r.RemoteAddr
}

func parseIPCandidate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"")
	if s == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.String(), true
	}
	return "", false
}
