package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nice2meet/usermatch/internal/cache"
)

// Limiter decides whether a client may make another request.
type Limiter interface {
	Allow(ctx context.Context, client string) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter Limiter
	Enabled bool
}

// RateLimit returns middleware that rate limits requests per client IP.
// Limiter errors fail open.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled || cfg.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			result, err := cfg.Limiter.Allow(r.Context(), ip)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, result)

			if !result.Allowed {
				retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int("retry_after_seconds", retryAfter),
					slog.String("request_id", GetRequestID(r.Context())),
				)

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED",
					"Rate limit exceeded. Retry after "+strconv.Itoa(retryAfter)+" seconds.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setRateLimitHeaders sets standard rate limit response headers.
func setRateLimitHeaders(w http.ResponseWriter, result *cache.RateLimitResult) {
	if result.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// clientIP returns the host part of RemoteAddr. chi's RealIP middleware is
// expected to have rewritten it from proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LocalLimiter keeps one token bucket per client in process memory. It is used
// when no Redis is configured, so limits apply per replica.
type LocalLimiter struct {
	mu      sync.Mutex
	clients map[string]*localEntry
	rate    rate.Limit
	burst   int
	now     func() time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates a LocalLimiter allowing ratePerSecond with bursts up to burst.
func NewLocalLimiter(ratePerSecond float64, burst int) (*LocalLimiter, error) {
	if ratePerSecond <= 0 || burst <= 0 {
		return nil, cache.ErrInvalidLimit
	}
	return &LocalLimiter{
		clients: make(map[string]*localEntry),
		rate:    rate.Limit(ratePerSecond),
		burst:   burst,
		now:     time.Now,
	}, nil
}

// Allow consumes one token for client.
func (l *LocalLimiter) Allow(_ context.Context, client string) (*cache.RateLimitResult, error) {
	now := l.now()

	l.mu.Lock()
	entry, ok := l.clients[client]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[client] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	res := entry.limiter.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
		return &cache.RateLimitResult{
			Allowed:    false,
			Limit:      l.burst,
			Remaining:  0,
			ResetAt:    now.Add(delay),
			RetryAfter: delay,
		}, nil
	}

	remaining := int64(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return &cache.RateLimitResult{
		Allowed:   true,
		Limit:     l.burst,
		Remaining: remaining,
		ResetAt:   now.Add(time.Duration(float64(time.Second) / float64(l.rate))),
	}, nil
}

// Prune drops clients idle for longer than maxIdle and returns how many were removed.
func (l *LocalLimiter) Prune(maxIdle time.Duration) int {
	cutoff := l.now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for client, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, client)
			removed++
		}
	}
	return removed
}

// StartPruning prunes idle clients every interval until ctx is done.
func (l *LocalLimiter) StartPruning(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Prune(maxIdle)
			}
		}
	}()
}
