package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// rateLimitClientPrefix is the Redis key prefix for per-client limits.
	rateLimitClientPrefix = "usermatch:ratelimit:client:"
	// rateLimitMinTTL is the shortest lifetime of an idle bucket.
	rateLimitMinTTL = 10 * time.Second
)

// ErrInvalidLimit is returned for a non-positive rate or burst.
var ErrInvalidLimit = errors.New("rate and burst must be positive")

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes a token bucket atomically.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	local elapsed = math.max(0, now - last_update)
	tokens = math.min(burst, tokens + (elapsed * rate))

	local allowed = 0
	local retry_after = 0

	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'last_update', tostring(now))
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// RateLimiter is a per-client token bucket stored in Redis, so every replica
// shares the same budget.
type RateLimiter struct {
	cache *Cache
	rate  float64
	burst int
	ttl   time.Duration
	now   func() time.Time
}

// NewRateLimiter creates a limiter allowing ratePerSecond requests with bursts up to burst.
func NewRateLimiter(c *Cache, ratePerSecond float64, burst int) (*RateLimiter, error) {
	if ratePerSecond <= 0 || burst <= 0 {
		return nil, ErrInvalidLimit
	}

	// An idle bucket is full again after burst/rate seconds and can be dropped.
	ttl := time.Duration(math.Ceil(float64(burst)/ratePerSecond)) * time.Second
	if ttl < rateLimitMinTTL {
		ttl = rateLimitMinTTL
	}

	return &RateLimiter{
		cache: c,
		rate:  ratePerSecond,
		burst: burst,
		ttl:   ttl,
		now:   time.Now,
	}, nil
}

// Allow consumes one token for client. The client key is hashed so raw
// addresses are never stored.
func (l *RateLimiter) Allow(ctx context.Context, client string) (*RateLimitResult, error) {
	now := l.now()
	key := rateLimitClientPrefix + hashClient(client)
	nowSeconds := float64(now.UnixMilli()) / 1000

	result, err := tokenBucketScript.Run(ctx, l.cache.client,
		[]string{key},
		l.rate, l.burst, nowSeconds, int(l.ttl.Seconds()),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("run token bucket script: %w", err)
	}
	if len(result) != 3 {
		return nil, fmt.Errorf("unexpected token bucket reply: %v", result)
	}

	return &RateLimitResult{
		Allowed:    result[0] == 1,
		Limit:      l.burst,
		Remaining:  result[2],
		ResetAt:    now.Add(time.Duration(float64(time.Second) / l.rate)),
		RetryAfter: time.Duration(result[1]) * time.Second,
	}, nil
}

// hashClient creates a truncated SHA256 hash of a client identifier.
func hashClient(client string) string {
	hash := sha256.Sum256([]byte(client))
	return hex.EncodeToString(hash[:8])
}
