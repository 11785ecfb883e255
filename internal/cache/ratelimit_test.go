package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := New(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNew_InvalidURL(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), "not-a-url"); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestCache_Ping(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	mr.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("Ping() should fail once Redis is gone")
	}
}

func TestNewRateLimiter_InvalidLimits(t *testing.T) {
	t.Parallel()

	c := &Cache{client: redis.NewClient(&redis.Options{Addr: "localhost:0"})}
	for _, tc := range []struct {
		rate  float64
		burst int
	}{{0, 1}, {1, 0}, {-1, 5}} {
		if _, err := NewRateLimiter(c, tc.rate, tc.burst); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("NewRateLimiter(%v, %d) error = %v", tc.rate, tc.burst, err)
		}
	}
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	limiter, err := NewRateLimiter(c, 1, 3)
	if err != nil {
		t.Fatalf("NewRateLimiter() error = %v", err)
	}

	fixed := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return fixed }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d rejected inside burst", i+1)
		}
		if res.Remaining != int64(2-i) {
			t.Errorf("request %d remaining = %d, want %d", i+1, res.Remaining, 2-i)
		}
	}

	res, err := limiter.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if res.Allowed {
		t.Fatal("request beyond burst should be rejected")
	}
	if res.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %v, want 1s", res.RetryAfter)
	}

	// Another client has its own bucket.
	other, err := limiter.Allow(ctx, "10.0.0.2")
	if err != nil || !other.Allowed {
		t.Fatalf("other client: allowed=%v err=%v", other != nil && other.Allowed, err)
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	limiter, err := NewRateLimiter(c, 2, 1)
	if err != nil {
		t.Fatalf("NewRateLimiter() error = %v", err)
	}

	current := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return current }
	ctx := context.Background()

	if res, _ := limiter.Allow(ctx, "client"); !res.Allowed {
		t.Fatal("first request rejected")
	}
	if res, _ := limiter.Allow(ctx, "client"); res.Allowed {
		t.Fatal("second request should be rejected before refill")
	}

	current = current.Add(600 * time.Millisecond)
	if res, _ := limiter.Allow(ctx, "client"); !res.Allowed {
		t.Fatal("request after refill rejected")
	}
}

func TestRateLimiter_KeysAreHashed(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	limiter, err := NewRateLimiter(c, 5, 5)
	if err != nil {
		t.Fatalf("NewRateLimiter() error = %v", err)
	}

	if _, err := limiter.Allow(context.Background(), "192.168.1.100"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("keys = %v, want one bucket", keys)
	}
	if !strings.HasPrefix(keys[0], rateLimitClientPrefix) || strings.Contains(keys[0], "192.168") {
		t.Errorf("bucket key %q leaks the client address", keys[0])
	}
	if ttl := mr.TTL(keys[0]); ttl <= 0 {
		t.Errorf("bucket TTL = %v, want positive", ttl)
	}
}

func TestRateLimiter_RedisDown(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	limiter, err := NewRateLimiter(c, 1, 1)
	if err != nil {
		t.Fatalf("NewRateLimiter() error = %v", err)
	}
	mr.Close()

	if _, err := limiter.Allow(context.Background(), "client"); err == nil {
		t.Fatal("Allow() should fail when Redis is unreachable")
	}
}

func TestHashClient(t *testing.T) {
	t.Parallel()

	if hashClient("a") != hashClient("a") {
		t.Error("hash is not deterministic")
	}
	if hashClient("a") == hashClient("b") {
		t.Error("different clients share a hash")
	}
	if got := len(hashClient("::1")); got != 16 {
		t.Errorf("hash length = %d, want 16", got)
	}
}
