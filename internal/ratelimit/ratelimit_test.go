package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func testLimiter(t *testing.T, limit int, window time.Duration) RateLimiter {
	t.Helper()

	mr := miniredis.RunT(t)
	limiter, err := NewRedisLimiter("redis://"+mr.Addr(), limit, window)
	if err != nil {
		t.Fatalf("NewRedisLimiter() error = %v", err)
	}
	t.Cleanup(func() { limiter.Close() })
	return limiter
}

func TestNoOpRateLimiter(t *testing.T) {
	limiter := &NoOpRateLimiter{}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(ctx, "any-key")
		if err != nil {
			t.Errorf("Allow() error = %v, want nil", err)
		}
		if !allowed {
			t.Errorf("Allow() = false, want true")
		}
	}

	if err := limiter.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestNewRedisLimiter_InvalidURL(t *testing.T) {
	_, err := NewRedisLimiter("not-a-valid-url", 100, time.Minute)
	if err == nil {
		t.Error("NewRedisLimiter() with invalid URL should return error")
	}
}

func TestNewRedisLimiter_ConnectionFailed(t *testing.T) {
	_, err := NewRedisLimiter("redis://localhost:1", 100, time.Minute)
	if err == nil {
		t.Error("NewRedisLimiter() with unreachable Redis should return error")
	}
}

func TestRedisLimiter_EnforcesLimit(t *testing.T) {
	limiter := testLimiter(t, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "webhook")
		if err != nil {
			t.Fatalf("Allow() request %d error = %v", i+1, err)
		}
		if !allowed {
			t.Errorf("Allow() request %d = false, want true", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, "webhook")
	if err != nil {
		t.Fatalf("Allow() limit check error = %v", err)
	}
	if allowed {
		t.Error("Allow() request 6 = true, want false (should be rate limited)")
	}
}

func TestRedisLimiter_DifferentKeys(t *testing.T) {
	limiter := testLimiter(t, 2, time.Minute)
	ctx := context.Background()

	// Each key should have independent limits
	for i := 0; i < 2; i++ {
		for _, key := range []string{"203.0.113.7", "203.0.113.8"} {
			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				t.Fatalf("Allow(%s) error = %v", key, err)
			}
			if !allowed {
				t.Errorf("Allow(%s) request %d = false, want true", key, i+1)
			}
		}
	}

	for _, key := range []string{"203.0.113.7", "203.0.113.8"} {
		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			t.Fatalf("Allow(%s) limit check error = %v", key, err)
		}
		if allowed {
			t.Errorf("Allow(%s) beyond limit = true, want false", key)
		}
	}
}

func TestRedisLimiter_ContextCancellation(t *testing.T) {
	limiter := testLimiter(t, 10, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := limiter.Allow(ctx, "cancelled"); err == nil {
		t.Error("Allow() with cancelled context should return error")
	}
}
