package ratelimit

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestLimiter(t *testing.T) *TokenBucketLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTokenBucketLimiter(rdb)
}

func TestTokenBucketLimiter_Allow_Disabled(t *testing.T) {
	lim := newTestLimiter(t)

	dec, err := lim.Allow(context.Background(), "submit", "203.0.113.7", Bucket{})
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed when bucket disabled")
	}
}

func TestTokenBucketLimiter_Allow_BlocksAfterBurst(t *testing.T) {
	lim := newTestLimiter(t)
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 1} // 1 token/sec, burst=1

	dec1, err := lim.Allow(context.Background(), "submit", "203.0.113.7", bucket)
	if err != nil {
		t.Fatalf("allow 1: %v", err)
	}
	if !dec1.Allowed {
		t.Fatalf("expected first submit to be allowed")
	}

	dec2, err := lim.Allow(context.Background(), "submit", "203.0.113.7", bucket)
	if err != nil {
		t.Fatalf("allow 2: %v", err)
	}
	if dec2.Allowed {
		t.Fatalf("expected second submit to be rate limited")
	}
	if dec2.RetryAfter <= 0 {
		t.Fatalf("expected retryAfter to be set")
	}

	// Another client IP refills independently.
	decOther, err := lim.Allow(context.Background(), "submit", "198.51.100.9", bucket)
	if err != nil {
		t.Fatalf("allow other: %v", err)
	}
	if !decOther.Allowed {
		t.Fatalf("expected other client to be allowed (independent bucket)")
	}
}

func TestTokenBucketLimiter_KeyNamespacing(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	lim := NewTokenBucketLimiter(rdb)

	if _, err := lim.Allow(context.Background(), "submit", "203.0.113.7", Bucket{RequestsPerMinute: 60, BurstSize: 5}); err != nil {
		t.Fatalf("allow: %v", err)
	}
	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected 1 bucket key, got %v", keys)
	}
	if !strings.HasPrefix(keys[0], "diagramq:rl:submit:") {
		t.Fatalf("unexpected key %q", keys[0])
	}
	// Raw subject must not appear in the key.
	if strings.Contains(keys[0], "203.0.113.7") {
		t.Fatalf("subject leaked into key %q", keys[0])
	}
}
