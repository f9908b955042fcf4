// Package ratelimit implements a redis-backed token bucket keyed by scope
// and a hashed subject, shared by every instance behind one redis.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Bucket describes one limit. A zero bucket is disabled.
type Bucket struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

func (b Bucket) Enabled() bool {
	return b.RequestsPerMinute > 0 && b.BurstSize > 0
}

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, scope string, subject string, bucket Bucket) (Decision, error)
}

type TokenBucketLimiter struct {
	rdb *redis.Client
}

func NewTokenBucketLimiter(rdb *redis.Client) *TokenBucketLimiter {
	return &TokenBucketLimiter{rdb: rdb}
}

// The script refills lazily on access and answers {allowed, retry_after_s}
// in one round trip so concurrent submits cannot double-spend a token.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1]) -- tokens per second
local capacity = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local tokens = tonumber(redis.call("HGET", key, "tokens"))
local last_ms = tonumber(redis.call("HGET", key, "ts"))

if not tokens then tokens = capacity end
if not last_ms or last_ms > now_ms then last_ms = now_ms end

tokens = math.min(capacity, tokens + (now_ms - last_ms) * (rate / 1000.0))

local allowed = 0
local retry_after_s = 0
if tokens >= 1.0 then
  allowed = 1
  tokens = tokens - 1.0
elseif rate > 0 then
  retry_after_s = math.max(1, math.ceil((1.0 - tokens) / rate))
else
  retry_after_s = 60
end

redis.call("HSET", key, "tokens", tokens, "ts", now_ms)
redis.call("PEXPIRE", key, ttl_ms)
return {allowed, retry_after_s}
`)

func (l *TokenBucketLimiter) Allow(ctx context.Context, scope string, subject string, bucket Bucket) (Decision, error) {
	if l == nil || l.rdb == nil || !bucket.Enabled() {
		return Decision{Allowed: true}, nil
	}

	ratePerSec := float64(bucket.RequestsPerMinute) / 60.0
	capacity := float64(bucket.BurstSize)
	nowMS := time.Now().UTC().UnixMilli()
	ttlMS := bucketTTL(ratePerSec, capacity).Milliseconds()

	res, err := tokenBucketScript.Run(ctx, l.rdb, []string{bucketKey(scope, subject)},
		ratePerSec, capacity, nowMS, ttlMS).Result()
	if err != nil {
		return Decision{}, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return Decision{}, fmt.Errorf("unexpected redis ratelimit response: %T", res)
	}

	if allowed, _ := vals[0].(int64); allowed == 1 {
		return Decision{Allowed: true}, nil
	}
	retryAfterS, _ := vals[1].(int64)
	if retryAfterS <= 0 {
		retryAfterS = 1
	}
	return Decision{Allowed: false, RetryAfter: time.Duration(retryAfterS) * time.Second}, nil
}

// bucketKey hashes the subject so raw client addresses never land in redis.
func bucketKey(scope, subject string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "unknown"
	}
	sum := sha256.Sum256([]byte(subject))
	return fmt.Sprintf("diagramq:rl:%s:%s", scope, hex.EncodeToString(sum[:]))
}

// bucketTTL keeps state around for roughly two refill-to-full cycles so idle
// buckets expire instead of accumulating.
func bucketTTL(ratePerSec, capacity float64) time.Duration {
	const (
		minTTL = 30 * time.Second
		maxTTL = 1 * time.Hour
	)
	if ratePerSec <= 0 || capacity <= 0 {
		return 2 * time.Minute
	}
	fillSeconds := capacity / ratePerSec
	ttl := time.Duration(math.Ceil(fillSeconds*2.0))*time.Second + 5*time.Second
	return min(max(ttl, minTTL), maxTTL)
}
