package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/diagramq/diagramq/internal/metrics"
	"github.com/diagramq/diagramq/internal/ratelimit"
	"github.com/diagramq/diagramq/pkg/config"
)

// RateLimitSubmit throttles task submissions per client IP.
func RateLimitSubmit(lim ratelimit.Limiter, cfg *config.Config) gin.HandlerFunc {
	return rateLimitByIP(lim, "submit", cfg.RateLimit.Submit)
}

func rateLimitByIP(lim ratelimit.Limiter, scope string, bcfg config.RateLimitBucketConfig) gin.HandlerFunc {
	bucket := ratelimit.Bucket{RequestsPerMinute: bcfg.RequestsPerMinute, BurstSize: bcfg.BurstSize}
	return func(c *gin.Context) {
		if lim == nil || !bucket.Enabled() {
			c.Next()
			return
		}

		subject := c.ClientIP()
		if subject == "" {
			c.Next()
			return
		}

		dec, err := lim.Allow(c.Request.Context(), scope, subject, bucket)
		if err != nil {
			// Fail open to avoid turning Redis hiccups into outages.
			slog.Default().Warn("rate limit check failed", "scope", scope, "err", err)
			c.Next()
			return
		}
		if dec.Allowed {
			c.Next()
			return
		}

		retryAfterSeconds := int(dec.RetryAfter.Seconds())
		if retryAfterSeconds <= 0 {
			retryAfterSeconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		metrics.RateLimitHitsTotal.WithLabelValues(scope).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":             "rate limit exceeded",
			"scope":             scope,
			"retryAfterSeconds": retryAfterSeconds,
		})
	}
}
