package providers

import (
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedisProvider builds the shared redis client used by the rate
// limiter. Task persistence opens its own client through the
// persistence registry and must not reuse this one.
func NewRedisProvider(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}
