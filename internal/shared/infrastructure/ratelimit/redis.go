package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// incrWindow counts a hit and starts the window expiry on the first hit.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisLimiter shares counters across replicas through Redis. Each window is a
// key that expires Window after its first hit.
type RedisLimiter struct {
	client redis.Scripter
	cfg    Config
	prefix string
}

// NewRedisLimiter creates a limiter backed by client. Keys are namespaced with prefix.
func NewRedisLimiter(client redis.Scripter, cfg Config, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "carepay:ratelimit:"
	}
	return &RedisLimiter{client: client, cfg: cfg, prefix: prefix}
}

// Allow increments the key's counter and admits the first MaxRequests hits of a window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := incrWindow.Run(ctx, l.client, []string{l.prefix + key}, l.cfg.Window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return n <= int64(l.cfg.MaxRequests), nil
}
