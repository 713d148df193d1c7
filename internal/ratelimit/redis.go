package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisBackend struct {
	client *redis.Client
}

var redisIncrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// NewRedisBackend creates a counter backend shared across worker
// processes. Counters self-expire via PEXPIRE set on first increment.
func NewRedisBackend(addr, password string, db int) (Backend, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisBackend{client: client}, nil
}

func (r *redisBackend) Incr(ctx context.Context, bucket string, ttl time.Duration) (int64, error) {
	result, err := redisIncrScript.Run(ctx, r.client, []string{bucket}, ttl.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	count, ok := result.(int64)
	if !ok {
		return 0, errors.New("unexpected redis counter response")
	}
	return count, nil
}
