package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker leases keys with SET NX and releases them only while still held.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker connects to addr.
func NewRedisLocker(addr string) *RedisLocker {
	return &RedisLocker{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// TryLock takes the lease on key for ttl. It returns a nil release func when another holder has it.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := ulid.Make().String()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}

// Ping checks connectivity.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
