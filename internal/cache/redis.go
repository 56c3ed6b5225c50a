// internal/cache/redis.go
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a thin byte-oriented wrapper over Redis. The bot uses it to
// hold recently fetched provider payloads so one chat command does not
// hit the public rating APIs twice, and command spam does not either.
// It is strictly advisory: callers treat every miss or error as a miss.
type Cache struct {
	rdb *redis.Client
}

// Connect initializes a Cache against the given Redis address and
// verifies connectivity with a short ping.
func Connect(ctx context.Context, addr string, db int) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Cache{rdb: rdb}, nil
}

// Get returns the cached bytes for key and whether the key was present.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return data, true, nil
}

// Set stores data under key for the given TTL.
func (c *Cache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
