// internal/provider/cached.go
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/giziti/beltbot/internal/cache"
)

// DefaultProfileTTL keeps fetched profiles just long enough that a
// single link command (verify + resolve) and quick repeats reuse one
// upstream call.
const DefaultProfileTTL = 2 * time.Minute

// Cached decorates a Provider with a Redis-backed payload cache.
// The cache is advisory: any cache failure is logged and treated as a
// miss, and upstream errors are never cached.
type Cached struct {
	inner  Provider
	cache  *cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCached wraps p with c. A zero ttl falls back to DefaultProfileTTL.
func NewCached(p Provider, c *cache.Cache, ttl time.Duration, logger *logrus.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	return &Cached{inner: p, cache: c, ttl: ttl, logger: logger}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) key(username string) string {
	return fmt.Sprintf("beltbot:profile:%s:%s", c.inner.Name(), username)
}

// FetchProfile serves from cache when possible, otherwise fetches
// upstream and stores the result.
func (c *Cached) FetchProfile(ctx context.Context, username string) (*Profile, error) {
	key := c.key(username)

	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"provider": c.inner.Name(),
			"username": username,
			"error":    err,
		}).Warn("profile cache read failed")
	} else if ok {
		var p Profile
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		// Stale or corrupt entry; fall through to upstream.
	}

	p, err := c.inner.FetchProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.WithFields(logrus.Fields{
				"provider": c.inner.Name(),
				"username": username,
				"error":    err,
			}).Warn("profile cache write failed")
		}
	}
	return p, nil
}

func (c *Cached) Resolve(p *Profile) (*int, error) {
	return c.inner.Resolve(p)
}
