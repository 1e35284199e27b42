// Package cache provides an optional remote-key existence cache sitting in
// front of a gateway.Gateway. The content-addressed design means the same
// ciphertext hash may be produced by more than one block (duplicate
// content); consulting this cache before a Put lets the worker pool skip
// a redundant upload once some other write already replicated that key.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ExistenceCache records which remote keys are known to exist on the
// gateway, with a TTL so stale entries expire rather than accumulate
// forever (a key genuinely removed from the gateway should eventually
// stop being reported as present).
type ExistenceCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Config configures the existence cache's redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // default 24h
	Prefix   string        // default "fabnet:remote:"
}

// New connects to redis and returns an ExistenceCache.
func New(cfg Config) *ExistenceCache {
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "fabnet:remote:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &ExistenceCache{client: client, ttl: cfg.TTL, prefix: cfg.Prefix}
}

// NewWithClient wraps an already-constructed redis client — used by tests
// against miniredis.
func NewWithClient(client *redis.Client, ttl time.Duration) *ExistenceCache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &ExistenceCache{client: client, ttl: ttl, prefix: "fabnet:remote:"}
}

// Has reports whether remoteKey was previously recorded as existing.
// A cache-layer error is treated as "unknown" (false) so the dedup
// hint never blocks a real upload — worst case is a redundant put, never
// a lost one.
func (c *ExistenceCache) Has(ctx context.Context, remoteKey string) bool {
	n, err := c.client.Exists(ctx, c.prefix+remoteKey).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Remember records that remoteKey now exists on the gateway.
func (c *ExistenceCache) Remember(ctx context.Context, remoteKey string) error {
	err := c.client.Set(ctx, c.prefix+remoteKey, 1, c.ttl).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// Forget removes remoteKey's existence record, used after a successful
// Remove so the cache doesn't keep reporting a deleted object as present.
func (c *ExistenceCache) Forget(ctx context.Context, remoteKey string) error {
	return c.client.Del(ctx, c.prefix+remoteKey).Err()
}

// Close releases the underlying redis connection.
func (c *ExistenceCache) Close() error {
	return c.client.Close()
}
