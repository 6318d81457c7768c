package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"goa.design/clue/health"

	"github.com/fieldforge/extract/runtime/cache"
)

const (
	defaultKeyPrefix = "extract:plan_cache:"
	defaultOpTimeout = 5 * time.Second
	redisClientName  = "plan-cache-redis"
)

// Client exposes Redis-backed operations for cached SearchPlan entries. A
// sorted set keyed by last-update time backs Clear (and future LRU-style
// inspection); a per-profile set backs DeleteByProfile.
type Client interface {
	health.Pinger

	Get(ctx context.Context, key string) (cache.Entry, bool, error)
	Set(ctx context.Context, key string, entry cache.Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByProfile(ctx context.Context, profile string) error
	Clear(ctx context.Context) error
}

// Options configures the Redis plan-cache client.
type Options struct {
	// Redis is the connection used to back the plan cache. Required.
	Redis *redis.Client
	// KeyPrefix namespaces every key this client writes. Defaults to
	// "extract:plan_cache:".
	KeyPrefix string
	// Timeout bounds individual Redis operations. Zero uses a 5s default.
	Timeout time.Duration
}

type client struct {
	redis   *redis.Client
	prefix  string
	timeout time.Duration
}

// New constructs a Client backed by the provided Redis connection. Returns
// an error if opts.Redis is nil.
func New(opts Options) (Client, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &client{redis: opts.Redis, prefix: prefix, timeout: timeout}, nil
}

func (c *client) Name() string { return redisClientName }

func (c *client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func (c *client) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	if key == "" {
		return cache.Entry{}, false, errors.New("key is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	raw, err := c.redis.Get(ctx, c.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var entry cache.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return cache.Entry{}, false, fmt.Errorf("decode cached entry: %w", err)
	}
	return entry, true, nil
}

func (c *client) Set(ctx context.Context, key string, entry cache.Entry, ttl time.Duration) error {
	if key == "" {
		return errors.New("key is required")
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, c.entryKey(key), raw, ttl)
	pipe.ZAdd(ctx, c.indexKey(), redis.Z{Score: float64(entry.UpdatedAt.Unix()), Member: key})
	if entry.Profile != "" {
		pipe.SAdd(ctx, c.profileKey(entry.Profile), key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *client) Delete(ctx context.Context, key string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	pipe := c.redis.TxPipeline()
	pipe.Del(ctx, c.entryKey(key))
	pipe.ZRem(ctx, c.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (c *client) DeleteByProfile(ctx context.Context, profile string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	keys, err := c.redis.SMembers(ctx, c.profileKey(profile)).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	pipe := c.redis.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, c.entryKey(key))
		pipe.ZRem(ctx, c.indexKey(), key)
	}
	pipe.Del(ctx, c.profileKey(profile))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete by profile: %w", err)
	}
	return nil
}

func (c *client) Clear(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	keys, err := c.redis.ZRange(ctx, c.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis zrange: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	pipe := c.redis.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, c.entryKey(key))
	}
	pipe.Del(ctx, c.indexKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

func (c *client) entryKey(key string) string       { return c.prefix + "entry:" + key }
func (c *client) profileKey(profile string) string { return c.prefix + "profile:" + profile }
func (c *client) indexKey() string                 { return c.prefix + "index" }

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
