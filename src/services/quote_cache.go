package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/username/commissions/src/logger"
)

const (
	DefaultQuoteCacheTTL = 10 * time.Minute
	defaultQuotePrefix   = "commissions:quote"
)

type memoryQuoteCache struct {
	c *cache.Cache
}

// NewMemoryQuoteCache keeps quotes in process for ttl.
func NewMemoryQuoteCache(ttl time.Duration) QuoteCache {
	if ttl <= 0 {
		ttl = DefaultQuoteCacheTTL
	}
	return &memoryQuoteCache{c: cache.New(ttl, 2*ttl)}
}

func (m *memoryQuoteCache) Get(_ context.Context, key string) ([]byte, bool) {
	v, found := m.c.Get(key)
	if !found {
		return nil, false
	}
	raw, ok := v.([]byte)
	return raw, ok
}

func (m *memoryQuoteCache) Set(_ context.Context, key string, value []byte) {
	m.c.Set(key, value, cache.DefaultExpiration)
}

func (m *memoryQuoteCache) Flush(_ context.Context) {
	m.c.Flush()
}

// RedisQuoteCache shares quotes between instances.
type RedisQuoteCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisQuoteOption func(*RedisQuoteCache)

func WithQuotePrefix(prefix string) RedisQuoteOption {
	return func(c *RedisQuoteCache) { c.prefix = strings.Trim(prefix, ":") }
}

func WithQuoteTTL(d time.Duration) RedisQuoteOption {
	return func(c *RedisQuoteCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

func NewRedisQuoteCache(rdb *redis.Client, opts ...RedisQuoteOption) *RedisQuoteCache {
	c := &RedisQuoteCache{
		rdb:    rdb,
		prefix: defaultQuotePrefix,
		ttl:    DefaultQuoteCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisQuoteCache) key(k string) string { return c.prefix + ":" + k }

func (c *RedisQuoteCache) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.FromContext(ctx).Warn("Quote cache read failed", "key", key, "error", err)
		return nil, false
	}
	return raw, true
}

func (c *RedisQuoteCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.rdb.Set(ctx, c.key(key), value, c.ttl).Err(); err != nil {
		logger.FromContext(ctx).Warn("Quote cache write failed", "key", key, "error", err)
	}
}

// Flush deletes every key under the cache prefix.
func (c *RedisQuoteCache) Flush(ctx context.Context) {
	iter := c.rdb.Scan(ctx, 0, c.prefix+":*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			c.del(ctx, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		logger.FromContext(ctx).Warn("Quote cache scan failed", "error", err)
	}
	if len(batch) > 0 {
		c.del(ctx, batch)
	}
}

func (c *RedisQuoteCache) del(ctx context.Context, keys []string) {
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.FromContext(ctx).Warn("Quote cache delete failed", "keys", len(keys), "error", err)
	}
}

type noopQuoteCache struct{}

// NewNoopQuoteCache disables caching.
func NewNoopQuoteCache() QuoteCache { return noopQuoteCache{} }

func (noopQuoteCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (noopQuoteCache) Set(context.Context, string, []byte)        {}
func (noopQuoteCache) Flush(context.Context)                      {}
