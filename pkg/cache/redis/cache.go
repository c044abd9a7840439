// Package redis provides a Redis-backed lookup cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pario-ai/scribe/pkg/models"
)

// Backend is the name reported in CacheStats.
const Backend = "redis"

const defaultPrefix = "scribe"

var cacheTracer = otel.Tracer("redis.cache")

// Config configures the Redis connection.
type Config struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// Cache stores values under "<prefix>:<scope>:<key>". A TTL of zero keeps
// entries until they are cleared.
type Cache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache for scope on rdb.
func New(rdb *redis.Client, prefix, scope string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Cache{rdb: rdb, prefix: Key(prefix, scope, ""), ttl: ttl}
}

// Key joins the key parts of a cache entry.
func Key(prefix, scope, key string) string {
	return prefix + ":" + scope + ":" + key
}

// Get returns a cached value. Connection errors count as misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			span.RecordError(err)
		}
		span.SetAttributes(attribute.Bool("cache.hit", false))
		c.misses.Add(1)
		return nil, false
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	c.hits.Add(1)
	return val, true
}

// Put stores value under key.
func (c *Cache) Put(ctx context.Context, key string, value []byte) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", c.ttl.Milliseconds()),
		))
	defer span.End()

	if err := c.rdb.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Stats counts the keys of the scope and reports this process's hit/miss counts.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	keys, err := c.scan(ctx)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Backend: Backend,
		Entries: int64(len(keys)),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear deletes every key of the scope. Redis expires keys itself, so
// expiredOnly removes nothing.
func (c *Cache) Clear(ctx context.Context, expiredOnly bool) (int64, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.InvalidatePattern",
		trace.WithAttributes(attribute.String("cache.pattern", c.prefix+"*")))
	defer span.End()

	if expiredOnly {
		return 0, nil
	}
	keys, err := c.scan(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	span.SetAttributes(attribute.Int("cache.invalidated_count", len(keys)))
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return n, nil
}

func (c *Cache) scan(ctx context.Context) ([]string, error) {
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
