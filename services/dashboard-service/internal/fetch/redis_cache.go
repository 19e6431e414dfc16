package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares response payloads between dashboard instances. Redis
// errors degrade to cache misses.
type RedisCache struct {
	rdb    redis.Cmdable
	prefix string
	logger *slog.Logger
}

func NewRedisCache(rdb redis.Cmdable, prefix string, logger *slog.Logger) *RedisCache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "clinicsync:fetch:"
	}
	return &RedisCache{rdb: rdb, prefix: prefix, logger: logger}
}

// Connect initializes a Redis client from a redis:// URL or host:port.
func Connect(raw string) (*redis.Client, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "redis://") || strings.HasPrefix(raw, "rediss://") {
		opt, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: raw}), nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("redis cache get failed", err)
		}
		return nil, false
	}
	return b, true
}

func (c *RedisCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+key, payload, ttl).Err(); err != nil {
		c.warn("redis cache set failed", err)
	}
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		c.warn("redis cache delete failed", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, prefix string) int {
	var (
		cursor uint64
		n      int
	)
	match := c.prefix + escapeGlob(prefix) + "*"
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			c.warn("redis cache scan failed", err)
			return n
		}
		if len(keys) > 0 {
			deleted, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				c.warn("redis cache delete failed", err)
				return n
			}
			n += int(deleted)
		}
		if next == 0 {
			return n
		}
		cursor = next
	}
}

// Ping backs the readiness check.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisCache) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, "err", err)
	}
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)
	return r.Replace(s)
}
