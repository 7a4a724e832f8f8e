package content

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const metadataKeyPrefix = "content:meta:"

// RedisCmdable is the slice of the redis API the cache needs.
type RedisCmdable interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// CachedResolver decorates a Resolver with a Redis cache-aside layer.
// Metadata is content-addressed, so a hit never needs revalidation; the TTL
// just bounds memory.
type CachedResolver struct {
	next   Resolver
	redis  RedisCmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedResolver(next Resolver, redis RedisCmdable, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedResolver{next: next, redis: redis, ttl: ttl, logger: logger}
}

func (c *CachedResolver) Resolve(ctx context.Context, uri string) (*Metadata, error) {
	key := metadataKeyPrefix + uri

	raw, err := c.redis.Get(ctx, key).Bytes()
	if err == nil {
		var meta Metadata
		if jerr := json.Unmarshal(raw, &meta); jerr == nil {
			return &meta, nil
		}
		// A corrupt entry falls through to a fresh fetch and overwrite.
	} else if !errors.Is(err, goredis.Nil) {
		c.logger.WarnContext(ctx, "metadata cache read failed", "uri", uri, "error", err)
	}

	meta, err := c.next.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}

	if payload, jerr := json.Marshal(meta); jerr == nil {
		if serr := c.redis.Set(ctx, key, payload, c.ttl).Err(); serr != nil {
			c.logger.WarnContext(ctx, "metadata cache write failed", "uri", uri, "error", serr)
		}
	}
	return meta, nil
}
