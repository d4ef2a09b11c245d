package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/crime-analytics/internal/metrics"
)

// Cache stores rendered response bodies.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, body []byte)
}

// NoCache never hits.
type NoCache struct{}

func (NoCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (NoCache) Set(context.Context, string, []byte)        {}

// RedisCache keeps bodies for TTL. Redis errors degrade to misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "crime-dashboard:v1:", log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	body, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	return body, true
}

func (c *RedisCache) Set(ctx context.Context, key string, body []byte) {
	if err := c.client.Set(ctx, c.prefix+key, body, c.ttl).Err(); err != nil {
		c.log.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}
