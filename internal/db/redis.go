package db

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/EmpoweredVote/crime-analytics/internal/config"
)

// NewRedisClient returns nil when Redis is not configured (empty Addr).
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
