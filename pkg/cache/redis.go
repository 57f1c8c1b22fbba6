package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/openrecords-api/pkg/config"
)

// NewRedis returns a configured Redis client, or nil when Redis is disabled.
// Callers treat a nil client as "no cache and no sweeper lease".
func NewRedis(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return client, nil
}
