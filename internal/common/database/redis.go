package database

import (
	"context"
	"fmt"
	"time"

	"mission-dispatch/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient backs the event stream hub. Subscriptions hold a pooled
// connection each, so the pool is sized from config rather than fixed.
type RedisClient struct {
	Client *redis.Client
}

func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.PoolSize / 10,
	})

	c := &RedisClient{Client: rdb}
	if err := c.Ping(ctx); err != nil {
		rdb.Close()
		return nil, err
	}
	return c, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	return c.Client.Close()
}
