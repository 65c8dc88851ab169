package redisutil

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/fastprodman/creditledger/internal/config"
)

// Open creates a client and verifies the server answers PING.
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := rdb.Ping(ctx).Err()
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
