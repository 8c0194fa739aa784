// Package redisconn opens the Redis connections the cache runs on.
package redisconn

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/thierryx96/RedisCache/internal/config"
	"github.com/thierryx96/RedisCache/internal/logging"
)

var logger = logging.For("redisconn")

// Options maps the [redis] config section onto client options. Zero
// durations and pool size leave go-redis defaults in place.
func Options(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout.Duration,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		PoolSize:     cfg.PoolSize,
	}
}

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(Options(cfg))
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	logger.Debug("connected", "addr", cfg.Addr, "db", cfg.DB)
	return rdb, nil
}
