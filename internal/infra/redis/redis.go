package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/clicktrail/config"
)

const (
	defaultDialTimeout = 30 * time.Second
	defaultCacheTTL    = 24 * time.Hour
)

// NewClient builds a redis client using app config and verifies connectivity via PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 6379
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}

// CacheTTL parses the configured cache TTL, falling back to a day.
func CacheTTL(cfg config.RedisConfig) time.Duration {
	if cfg.CacheTTL == "" {
		return defaultCacheTTL
	}
	d, err := time.ParseDuration(cfg.CacheTTL)
	if err != nil || d <= 0 {
		return defaultCacheTTL
	}
	return d
}
