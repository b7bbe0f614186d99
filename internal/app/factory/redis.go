package factory

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"imgguard/internal/config"
	"imgguard/pkg/errors"
)

// CreateRedisClient creates a Redis client from configuration. A single
// address yields a plain client, several yield a cluster client; the
// universal API covers both.
func CreateRedisClient(cfg *config.Redis, logger *slog.Logger) (redis.UniversalClient, error) {
	if cfg == nil || len(cfg.Addresses) == 0 {
		return nil, errors.New(errors.CodeInternal, "redis configuration is missing")
	}

	poolSize := cfg.PoolSize
	if poolSize == 0 {
		poolSize = 100
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addresses,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,

		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.New(errors.CodeInfraUnavailable, "failed to connect to redis").WithCause(err)
	}

	logger.Info("Connected to Redis",
		"addrs", cfg.Addresses,
		"db", cfg.DB,
		"poolSize", poolSize,
	)

	return client, nil
}
