package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/gift-exchange/internal/config"
)

// The refresh-outcome cache sits on the refresh path; a slow Redis must turn
// into a cache miss, not a slow session read.
const (
	redisDialTimeout = 2 * time.Second
	redisIOTimeout   = 300 * time.Millisecond
)

// Redis holds the client behind the refresh-outcome cache. A zero Redis means
// refresh outcomes are not shared between instances.
type Redis struct {
	Client *redis.Client
}

// NewRedis creates the client when an address is configured. An unreachable
// server is logged and kept; cache errors are treated as misses.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		logger.Warn("REDIS_ADDR not provided; refresh outcomes will not be shared")
		return &Redis{}
	}

	client := redis.NewClient(clientOptions(cfg))
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("refresh cache unreachable; continuing without it until it recovers",
			zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("refresh cache connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}
	return &Redis{Client: client}
}

func clientOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisIOTimeout,
		WriteTimeout: redisIOTimeout,
		MaxRetries:   -1,
	}
}

// Enabled reports whether a client was created.
func (r *Redis) Enabled() bool {
	return r != nil && r.Client != nil
}

// Ping verifies the refresh cache is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() {
	if r.Enabled() {
		_ = r.Client.Close()
	}
}
