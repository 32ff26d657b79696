package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "signalrelay:dedup:"

// Redis shares seen keys between replicas through SET NX with expiry.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(ctx context.Context, cfg Config) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("dedup: redis ping %s: %w", cfg.RedisAddr, err)
	}
	cfg.Logger.Info("dedup backend connected", "backend", BackendRedis, "addr", cfg.RedisAddr)
	return &Redis{client: client, ttl: cfg.TTL, logger: cfg.Logger}, nil
}

func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	created, err := r.client.SetNX(ctx, keyPrefix+key, time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: setnx: %w", err)
	}
	return !created, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
