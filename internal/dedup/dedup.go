// Package dedup suppresses Telegram update redeliveries. Keys are recorded on
// first sight and expire after a TTL.
package dedup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	defaultTTL = 10 * time.Minute
)

// Store reports whether key was seen within the TTL and records it otherwise.
type Store interface {
	Seen(ctx context.Context, key string) (bool, error)
	io.Closer
}

type Config struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Logger        *slog.Logger
}

// New builds the configured backend. Redis is pinged before returning.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(cfg.TTL), nil
	case BackendRedis:
		return NewRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("dedup: unknown backend %q", cfg.Backend)
	}
}
