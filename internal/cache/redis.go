package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lox/harvestcast/internal/logger"
)

type Redis struct {
	rdb *goredis.Client
	log *logger.Logger
}

// NewRedis connects to addr and pings it before returning.
func NewRedis(ctx context.Context, addr string, log *logger.Logger) (*Redis, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if log == nil {
		log = logger.Nop()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	r := &Redis{rdb: rdb, log: log.With("component", "cache", "backend", "redis")}
	r.log.Info("connected", "addr", addr)
	return r, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
