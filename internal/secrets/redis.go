package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/recents/internal/shared"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps records as plain redis string keys without expiry.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// OpenRedisStore connects to the configured server and pings it.
func OpenRedisStore(ctx context.Context, cfg shared.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisStore(client), nil
}

func (r *RedisStore) Get(ctx context.Context, name string) ([]byte, error) {
	v, err := r.client.Get(ctx, name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %q: %w", name, err)
	}
	return v, nil
}

func (r *RedisStore) Put(ctx context.Context, name string, value []byte) error {
	if err := r.client.Set(ctx, name, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to put secret %q: %w", name, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
