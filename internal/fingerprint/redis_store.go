package fingerprint

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisCompletionStore is a Redis-backed CompletionStore, adapted from the
// teacher's orchestrator.RedisDedupeStore.
type RedisCompletionStore struct {
	client *redis.Client
}

// NewRedisCompletionStore dials addr and verifies connectivity.
func NewRedisCompletionStore(addr, password string, db int) (*RedisCompletionStore, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCompletionStore{client: c}, nil
}

func (s *RedisCompletionStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisCompletionStore) Set(ctx context.Context, key, value string, ttlSeconds int) error {
	return s.client.Set(ctx, key, value, time.Duration(ttlSeconds)*time.Second).Err()
}

func (s *RedisCompletionStore) Close() error {
	return s.client.Close()
}
