package kv

import (
	"context"
	"errors"
	"time"

	"chatflow/pkg/chaterr"
	"chatflow/pkg/config"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps values in redis, optionally namespaced and expiring.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption is a functional option for configuring a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL expires keys after ttl. Zero keeps keys forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisClient builds a client from cfg.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get refreshes the TTL on every hit.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, chaterr.Storage(err, "redis get")
	}

	if s.ttl > 0 {
		// A failed refresh only shortens the key's life.
		_ = s.client.Expire(ctx, s.key(key), s.ttl).Err()
	}

	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return chaterr.Storage(err, "redis set")
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return chaterr.Storage(err, "redis del")
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}
