// Package kv is the key-value storage behind persisted chat history.
package kv

import (
	"context"
	"fmt"
	"strings"

	"chatflow/pkg/config"
)

// Store is a string key-value store. Get reports found=false for missing keys
// rather than an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// New opens the store selected by cfg.Driver: "memory", "redis" or "bolt".
func New(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return nil, fmt.Errorf("storage.redis.addr is required for the redis driver")
		}
		return NewRedisStore(NewRedisClient(cfg.Redis), WithKeyPrefix(cfg.Redis.KeyPrefix), WithTTL(cfg.Redis.TTL())), nil
	case "bolt":
		if strings.TrimSpace(cfg.Bolt.Path) == "" {
			return nil, fmt.Errorf("storage.bolt.path is required for the bolt driver")
		}
		return NewBoltStore(cfg.Bolt.Path, cfg.Bolt.Bucket)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
