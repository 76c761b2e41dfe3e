package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
)

// KV stores opaque values under plain Redis string keys. It satisfies
// model.KVStore.
type KV struct {
	client *goredis.Client
}

// NewKV wraps an existing client. Close closes the client.
func NewKV(client *goredis.Client) *KV {
	return &KV{client: client}
}

// Get returns the value under key, or nil, nil when the key does not exist.
func (kv *KV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := kv.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return b, nil
}

// Set replaces the value under key. Ledger state has no TTL.
func (kv *KV) Set(ctx context.Context, key string, value []byte) error {
	if err := kv.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

// Ping reports whether the server is reachable.
func (kv *KV) Ping(ctx context.Context) error {
	return kv.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (kv *KV) Close() error {
	return kv.client.Close()
}
