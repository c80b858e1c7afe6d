package redis

// Package redis provides Redis-based adapters for credential storage and cross-instance change signalling.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eduadmin/portal/internal/ports"
)

var _ ports.StorageBackend = (*Backend)(nil)

const (
	defaultPrefix = "eduadmin:session:"
	scanBatch     = 100
)

// BackendOptions configures a Backend.
type BackendOptions struct {
	// Prefix namespaces every key. A per-instance prefix makes the tier process-scoped.
	Prefix string
	// TTL is applied on every write. Zero keeps keys until removed.
	TTL time.Duration
}

// Backend is a StorageBackend over plain Redis string keys.
type Backend struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewBackend creates a Redis-backed credential tier.
func NewBackend(client redis.UniversalClient, opts BackendOptions) *Backend {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Backend{client: client, prefix: prefix, ttl: opts.TTL}
}

// Prefix returns the key namespace.
func (b *Backend) Prefix() string { return b.prefix }

func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := b.client.Get(ctx, b.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	if err := b.client.Set(ctx, b.prefix+key, value, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear deletes every key under the prefix.
func (b *Backend) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, b.prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := b.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
