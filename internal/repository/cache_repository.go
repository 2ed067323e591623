package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

const (
	cacheIndexPrefix  = "warnings:index:"
	cacheResourcesKey = "warnings:resources"
)

// CacheRepository stores JSON payloads in Redis and tracks keys per resource in index sets,
// so invalidation works by exact key or by resource without pattern scans.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// Get retrieves and unmarshals the cached value into the provided destination.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}

	return nil
}

// Set stores the value with the given TTL and records the key in the resource index.
func (r *CacheRepository) Set(ctx context.Context, resource, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	indexKey := cacheIndexPrefix + resource
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, payload, ttl)
		pipe.SAdd(ctx, indexKey, key)
		pipe.SAdd(ctx, cacheResourcesKey, resource)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// Delete removes exact keys.
func (r *CacheRepository) Delete(ctx context.Context, resource string, keys ...string) error {
	if r.client == nil || len(keys) == 0 {
		return nil
	}
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, cacheIndexPrefix+resource, members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete keys: %w", err)
	}
	return nil
}

// DeleteResource removes every key recorded for the resource.
func (r *CacheRepository) DeleteResource(ctx context.Context, resource string) error {
	if r.client == nil {
		return nil
	}
	indexKey := cacheIndexPrefix + resource
	keys, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("redis list index %s: %w", resource, err)
	}
	keys = append(keys, indexKey)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete resource %s: %w", resource, err)
	}
	return nil
}

// Clear removes every cached entry written through this repository.
func (r *CacheRepository) Clear(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	resources, err := r.client.SMembers(ctx, cacheResourcesKey).Result()
	if err != nil {
		return fmt.Errorf("redis list resources: %w", err)
	}
	for _, resource := range resources {
		if err := r.DeleteResource(ctx, resource); err != nil {
			return err
		}
	}
	if err := r.client.Del(ctx, cacheResourcesKey).Err(); err != nil {
		return fmt.Errorf("redis clear resources: %w", err)
	}
	r.logger.Debug("cache cleared", zap.Int("resources", len(resources)))
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
