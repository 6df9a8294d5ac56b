package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vellum-stream/pipeline/internal/domain/model"
)

const (
	recordKeyPrefix = "video:"
	allRecordsKey   = "videos:all"
)

// RedisVideoCache implements VideoRecordCache using Redis as the backing
// store. model.VideoRecord marshals to JSON directly (all plain Go types,
// including the *time.Time fields) so no intermediate wire struct is needed.
type RedisVideoCache struct {
	client *redis.Client
}

// NewRedisVideoCache creates a new Redis-backed video cache.
func NewRedisVideoCache(client *redis.Client) *RedisVideoCache {
	return &RedisVideoCache{client: client}
}

// Get retrieves a record from Redis cache. Returns nil, nil on cache miss.
func (c *RedisVideoCache) Get(ctx context.Context, id string) (*model.VideoRecord, error) {
	data, err := c.client.Get(ctx, c.buildKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var record model.VideoRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal cached record: %w", err)
	}
	return &record, nil
}

// Set stores a record in Redis cache with the specified TTL.
func (c *RedisVideoCache) Set(ctx context.Context, record *model.VideoRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := c.client.Set(ctx, c.buildKey(record.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a record from Redis cache.
func (c *RedisVideoCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.buildKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// GetAll retrieves the cached admin listing. Returns nil, nil on cache miss.
func (c *RedisVideoCache) GetAll(ctx context.Context) ([]*model.VideoRecord, error) {
	data, err := c.client.Get(ctx, allRecordsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var records []*model.VideoRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal cached listing: %w", err)
	}
	return records, nil
}

// SetAll stores the admin listing with the given TTL.
func (c *RedisVideoCache) SetAll(ctx context.Context, records []*model.VideoRecord, ttl time.Duration) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}
	if err := c.client.Set(ctx, allRecordsKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DeleteAll invalidates the cached admin listing.
func (c *RedisVideoCache) DeleteAll(ctx context.Context) error {
	if err := c.client.Del(ctx, allRecordsKey).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (c *RedisVideoCache) buildKey(id string) string {
	return recordKeyPrefix + id
}
