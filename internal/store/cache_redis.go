package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores a whole collection as one JSON document under a key
type RedisCache[T any] struct {
	client *redis.Client
	key    string
}

func NewRedisCache[T any](client *redis.Client, prefix, collection string) *RedisCache[T] {
	return &RedisCache[T]{
		client: client,
		key:    fmt.Sprintf("%s:%s", prefix, collection),
	}
}

func (c *RedisCache[T]) Load(ctx context.Context) ([]T, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", c.key, err)
	}

	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.key, err)
	}
	return records, nil
}

func (c *RedisCache[T]) Save(ctx context.Context, records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	if err := c.client.Set(ctx, c.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key, err)
	}
	return nil
}
