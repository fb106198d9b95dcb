package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedisSlots(client *redis.Client) *RedisSlots {
	return &RedisSlots{
		client:  client,
		baseTTL: 30 * 24 * time.Hour,
	}
}

// RedisSlots keeps every slot as a plain string key. Abandoned carts expire
// after baseTTL plus up to five days of jitter.
type RedisSlots struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisSlots) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r RedisSlots) Set(ctx context.Context, key string, value []byte) error {
	jitter := time.Duration(rand.Intn(5*24)) * time.Hour
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisSlots) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
