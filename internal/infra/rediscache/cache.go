// Package rediscache keeps a best-effort "already completed" flag per task
// id so repeat dispatches for finished work skip the database round trip.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	completedKeyPrefix = "task:completed:"
	completedTTL       = 24 * time.Hour
)

type CompletedCache struct {
	client *redis.Client
}

func Connect(addr string) (*CompletedCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &CompletedCache{client: client}, nil
}

func (c *CompletedCache) IsCompleted(ctx context.Context, taskID uuid.UUID) (bool, error) {
	_, err := c.client.Get(ctx, completedKeyPrefix+taskID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *CompletedCache) MarkCompleted(ctx context.Context, taskID uuid.UUID) error {
	return c.client.Set(ctx, completedKeyPrefix+taskID.String(), "1", completedTTL).Err()
}

func (c *CompletedCache) Close() error {
	return c.client.Close()
}
