// Package dedup records processed webhook deliveries in Redis.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sevigo/scan-dispatch/internal/config"
)

const keyPrefix = "scan-dispatch:delivery:"

// Guard claims delivery IDs with SET NX so that only the first delivery of a
// webhook is processed within the TTL.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, func(), error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, func() {}, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, func() { _ = client.Close() }, nil
}

// NewGuard creates a Guard.
func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{client: client, ttl: ttl}
}

// Claim returns true the first time deliveryID is seen.
func (g *Guard) Claim(ctx context.Context, deliveryID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, keyPrefix+deliveryID, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim delivery %s: %w", deliveryID, err)
	}
	return ok, nil
}

// Release forgets deliveryID so that a redelivery is processed again.
func (g *Guard) Release(ctx context.Context, deliveryID string) error {
	if err := g.client.Del(ctx, keyPrefix+deliveryID).Err(); err != nil {
		return fmt.Errorf("release delivery %s: %w", deliveryID, err)
	}
	return nil
}
