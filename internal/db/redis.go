package db

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"multichat/internal/logging"
)

// RedisClient wraps a Redis connection used for caching and rate state.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to Redis via URL (redis://host:port/db).
func NewRedisClient(url string) (*RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logging.S().Info("✅ Redis connected successfully")
	return &RedisClient{client: client}, nil
}

// Client exposes the raw client.
func (rc *RedisClient) Client() *redis.Client {
	return rc.client
}

// Ping checks connectivity.
func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Get retrieves a string value. Missing keys return redis.Nil.
func (rc *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return rc.client.Get(ctx, key).Result()
}

// Set stores a value with a TTL.
func (rc *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return rc.client.Set(ctx, key, value, ttl).Err()
}

// Del removes keys.
func (rc *RedisClient) Del(ctx context.Context, keys ...string) error {
	return rc.client.Del(ctx, keys...).Err()
}

// Close shuts the connection down.
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}
