package queue

import (
	"context"
	"fmt"
	"time"

	"debtor-import/internal/config"

	"github.com/go-redis/redis/v8"
)

// RedisClient is the connection shared by the import job producer and
// consumer.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to the configured server and fails fast when it
// does not answer a PING.
func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	rc := NewRedisClientFrom(redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rc.Ping(ctx); err != nil {
		rc.Close()
		return nil, err
	}
	return rc, nil
}

// NewRedisClientFrom wraps an existing client.
func NewRedisClientFrom(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

func (r *RedisClient) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis at %s: %w", r.client.Options().Addr, err)
	}
	return nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) Client() *redis.Client {
	return r.client
}
