package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"academix-api/config"

	"github.com/go-redis/redis/v8"
)

// Client wraps go-redis with the key layout the checkout flow uses.
// Every key is namespaced by the configured prefix so one Redis can be
// shared between environments.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	prefix := strings.TrimSuffix(cfg.KeyPrefix, ":")
	if prefix != "" {
		prefix += ":"
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) key(parts ...string) string {
	return c.prefix + strings.Join(parts, ":")
}

// SetIdempotencyKey caches the result of a request under its idempotency key
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key("idempotency", key), value, ttl).Err()
}

// GetIdempotencyKey returns the cached result for key and whether one exists
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, c.key("idempotency", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// AcquireLock takes a short-lived lock. It reports false when someone else holds it.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, c.key("lock", lockKey), time.Now().Unix(), ttl).Result()
}

func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, c.key("lock", lockKey)).Err()
}

// MarkCallbackProcessed records a handled gateway callback. It returns false
// when the same transaction and outcome were already recorded within ttl.
func (c *Client) MarkCallbackProcessed(ctx context.Context, tranID, outcome string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, c.key("callback", tranID, outcome), time.Now().Unix(), ttl).Result()
}

// ForgetCallback drops a callback record so a failed transition can be retried
func (c *Client) ForgetCallback(ctx context.Context, tranID, outcome string) error {
	return c.rdb.Del(ctx, c.key("callback", tranID, outcome)).Err()
}
