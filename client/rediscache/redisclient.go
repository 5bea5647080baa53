package rediscache

import (
	"context"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client wraps the shared redis key-value store behind the small surface the
// role resolver needs: get, set with TTL, delete.
type Client struct {
	rdb *redis.Client
}

func NewClient(addr, password string, db int) *Client {
	return &Client{rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})}
}

// NewClientFromEnv REDIS_SERVICE=127.0.0.1:6379, REDIS_PASSWORD optional.
// Returns nil when REDIS_SERVICE is unset: the cache is optional.
func NewClientFromEnv() *Client {
	addr := os.Getenv("REDIS_SERVICE")
	if addr == "" {
		return nil
	}
	return NewClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
}

func (c *Client) Get(key string) (string, bool, error) {
	value, err := c.rdb.Get(context.Background(), key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (c *Client) SetWithTTL(key, value string, ttl time.Duration) error {
	return c.rdb.Set(context.Background(), key, value, ttl).Err()
}

func (c *Client) Delete(key string) error {
	return c.rdb.Del(context.Background(), key).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
