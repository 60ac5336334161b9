package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ordered_tree:"

// RedisCache implements CacheProvider using Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache provider
func NewRedisCache(addr string) *RedisCache {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	return &RedisCache{
		client: client,
		ttl:    DefaultTTL,
	}
}

// Initialize checks that the server is reachable
func (c *RedisCache) Initialize(ctx context.Context) error {
	_, err := c.client.Ping(ctx).Result()
	return err
}

// GetTree retrieves the tree from cache if available
func (c *RedisCache) GetTree(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetTree stores the tree in cache
func (c *RedisCache) SetTree(ctx context.Context, key string, data []byte) {
	c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl)
}

// InvalidateCache removes the tree from cache
func (c *RedisCache) InvalidateCache(ctx context.Context, key string) error {
	return c.client.Del(ctx, redisKeyPrefix+key).Err()
}

// SetCacheTTL sets the cache time-to-live duration
func (c *RedisCache) SetCacheTTL(ttl time.Duration) {
	c.ttl = ttl
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
