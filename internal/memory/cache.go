package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RecencyCache is a bounded, per-key most-recent-first list. Push prepends
// and trims to limit; List returns up to n entries newest-first. Used to mirror
// conversation turns and system events for cheap recency reads.
type RecencyCache interface {
	Push(ctx context.Context, key, entry string, limit int) error
	List(ctx context.Context, key string, n int) ([]string, error)
}

// KVCache is a TTL'd key/value cache used for preference lookups.
type KVCache interface {
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}

// RedisCache implements RecencyCache and KVCache over a Redis server.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the Redis server at the given URL
// (e.g. "redis://localhost:6379/0") and verifies the connection.
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("memory: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("memory: redis ping: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Push(ctx context.Context, key, entry string, limit int) error {
	if err := c.client.LPush(ctx, key, entry).Err(); err != nil {
		return fmt.Errorf("memory: redis lpush %s: %w", key, err)
	}
	if err := c.client.LTrim(ctx, key, 0, int64(limit-1)).Err(); err != nil {
		return fmt.Errorf("memory: redis ltrim %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) List(ctx context.Context, key string, n int) ([]string, error) {
	entries, err := c.client.LRange(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("memory: redis lrange %s: %w", key, err)
	}
	return entries, nil
}

func (c *RedisCache) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("memory: redis setex %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("memory: redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("memory: redis del %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// MemoryCache implements RecencyCache and KVCache in process memory. It is
// the default when no cache URL is configured, and the cache used in tests.
type MemoryCache struct {
	mu    sync.Mutex
	lists map[string][]string
	kv    map[string]memoryCacheValue
}

type memoryCacheValue struct {
	value     string
	expiresAt time.Time
}

// NewMemoryCache constructs an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		lists: make(map[string][]string),
		kv:    make(map[string]memoryCacheValue),
	}
}

func (c *MemoryCache) Push(_ context.Context, key, entry string, limit int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := append([]string{entry}, c.lists[key]...)
	if len(list) > limit {
		list = list[:limit]
	}
	c.lists[key] = list
	return nil
}

func (c *MemoryCache) List(_ context.Context, key string, n int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.lists[key]
	if n < len(list) {
		list = list[:n]
	}
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

func (c *MemoryCache) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kv[key] = memoryCacheValue{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.kv[key]
	if !ok {
		return "", false, nil
	}
	if time.Now().After(v.expiresAt) {
		delete(c.kv, key)
		return "", false, nil
	}
	return v.value, true, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.kv, key)
	return nil
}
