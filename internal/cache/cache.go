// Package cache provides a Redis-backed cache for assembled prompt context
// (long-term memory, agent personas).
//
// Graceful fallback: when Redis is not configured or unreachable, every
// operation returns a miss instead of blocking the conversation path.
package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes.
const (
	KeyMemory = "mem:" // per-group memory context
	KeyPrompt = "sp:"  // per-agent assembled system prompt
)

// Config holds Redis connection settings.
type Config struct {
	URL      string // redis://host:port
	Password string
	DB       int
}

// Cache wraps a Redis client, possibly absent.
type Cache struct {
	client *redis.Client
}

// New connects to Redis. A Cache with no backing client is returned (never
// nil) when the URL is empty or the server is unreachable.
func New(cfg Config) *Cache {
	if cfg.URL == "" {
		return &Cache{}
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Printf("[Cache] invalid redis URL, caching disabled: %v", err)
		return &Cache{}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[Cache] redis unreachable, caching disabled: %v", err)
		client.Close()
		return &Cache{}
	}

	log.Printf("[Cache] connected to %s", opts.Addr)
	return &Cache{client: client}
}

// Enabled reports whether a backing client exists.
func (c *Cache) Enabled() bool { return c.client != nil }

// Get returns the cached value for key, or a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if c.client == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// Set stores a value with a TTL. Failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("[Cache] set %s: %v", key, err)
	}
}

// Invalidate removes a key (after a memory update, for example).
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		log.Printf("[Cache] del %s: %v", key, err)
	}
}

// Close releases the client.
func (c *Cache) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
