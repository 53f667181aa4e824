package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ExportCache keeps rendered exports so repeated downloads skip layout.
type ExportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
	Close() error
}

func exportCacheKey(id, format string) string {
	return fmt.Sprintf("export:%s:%s", id, format)
}

// newExportCache uses Redis when an address is configured and an in-process
// cache otherwise.
func newExportCache(cfg *Config, log *Logger) (ExportCache, error) {
	if cfg.RedisAddr == "" {
		log.Info("export cache: in-memory", "ttl", cfg.CacheTTL.String())
		return newMemoryCache(cfg.CacheTTL, 64), nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("export cache: redis", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL.String())
	return &redisCache{rdb: rdb, ttl: cfg.CacheTTL}, nil
}

type redisCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, data []byte) error {
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *redisCache) Close() error { return c.rdb.Close() }

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// memoryCache is a TTL map bounded to max entries; the oldest insert is
// evicted first.
type memoryCache struct {
	ttl time.Duration
	max int
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
	order   []string
}

func newMemoryCache(ttl time.Duration, max int) *memoryCache {
	if max < 1 {
		max = 1
	}
	return &memoryCache{ttl: ttl, max: max, now: time.Now, entries: map[string]memoryEntry{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().After(e.expires) {
		c.remove(key)
		return nil, false, nil
	}
	return e.data, true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.remove(key)
	}
	for len(c.order) >= c.max {
		c.remove(c.order[0])
	}
	c.entries[key] = memoryEntry{data: data, expires: c.now().Add(c.ttl)}
	c.order = append(c.order, key)
	return nil
}

func (c *memoryCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *memoryCache) Close() error { return nil }
