package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// LocalCache is the durable fallback slot holding the last confirmed entry list.
// Read reports false when the slot is absent or unreadable.
type LocalCache interface {
	Read(ctx context.Context) ([]Entry, bool)
	Write(ctx context.Context, entries []Entry) error
}

// RedisCache keeps the serialized list under one fixed key, without expiry.
type RedisCache struct {
	client *redis.Client
	key    string
}

// NewRedisCache builds a cache on the given key.
func NewRedisCache(client *redis.Client, key string) *RedisCache {
	if key == "" {
		key = "youth_connect_attendance"
	}
	return &RedisCache{client: client, key: key}
}

// Read returns the cached list.
func (c *RedisCache) Read(ctx context.Context) ([]Entry, bool) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("cache read %s failed: %v", c.key, err)
		}
		return nil, false
	}
	return decodeEntries(raw)
}

// Write overwrites the slot with the full list.
func (c *RedisCache) Write(ctx context.Context, entries []Entry) error {
	raw, err := encodeEntries(entries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, raw, 0).Err()
}

// MemoryCache is an in-process LocalCache. It stores the serialized form so reads behave
// like the Redis slot.
type MemoryCache struct {
	mu  sync.Mutex
	raw []byte
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Read(ctx context.Context) ([]Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raw == nil {
		return nil, false
	}
	return decodeEntries(c.raw)
}

func (c *MemoryCache) Write(ctx context.Context, entries []Entry) error {
	raw, err := encodeEntries(entries)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.raw = raw
	c.mu.Unlock()
	return nil
}

func encodeEntries(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	return json.Marshal(entries)
}

func decodeEntries(raw []byte) ([]Entry, bool) {
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Printf("cache contents unreadable: %v", err)
		return nil, false
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, true
}
