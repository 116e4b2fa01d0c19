package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the one client the cache slot and the change feed share.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds the client without dialing. Command timeouts are kept short so a down
// cache degrades a request by a second at most; pub/sub receives are not bound by them.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy backs the redis field of /healthz.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close is a no-op when neither the cache nor the feed used redis.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
