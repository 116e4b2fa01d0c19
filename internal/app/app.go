package app

import (
	"context"
	"fmt"
	"log"

	"checkin/internal/attendance"
	"checkin/internal/config"
	"checkin/internal/feed"
	"checkin/internal/store"
)

// Deps are the wired backends shared by the api and display binaries.
type Deps struct {
	Manager *attendance.Manager
	Bus     feed.Bus
	DB      *store.DB
	Redis   *store.Redis
}

// Build connects the configured backends. An unreachable Postgres is only logged: the
// manager then serves the cached list until the database comes back.
func Build(ctx context.Context, cfg config.App) (*Deps, error) {
	d := &Deps{}
	if cfg.CacheBackend == "redis" || cfg.FeedBackend == "redis" {
		d.Redis = store.NewRedis(cfg.RedisAddr)
		if !d.Redis.Healthy(ctx) {
			log.Printf("warning: redis not reachable at %s", cfg.RedisAddr)
		}
	}

	var remote attendance.RemoteStore
	if cfg.StoreBackend == "memory" {
		log.Println("using in-memory attendance store")
		remote = attendance.NewMemoryStore()
	} else {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if db == nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err != nil {
			log.Printf("warning: db not reachable: %v", err)
		}
		d.DB = db
		repo := attendance.NewRepository(db.Client, cfg.TableName)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Printf("warning: ensure schema failed: %v", err)
		}
		remote = repo
	}

	var cache attendance.LocalCache
	if cfg.CacheBackend == "redis" {
		cache = attendance.NewRedisCache(d.Redis.Client, cfg.CacheKey)
	} else {
		cache = attendance.NewMemoryCache()
	}

	if cfg.FeedBackend == "redis" {
		d.Bus = feed.NewRedis(d.Redis.Client, cfg.FeedChannel)
	} else {
		d.Bus = feed.NewInMemory(32)
	}

	d.Manager = attendance.NewManager(remote, cache, d.Bus, attendance.Options{
		AdminSecret:    cfg.AdminKey,
		GenderRequired: cfg.GenderRequired,
		MinPhoneLength: cfg.MinPhoneLength,
	})
	if cfg.AdminKey == "" {
		log.Println("ADMIN_KEY not set: clear and delete are disabled")
	}
	return d, nil
}

// Close releases the connections.
func (d *Deps) Close() {
	if err := d.DB.Close(); err != nil {
		log.Printf("db close: %v", err)
	}
	if err := d.Redis.Close(); err != nil {
		log.Printf("redis close: %v", err)
	}
}
