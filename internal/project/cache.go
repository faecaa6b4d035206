package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ppiankov/scopeguard/internal/model"
)

// DefaultCacheTTL bounds how long a cached project can lag behind the store.
const DefaultCacheTTL = 5 * time.Minute

const keyPrefix = "scopeguard:project:"

// Backend is the source of truth behind the cache.
type Backend interface {
	Get(ctx context.Context, id string) (model.Project, error)
	Put(ctx context.Context, p model.Project) (model.Project, error)
	List(ctx context.Context) ([]model.Project, error)
}

// Cache is a Redis read-through cache in front of a Backend. Redis failures
// are logged and fall through to the backend, so a cache outage only costs
// latency. Unknown projects are not cached.
type Cache struct {
	backend Backend
	client  *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCache wraps backend with a Redis cache reachable at redisURL
// (e.g. "redis://localhost:6379/0").
func NewCache(backend Backend, redisURL string, ttl time.Duration, logger *zap.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("project: parse redis url: %w", err)
	}
	opts.DialTimeout = time.Second
	opts.ReadTimeout = 500 * time.Millisecond
	opts.WriteTimeout = 500 * time.Millisecond
	opts.MaxRetries = 1
	return newCache(backend, redis.NewClient(opts), ttl, logger), nil
}

func newCache(backend Backend, client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{backend: backend, client: client, ttl: ttl, logger: logger}
}

// Get returns the project from Redis, or loads and caches it from the backend.
func (c *Cache) Get(ctx context.Context, id string) (model.Project, error) {
	key := keyPrefix + id
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p model.Project
		if jerr := json.Unmarshal(data, &p); jerr == nil {
			return p, nil
		}
		c.logger.Warn("discarding undecodable cached project", zap.String("project_id", id))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("project cache read failed", zap.String("project_id", id), zap.Error(err))
	}

	p, err := c.backend.Get(ctx, id)
	if err != nil {
		return model.Project{}, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("project cache write failed", zap.String("project_id", id), zap.Error(err))
		}
	}
	return p, nil
}

// Put writes through to the backend and invalidates the cached copy.
func (c *Cache) Put(ctx context.Context, p model.Project) (model.Project, error) {
	saved, err := c.backend.Put(ctx, p)
	if err != nil {
		return model.Project{}, err
	}
	c.Invalidate(ctx, saved.ID)
	return saved, nil
}

// List always reads the backend.
func (c *Cache) List(ctx context.Context) ([]model.Project, error) {
	return c.backend.List(ctx)
}

// Invalidate drops the cached copy of id.
func (c *Cache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		c.logger.Warn("project cache invalidation failed", zap.String("project_id", id), zap.Error(err))
	}
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
