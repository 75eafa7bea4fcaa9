// Package cache is a read-through cache over a key-value store. Every cache
// failure degrades to loading from the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// SummarizedNewsKey holds the cached news listing. The batch runner
// invalidates it after every pass.
const SummarizedNewsKey = "summarized_news"

// DefaultTTL is how long a loaded value stays cached.
const DefaultTTL = time.Hour

// Store is a key-value backend. Get reports a miss with ok == false and a
// nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ReadThrough wraps a Store with logging and a fixed TTL.
type ReadThrough struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

func NewReadThrough(store Store, ttl time.Duration, logger *slog.Logger) *ReadThrough {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadThrough{store: store, ttl: ttl, logger: logger.With("component", "cache")}
}

// Get decodes the cached value for key into out. Errors count as misses.
func (c *ReadThrough) Get(ctx context.Context, key string, out any) bool {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("cache entry undecodable, ignoring", "key", key, "error", err)
		return false
	}
	return true
}

// Set stores value under key. Failures are logged and otherwise ignored.
func (c *ReadThrough) Set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// Invalidate removes key unconditionally.
func (c *ReadThrough) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// GetOrLoad returns the cached value for key or calls load, caches its
// result and returns it. Only load errors are returned.
func GetOrLoad[T any](ctx context.Context, c *ReadThrough, key string, load func(context.Context) (T, error)) (T, error) {
	var cached T
	if c.Get(ctx, key, &cached) {
		return cached, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.Set(ctx, key, v)
	return v, nil
}
