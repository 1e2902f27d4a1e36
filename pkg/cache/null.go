package cache

import (
	"context"
	"time"
)

// NullCache stores nothing, so every render recomputes its PNG.
//
// [Open] returns it for the "none" backend. The CLI also falls back to it
// when --no-cache is set or the configured backend cannot be opened, which
// keeps a render working while Redis or the cache directory is unavailable.
type NullCache struct{}

// NewNullCache returns a cache with caching disabled.
func NewNullCache() Cache {
	return &NullCache{}
}

// Get reports a miss for every artifact key.
func (c *NullCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

// Set discards the rendered bytes.
func (c *NullCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return nil
}

func (c *NullCache) Delete(ctx context.Context, key string) error {
	return nil
}

func (c *NullCache) Close() error {
	return nil
}

var _ Cache = (*NullCache)(nil)
