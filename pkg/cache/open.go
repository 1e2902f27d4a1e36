package cache

import (
	"context"
	"fmt"
	"strings"
)

// Backend names a cache implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendNone   Backend = "none"
)

// ParseBackend maps a configuration name to a Backend.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(name)); b {
	case BackendFile, BackendMemory, BackendRedis, BackendNone:
		return b, nil
	case "", "null", "off":
		return BackendNone, nil
	default:
		return "", fmt.Errorf("unknown cache backend %q (want file, memory, redis or none)", name)
	}
}

// Config selects and configures a backend for [Open].
type Config struct {
	Backend Backend

	// Dir is the FileCache root.
	Dir string

	// MaxEntries bounds the MemoryCache.
	MaxEntries int

	Redis RedisConfig
}

// Open constructs the configured backend.
func Open(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case BackendFile:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("file cache: no directory configured")
		}
		return NewFileCache(cfg.Dir)
	case BackendMemory:
		return NewMemoryCache(cfg.MaxEntries), nil
	case BackendRedis:
		return NewRedisCache(ctx, cfg.Redis)
	case BackendNone, "":
		return NewNullCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
