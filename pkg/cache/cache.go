// Package cache stores encoded render artifacts keyed by source and parameters.
//
// # Backends
//
//   - [FileCache]: JSON entries on disk, the CLI default
//   - [MemoryCache]: sharded in-process LRU, the server default
//   - [RedisCache]: shared cache for several server instances
//   - [NullCache]: caching disabled
//
// All backends implement [Cache] and are safe for concurrent use. Entries
// carry an optional TTL; expired entries read as misses.
//
// # Keys
//
// A [Keyer] derives keys. [DefaultKeyer] hashes the source content hash
// together with every input that changes the output pixels, so two requests
// share an entry only when they would produce identical bytes. [ScopedKeyer]
// prefixes keys for namespace isolation.
package cache

import (
	"context"
	"time"
)

// Default TTLs.
const (
	// TTLArtifact bounds how long an encoded PNG is kept.
	TTLArtifact = 7 * 24 * time.Hour
)

// Cache is a byte-oriented key/value store with per-entry expiry.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero or less never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// ArtifactKeyOpts are the render inputs that affect the encoded output.
type ArtifactKeyOpts struct {
	Slices        int     `json:"slices"`
	Blur          float64 `json:"blur"`
	Brightness    int     `json:"brightness"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
	PixelRatio    float64 `json:"pixel_ratio"`
	Interpolation string  `json:"interpolation"`
	Kernel        string  `json:"kernel"`
	Overflow      string  `json:"overflow"`
	Compression   string  `json:"compression"`
}

// Keyer derives cache keys.
type Keyer interface {
	// ArtifactKey returns the key for the PNG rendered from the source with
	// the given content hash.
	ArtifactKey(sourceHash string, opts ArtifactKeyOpts) string
}

// DefaultKeyer produces "artifact:<sha256>" keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ArtifactKey hashes sourceHash together with opts.
func (DefaultKeyer) ArtifactKey(sourceHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", sourceHash, opts)
}
