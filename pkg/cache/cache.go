// Package cache stores pipeline stage results and metadata API responses.
//
// Keys are produced by a [Keyer] from content hashes, so a cached entry is
// valid for as long as its inputs are unchanged; the TTLs only bound storage.
//
// Backends:
//
//   - [FileCache]: one JSON file per key under a directory (CLI default)
//   - [MemoryCache]: bounded in-process LRU (server default)
//   - [RedisCache]: shared cache for several server replicas
//   - [NullCache]: caching disabled
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the value for key. A missing or expired key reports
	// hit=false with a nil error.
	Get(ctx context.Context, key string) (data []byte, hit bool, err error)

	// Set stores data under key. A ttl <= 0 never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
	Close() error
}

// Default TTLs per entry kind.
const (
	TTLGraph    = 24 * time.Hour
	TTLLayout   = 7 * 24 * time.Hour
	TTLArtifact = 7 * 24 * time.Hour
	TTLHTTP     = time.Hour
)

// Key types reported to observability hooks.
const (
	KeyTypeGraph    = "graph"
	KeyTypeLayout   = "layout"
	KeyTypeArtifact = "artifact"
	KeyTypeHTTP     = "http"
)
