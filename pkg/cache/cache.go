// Package cache provides pluggable byte caches for registry data.
//
// Three backends are available:
//
//   - [FileCache]: persistent on-disk cache for CLI usage
//   - [RedisCache]: shared cache for server deployments
//   - [NullCache]: caching disabled
//
// Cache keys are produced by a [Keyer] so that every component storing
// registry responses agrees on the key layout. Use [NewScopedKeyer] to
// isolate keys per registry or per user.
package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// Cache is the storage interface shared by all backends.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a value. The second return value reports whether the
	// key was present and fresh; expired entries count as misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL. A TTL of 0 means the entry
	// never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// DefaultDir returns the default on-disk cache directory.
// It honors XDG_CACHE_HOME on Linux via [os.UserCacheDir].
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "hoist"), nil
}
