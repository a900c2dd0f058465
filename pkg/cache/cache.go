// Package cache stores rendered artifacts keyed by content hash.
//
// Only outputs are cached: a hierarchy and its layout are always recomputed
// from freshly loaded data, so a cache can never serve a diagram that
// disagrees with the backend. Keys are derived from the hash of the layout
// being rendered plus the render options, see [Keyer].
//
// Three backends are provided:
//   - [NullCache]: caches nothing (the default)
//   - [FileCache]: one file per entry, for the CLI
//   - [RedisCache]: shared cache for server deployments
package cache

import (
	"context"
	"time"

	"github.com/matzehuels/stemma/pkg/observability"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Close() error
}

// Instrumented reports hits, misses and writes of the wrapped cache to the
// registered observability hooks under keyType.
func Instrumented(c Cache, keyType string) Cache {
	return &instrumented{Cache: c, keyType: keyType}
}

type instrumented struct {
	Cache
	keyType string
}

func (c *instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, hit, err := c.Cache.Get(ctx, key)
	if err == nil {
		if hit {
			observability.Cache().OnCacheHit(ctx, c.keyType)
		} else {
			observability.Cache().OnCacheMiss(ctx, c.keyType)
		}
	}
	return data, hit, err
}

func (c *instrumented) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	err := c.Cache.Set(ctx, key, data, ttl)
	if err == nil {
		observability.Cache().OnCacheSet(ctx, c.keyType, len(data))
	}
	return err
}

// WithMaxTTL caps the expiry of every write to c at max. A zero ttl, which
// means no expiry, is capped too. A non-positive max returns c unchanged.
func WithMaxTTL(c Cache, max time.Duration) Cache {
	if max <= 0 {
		return c
	}
	return &capped{Cache: c, max: max}
}

type capped struct {
	Cache
	max time.Duration
}

func (c *capped) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.max {
		ttl = c.max
	}
	return c.Cache.Set(ctx, key, data, ttl)
}
