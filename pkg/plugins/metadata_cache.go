package plugins

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CachingMetadataReader memoises manifests across load passes so repeated
// passes over an unchanged plugin tree do not re-parse every bundle.
// Failed reads are never cached.
type CachingMetadataReader struct {
	next   MetadataReader
	cache  *lru.LRU[string, *Manifest]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingMetadataReader wraps next with an LRU of size entries expiring after ttl
func NewCachingMetadataReader(next MetadataReader, size int, ttl time.Duration) *CachingMetadataReader {
	if size < 1 {
		size = 1
	}

	return &CachingMetadataReader{
		next:  next,
		cache: lru.NewLRU[string, *Manifest](size, nil, ttl),
	}
}

// ReadMetadata implements MetadataReader
func (c *CachingMetadataReader) ReadMetadata(ctx context.Context, location string) (*Manifest, error) {
	if manifest, ok := c.cache.Get(location); ok {
		c.hits.Add(1)
		return manifest, nil
	}
	c.misses.Add(1)

	manifest, err := c.next.ReadMetadata(ctx, location)
	if err != nil {
		return nil, err
	}

	c.cache.Add(location, manifest)
	return manifest, nil
}

// Purge drops every cached manifest
func (c *CachingMetadataReader) Purge() {
	c.cache.Purge()
}

// CacheStats counts manifest cache lookups
type CacheStats struct {
	Hits   int64
	Misses int64
}

// Stats returns cache hit and miss counts
func (c *CachingMetadataReader) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
