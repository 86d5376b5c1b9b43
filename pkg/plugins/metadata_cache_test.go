package plugins

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReader struct {
	next  MetadataReader
	reads map[string]int
}

func (c *countingReader) ReadMetadata(ctx context.Context, location string) (*Manifest, error) {
	c.reads[location]++
	return c.next.ReadMetadata(ctx, location)
}

func TestCachingMetadataReader(t *testing.T) {
	counting := &countingReader{
		next:  StaticMetadataReader{"/a": {ID: "a"}},
		reads: make(map[string]int),
	}
	cache := NewCachingMetadataReader(counting, 8, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m, err := cache.ReadMetadata(ctx, "/a")
		require.NoError(t, err)
		assert.Equal(t, "a", m.ID)
	}
	assert.Equal(t, 1, counting.reads["/a"])

	for i := 0; i < 2; i++ {
		_, err := cache.ReadMetadata(ctx, "/missing")
		assert.Error(t, err)
	}
	assert.Equal(t, 2, counting.reads["/missing"], "failed reads are not cached")

	hits, misses := cache.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(3), misses)

	cache.Purge()
	_, err := cache.ReadMetadata(ctx, "/a")
	require.NoError(t, err)
	assert.Equal(t, 2, counting.reads["/a"])
}

func TestCachingMetadataReader_Expiry(t *testing.T) {
	counting := &countingReader{
		next:  StaticMetadataReader{"/a": {ID: "a"}},
		reads: make(map[string]int),
	}
	cache := NewCachingMetadataReader(counting, 0, 10*time.Millisecond)

	_, err := cache.ReadMetadata(context.Background(), "/a")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := cache.ReadMetadata(context.Background(), "/a")
		return err == nil && counting.reads["/a"] > 1
	}, time.Second, 5*time.Millisecond)
}
