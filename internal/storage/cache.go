package storage

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
)

// Compile-time interface check.
var _ domain.MetadataSource = (*MetadataCache)(nil)

// MetadataCache memoizes clip metadata lookups. Concurrent lookups of the
// same id share one call to the source. Misses are not cached.
type MetadataCache struct {
	src   domain.MetadataSource
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]domain.AudioMetadata
}

// NewMetadataCache wraps src.
func NewMetadataCache(src domain.MetadataSource) *MetadataCache {
	return &MetadataCache{
		src:     src,
		entries: make(map[string]domain.AudioMetadata),
	}
}

// GetAudioMetadata returns cached metadata, loading it on first use.
func (c *MetadataCache) GetAudioMetadata(ctx context.Context, clipID string) (*domain.AudioMetadata, error) {
	c.mu.RLock()
	m, ok := c.entries[clipID]
	c.mu.RUnlock()
	if ok {
		return &m, nil
	}

	v, err, _ := c.group.Do(clipID, func() (any, error) {
		meta, err := c.src.GetAudioMetadata(ctx, clipID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[clipID] = *meta
		c.mu.Unlock()
		return *meta, nil
	})
	if err != nil {
		return nil, err
	}
	meta := v.(domain.AudioMetadata)
	return &meta, nil
}

// Invalidate drops cached entries, typically after their clips are
// deleted.
func (c *MetadataCache) Invalidate(clipIDs ...string) {
	c.mu.Lock()
	for _, id := range clipIDs {
		delete(c.entries, id)
	}
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *MetadataCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
