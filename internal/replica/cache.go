package replica

import (
	"context"
	"sync"
)

// DefaultCacheCapacity bounds the prefetch cache.
const DefaultCacheCapacity = 10

// Fetcher loads the raw bytes for one image id.
type Fetcher func(ctx context.Context, id string) ([]byte, error)

// PrefetchCache holds recently fetched image bytes. Eviction is strict
// insertion order: a cache hit does not refresh an entry's position, so
// sequential browsing evicts exactly the images the user has moved past.
// Concurrent fetches of the same id are deduplicated.
type PrefetchCache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	data     map[string][]byte
	inflight map[string]chan struct{}
	fetch    Fetcher
}

func NewPrefetchCache(capacity int, fetch Fetcher) *PrefetchCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &PrefetchCache{
		capacity: capacity,
		data:     map[string][]byte{},
		inflight: map[string]chan struct{}{},
		fetch:    fetch,
	}
}

// Get returns the cached bytes for id, fetching on a miss. If another
// goroutine is already fetching the same id, Get waits for it instead of
// issuing a second request.
func (c *PrefetchCache) Get(ctx context.Context, id string) ([]byte, error) {
	for {
		c.mu.Lock()
		if data, ok := c.data[id]; ok {
			c.mu.Unlock()
			return data, nil
		}
		if done, ok := c.inflight[id]; ok {
			c.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		done := make(chan struct{})
		c.inflight[id] = done
		c.mu.Unlock()

		data, err := c.fetch(ctx, id)

		c.mu.Lock()
		delete(c.inflight, id)
		close(done)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.insertLocked(id, data)
		c.mu.Unlock()
		return data, nil
	}
}

// Prefetch warms the cache for ids in the background. Errors are ignored;
// a failed prefetch just means a slower Get later.
func (c *PrefetchCache) Prefetch(ctx context.Context, ids []string) {
	for _, id := range ids {
		c.mu.Lock()
		_, cached := c.data[id]
		_, fetching := c.inflight[id]
		c.mu.Unlock()
		if cached || fetching {
			continue
		}
		go func(id string) {
			_, _ = c.Get(ctx, id)
		}(id)
	}
}

// Around returns the ids to keep warm around position i: the next ahead
// images and one behind, clamped to the catalog bounds.
func Around(ids []string, i, ahead int) []string {
	var out []string
	if i-1 >= 0 && i-1 < len(ids) {
		out = append(out, ids[i-1])
	}
	for k := i + 1; k <= i+ahead && k < len(ids); k++ {
		out = append(out, ids[k])
	}
	return out
}

func (c *PrefetchCache) insertLocked(id string, data []byte) {
	if _, ok := c.data[id]; ok {
		// Refresh the bytes but keep the original insertion slot.
		c.data[id] = data
		return
	}
	c.order = append(c.order, id)
	c.data[id] = data
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.data, oldest)
	}
}

// Has reports whether id is cached, without affecting eviction order.
func (c *PrefetchCache) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[id]
	return ok
}

func (c *PrefetchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
