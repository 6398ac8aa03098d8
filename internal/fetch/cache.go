package fetch

import (
	"container/list"
	"context"
	"sync"
)

// PayloadCache is an LRU cache of fetched payloads keyed by URL. Entries
// are evicted least-recently-used first once the total size exceeds the
// configured maximum.
type PayloadCache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64

	// items maps url → list element (whose value is *cacheEntry)
	items map[string]*list.Element
	order *list.List // front = most recently used

	hits, misses int64
}

type cacheEntry struct {
	url  string
	data []byte
}

// NewPayloadCache creates a cache holding at most maxBytes (default 256MB).
func NewPayloadCache(maxBytes int64) *PayloadCache {
	if maxBytes <= 0 {
		maxBytes = 256 * 1024 * 1024
	}
	return &PayloadCache{
		maxBytes: maxBytes,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached payload for url. On hit, the entry is promoted to
// most-recently-used.
func (c *PayloadCache) Get(url string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[url]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).data, true
}

// Put records a payload. Payloads larger than the whole cache are not kept.
func (c *PayloadCache) Put(url string, data []byte) {
	size := int64(len(data))
	if size > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[url]; ok {
		old := elem.Value.(*cacheEntry)
		c.curBytes += size - int64(len(old.data))
		old.data = data
		c.order.MoveToFront(elem)
	} else {
		elem := c.order.PushFront(&cacheEntry{url: url, data: data})
		c.items[url] = elem
		c.curBytes += size
	}

	for c.curBytes > c.maxBytes && c.order.Len() > 1 {
		c.removeLocked(c.order.Back())
	}
}

// Invalidate drops url from the cache.
func (c *PayloadCache) Invalidate(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[url]; ok {
		c.removeLocked(elem)
	}
}

// removeLocked removes a specific element. Caller must hold c.mu.
func (c *PayloadCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.items, entry.url)
	c.curBytes -= int64(len(entry.data))
}

// Size returns the current total cached size in bytes.
func (c *PayloadCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

// Len returns the number of cached entries.
func (c *PayloadCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns the hit and miss counters.
func (c *PayloadCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// CachingFetcher serves repeated URLs from a PayloadCache.
type CachingFetcher struct {
	next  Fetcher
	cache *PayloadCache
}

// NewCachingFetcher wraps next with cache.
func NewCachingFetcher(next Fetcher, cache *PayloadCache) *CachingFetcher {
	return &CachingFetcher{next: next, cache: cache}
}

// Cache exposes the underlying cache.
func (f *CachingFetcher) Cache() *PayloadCache { return f.cache }

// Invalidate forgets the cached payload of rawURL.
func (f *CachingFetcher) Invalidate(rawURL string) { f.cache.Invalidate(rawURL) }

func (f *CachingFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if data, ok := f.cache.Get(rawURL); ok {
		return data, nil
	}
	data, err := f.next.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	f.cache.Put(rawURL, data)
	return data, nil
}
