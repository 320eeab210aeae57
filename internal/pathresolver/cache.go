package pathresolver

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ringSize is the number of slots in each bucket's round-robin ring
// (spec.md §4.8).
const ringSize = 4

// ringCache is the fixed-capacity, hash-bucketed record cache spec.md §4.8
// and §5 describe: bucket := xxhash(path) % capacity, each bucket a tiny
// round-robin ring so unrelated paths rarely evict one another. Lookups
// take the read lock; insertion takes the write lock and always overwrites
// the oldest slot in place, never freeing a live entry a reader might still
// observe (spec.md §5).
type ringCache struct {
	mu      sync.RWMutex
	buckets [][ringSize]ringEntry
	next    []uint8
}

type ringEntry struct {
	valid bool
	path  string
	res   Result
}

func newRingCache(capacity int) *ringCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &ringCache{
		buckets: make([][ringSize]ringEntry, capacity),
		next:    make([]uint8, capacity),
	}
}

func (c *ringCache) bucketFor(path string) uint64 {
	return xxhash.Sum64String(path) % uint64(len(c.buckets))
}

func (c *ringCache) lookup(path string) (Result, bool) {
	b := c.bucketFor(path)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.buckets[b] {
		if e.valid && e.path == path {
			return e.res, true
		}
	}
	return Result{}, false
}

func (c *ringCache) insert(path string, res Result) {
	b := c.bucketFor(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	slot := c.next[b]
	c.buckets[b][slot] = ringEntry{valid: true, path: path, res: res}
	c.next[b] = (slot + 1) % ringSize
}
