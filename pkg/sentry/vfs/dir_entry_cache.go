// Copyright 2024 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vfs

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/sync"
)

// CacheMode selects how a Filesystem keeps DirEntries alive after their last
// user drops them.
type CacheMode int

const (
	// CacheModePermanent pins every entry for the Filesystem's lifetime. It is
	// used by filesystems whose DirEntry tree is the only copy of their
	// namespace.
	CacheModePermanent CacheMode = iota

	// CacheModeCached keeps recently used entries in an LRU.
	CacheModeCached

	// CacheModeUncached keeps nothing; an entry lives only while referenced.
	CacheModeUncached
)

// DefaultLRUCapacity is the LRU capacity used when CacheModeCached is
// selected without one.
const DefaultLRUCapacity = 32

// String implements fmt.Stringer.String.
func (m CacheMode) String() string {
	switch m {
	case CacheModePermanent:
		return "permanent"
	case CacheModeCached:
		return "cached"
	case CacheModeUncached:
		return "uncached"
	default:
		return fmt.Sprintf("CacheMode(%d)", int(m))
	}
}

// ParseCacheMode parses the String form of a CacheMode.
func ParseCacheMode(s string) (CacheMode, error) {
	switch s {
	case "permanent":
		return CacheModePermanent, nil
	case "cached", "lru":
		return CacheModeCached, nil
	case "uncached", "none":
		return CacheModeUncached, nil
	default:
		return 0, fmt.Errorf("unknown cache mode %q", s)
	}
}

// EntryCache is the eviction policy of a Filesystem. An EntryCache holds
// references on the entries it retains.
//
// No EntryCache method may be called with a DirEntry lock held, since
// dropping a reference can destroy an entry.
type EntryCache interface {
	// Admit is called once for every entry inserted into the tree.
	Admit(d *DirEntry)

	// Touch is called when a cached entry is used again.
	Touch(d *DirEntry)

	// Purge releases entries beyond the cache's capacity.
	Purge(ctx context.Context)

	// Forget releases d if the cache retains it.
	Forget(ctx context.Context, d *DirEntry)

	// Flush releases every retained entry.
	Flush(ctx context.Context)

	// Size returns the number of retained entries.
	Size() uint64
}

// newEntryCache returns the EntryCache for mode.
func newEntryCache(mode CacheMode, capacity uint64, limit *DirEntryCacheLimiter) EntryCache {
	switch mode {
	case CacheModePermanent:
		return &permanentCache{entries: make(map[*DirEntry]struct{})}
	case CacheModeCached:
		if capacity == 0 {
			capacity = DefaultLRUCapacity
		}
		return &lruCache{maxSize: capacity, limit: limit}
	case CacheModeUncached:
		return uncachedCache{}
	default:
		panic(fmt.Sprintf("unknown cache mode %d", mode))
	}
}

// uncachedCache retains nothing.
type uncachedCache struct{}

func (uncachedCache) Admit(*DirEntry)                   {}
func (uncachedCache) Touch(*DirEntry)                   {}
func (uncachedCache) Purge(context.Context)             {}
func (uncachedCache) Forget(context.Context, *DirEntry) {}
func (uncachedCache) Flush(context.Context)             {}
func (uncachedCache) Size() uint64                      { return 0 }

// permanentCache retains every admitted entry until it is forgotten.
type permanentCache struct {
	mu      sync.Mutex
	entries map[*DirEntry]struct{}
}

func (c *permanentCache) Admit(d *DirEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[d]; ok {
		return
	}
	d.IncRef()
	c.entries[d] = struct{}{}
}

func (c *permanentCache) Touch(*DirEntry) {}

func (c *permanentCache) Purge(context.Context) {}

func (c *permanentCache) Forget(ctx context.Context, d *DirEntry) {
	c.mu.Lock()
	_, ok := c.entries[d]
	delete(c.entries, d)
	c.mu.Unlock()
	if ok {
		d.DecRef(ctx)
	}
}

func (c *permanentCache) Flush(ctx context.Context) {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[*DirEntry]struct{})
	c.mu.Unlock()
	for d := range entries {
		d.DecRef(ctx)
	}
}

func (c *permanentCache) Size() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.entries))
}

// lruCache is an LRU cache of DirEntries. An entry's reference count is
// incremented when it is added to the cache, and decremented after it is
// evicted.
type lruCache struct {
	// limit restricts the number of entries among all caches sharing it. It
	// may be nil.
	limit *DirEntryCacheLimiter

	// mu protects the fields below.
	mu sync.Mutex

	// maxSize is the capacity of the cache.
	maxSize uint64

	// currentSize is the number of entries in list.
	currentSize uint64

	// list holds the cached entries, most recently used first.
	list dirEntryList

	// evicted holds entries removed from list whose references have not been
	// dropped yet.
	evicted []*DirEntry
}

// Admit implements EntryCache.Admit.
func (c *lruCache) Admit(d *DirEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.contains(d) {
		c.list.Remove(d)
		c.list.PushFront(d)
		return
	}

	// First check against the global limit.
	for c.limit != nil && !c.limit.tryInc() {
		if c.currentSize == 0 {
			// Nothing of ours left to give up.
			return
		}
		c.evictLocked(c.list.Back())
	}

	d.IncRef()
	c.list.PushFront(d)
	c.currentSize++
}

// Touch implements EntryCache.Touch.
func (c *lruCache) Touch(d *DirEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.contains(d) {
		c.list.Remove(d)
		c.list.PushFront(d)
	}
}

// Purge implements EntryCache.Purge.
func (c *lruCache) Purge(ctx context.Context) {
	c.mu.Lock()
	for c.currentSize > c.maxSize {
		c.evictLocked(c.list.Back())
	}
	evicted := c.evicted
	c.evicted = nil
	c.mu.Unlock()

	for _, d := range evicted {
		cacheEvictions.Increment()
		d.DecRef(ctx)
	}
}

// Forget implements EntryCache.Forget.
func (c *lruCache) Forget(ctx context.Context, d *DirEntry) {
	c.mu.Lock()
	if !c.contains(d) {
		c.mu.Unlock()
		return
	}
	c.evictLocked(d)
	c.mu.Unlock()
	c.Purge(ctx)
}

// Flush implements EntryCache.Flush.
func (c *lruCache) Flush(ctx context.Context) {
	c.mu.Lock()
	for c.list.Front() != nil {
		c.evictLocked(c.list.Front())
	}
	c.mu.Unlock()
	c.Purge(ctx)
}

// Size implements EntryCache.Size.
func (c *lruCache) Size() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// SetMaxSize changes the capacity of the cache. Entries beyond the new
// capacity are released by the next Purge.
func (c *lruCache) SetMaxSize(max uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSize = max
}

// +checklocks:c.mu
func (c *lruCache) evictLocked(d *DirEntry) {
	if !c.contains(d) {
		panic(fmt.Sprintf("trying to evict %p, which is not in the LRU", d))
	}
	c.list.Remove(d)
	c.currentSize--
	if c.limit != nil {
		c.limit.dec()
	}
	c.evicted = append(c.evicted, d)
}

// +checklocks:c.mu
func (c *lruCache) contains(d *DirEntry) bool {
	// If d has a Prev or Next element, then it is in the cache.
	if d.lruEntry.Prev() != nil || d.lruEntry.Next() != nil {
		return true
	}
	// Otherwise, d is in the cache if it is the only element.
	return c.list.Front() == d
}
