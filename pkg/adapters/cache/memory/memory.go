package memory

import (
	"container/list"
	"context"
	"strings"
	"sync"

	"github.com/slipwayci/slipway/pkg/domain"
)

// DefaultCapacity bounds the cache when no explicit capacity is given.
const DefaultCapacity = 1024

// ArtifactCache implements ports.ArtifactCache with an in-process LRU.
// Entries read by an active run are leased and skipped by eviction until
// the run releases them.
type ArtifactCache struct {
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	leases  map[string]map[string]struct{} // key -> run IDs holding a lease
}

type cacheEntry struct {
	key      string
	artifact domain.Artifact
}

// NewArtifactCache creates an in-memory artifact cache bounded to
// capacity entries.
func NewArtifactCache(capacity int) *ArtifactCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ArtifactCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		leases:   make(map[string]map[string]struct{}),
	}
}

// Get returns the artifact stored under key and records a lease for
// runID so the entry survives eviction until the run completes.
func (c *ArtifactCache) Get(ctx context.Context, runID, key string) (*domain.Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}

	c.order.MoveToFront(elem)

	if runID != "" {
		if c.leases[key] == nil {
			c.leases[key] = make(map[string]struct{})
		}
		c.leases[key][runID] = struct{}{}
	}

	artifact := elem.Value.(*cacheEntry).artifact
	return &artifact, nil
}

// Put stores an artifact under key. Re-writing an identical artifact is
// a no-op; a differing artifact under the same key is a fingerprint
// collision and is surfaced, not overwritten.
func (c *ArtifactCache) Put(ctx context.Context, key string, artifact *domain.Artifact) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		existing := elem.Value.(*cacheEntry).artifact
		if existing.Digest != artifact.Digest {
			return &domain.FingerprintCollisionError{Key: key}
		}
		c.order.MoveToFront(elem)
		return nil
	}

	elem := c.order.PushFront(&cacheEntry{key: key, artifact: *artifact})
	c.entries[key] = elem

	c.evictLocked()
	return nil
}

// Invalidate drops every entry whose key starts with prefix, leased or
// not. Explicit invalidation outranks run leases.
func (c *ArtifactCache) Invalidate(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, elem := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.order.Remove(elem)
			delete(c.entries, key)
			delete(c.leases, key)
		}
	}
	return nil
}

// ReleaseRun drops all eviction leases held by a run.
func (c *ArtifactCache) ReleaseRun(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, holders := range c.leases {
		delete(holders, runID)
		if len(holders) == 0 {
			delete(c.leases, key)
		}
	}

	c.evictLocked()
}

// Len returns the current number of entries.
func (c *ArtifactCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked removes least-recently-used entries beyond capacity,
// skipping entries leased by an active run. Callers hold c.mu.
func (c *ArtifactCache) evictLocked() {
	over := len(c.entries) - c.capacity
	if over <= 0 {
		return
	}

	for elem := c.order.Back(); elem != nil && over > 0; {
		prev := elem.Prev()
		entry := elem.Value.(*cacheEntry)

		if len(c.leases[entry.key]) == 0 {
			c.order.Remove(elem)
			delete(c.entries, entry.key)
			over--
		}

		elem = prev
	}
}
