package matcher

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/expenso/policy-engine/models"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	tenantID   uuid.UUID
	policies   []*models.Policy
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// isExpired checks if the cache entry has expired
func (e *cacheEntry) isExpired(ttl time.Duration) bool {
	return time.Since(e.insertedAt) > ttl
}

// SnapshotCache is an in-memory LRU cache with TTL for per-tenant policy
// snapshots. Real-time item checks hit this instead of the policy store.
// Thread-safe implementation using sync.Mutex.
type SnapshotCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*cacheEntry
	lruList *list.List    // Doubly linked list for LRU tracking
	maxSize int           // Maximum number of entries
	ttl     time.Duration // Time-to-live for entries
	hits    uint64
	misses  uint64
}

// NewSnapshotCache creates a new SnapshotCache with specified max size and TTL
func NewSnapshotCache(maxSize int, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		entries: make(map[uuid.UUID]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get retrieves a tenant's policy snapshot from cache.
// Returns nil if not found or expired.
func (c *SnapshotCache) Get(tenantID uuid.UUID) []*models.Policy {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[tenantID]
	if !exists || entry.isExpired(c.ttl) {
		c.misses++
		if exists {
			c.removeEntry(tenantID)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.policies
}

// Set stores a tenant's policy snapshot in cache
func (c *SnapshotCache) Set(tenantID uuid.UUID, policies []*models.Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[tenantID]; exists {
		entry.policies = policies
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		tenantID:   tenantID,
		policies:   policies,
		insertedAt: time.Now(),
	}
	entry.element = c.lruList.PushFront(tenantID)
	c.entries[tenantID] = entry
}

// Invalidate removes a tenant's snapshot. Called after policy mutations.
func (c *SnapshotCache) Invalidate(tenantID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(tenantID)
}

// Clear removes all entries from the cache
func (c *SnapshotCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uuid.UUID]*cacheEntry)
	c.lruList.Init()
}

// Stats returns cache statistics
func (c *SnapshotCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: c.calculateHitRate(),
	}
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// calculateHitRate calculates the cache hit rate (must be called with lock held)
func (c *SnapshotCache) calculateHitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// removeEntry removes an entry from the cache (must be called with lock held)
func (c *SnapshotCache) removeEntry(tenantID uuid.UUID) {
	if entry, exists := c.entries[tenantID]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, tenantID)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (c *SnapshotCache) evictLRU() {
	backElement := c.lruList.Back()
	if backElement != nil {
		tenantID := backElement.Value.(uuid.UUID)
		c.lruList.Remove(backElement)
		delete(c.entries, tenantID)
	}
}

// CleanupExpired removes all expired entries.
// Should be called periodically in a background goroutine.
func (c *SnapshotCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := make([]uuid.UUID, 0)
	for tenantID, entry := range c.entries {
		if entry.isExpired(c.ttl) {
			expired = append(expired, tenantID)
		}
	}
	for _, tenantID := range expired {
		c.removeEntry(tenantID)
	}
	return len(expired)
}

// StartCleanupWorker starts a background worker to periodically clean up expired entries
func (c *SnapshotCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}
