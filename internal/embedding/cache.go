package embedding

import (
	"sync"
)

// Cache is a bounded embedding cache with FIFO eviction. Keys are
// content hashes, so lookups are exact rather than semantic.
type Cache struct {
	entries map[string][]float32
	order   []string
	maxSize int
	mu      sync.RWMutex
}

// NewCache creates a cache holding at most maxSize embeddings.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Cache{
		entries: make(map[string][]float32, maxSize),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves an embedding from the cache.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	emb, ok := c.entries[key]
	return emb, ok
}

// Set stores an embedding, evicting the oldest entry when full.
func (c *Cache) Set(key string, embedding []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = embedding
		return
	}

	if len(c.entries) >= c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = embedding
	c.order = append(c.order, key)
}

// Size returns the current cache size.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every cached embedding.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]float32, c.maxSize)
	c.order = c.order[:0]
}
