package kv

import "sync"

// Cache is a read/write-protected map keyed by raw bytes, storing
// decoded values of a single type. The chain index keeps one Cache per
// entity kind (headers, bodies, details, ...); it doubles as both the
// "live cache" queried by reads and the cache manager's eviction target
// (§4.4, §4.5.1) — evicting a key here only drops the cached copy, never
// the durable record.
type Cache struct {
	mu sync.RWMutex
	m  map[string]interface{}
}

func NewCache() *Cache {
	return &Cache{m: make(map[string]interface{})}
}

func (c *Cache) Get(key []byte) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[string(key)]
	return v, ok
}

func (c *Cache) Set(key []byte, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[string(key)] = v
}

func (c *Cache) Delete(key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, string(key))
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
