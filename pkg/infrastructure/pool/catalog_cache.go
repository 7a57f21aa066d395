package pool

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TFMV/dwgate/pkg/models"
)

// CatalogKey identifies one introspection result.
type CatalogKey struct {
	Instance string
	Schema   string
}

// entry holds bookkeeping for one cached catalog.
type entry struct {
	key       CatalogKey
	schemas   []models.Schema
	createdAt time.Time
	hits      atomic.Int64
}

// CatalogCache is an LRU cache of schema introspection results with a TTL.
// Entries older than the TTL are treated as misses and dropped.
type CatalogCache struct {
	cap int
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	lru   *list.List // front = most recent
	items map[CatalogKey]*list.Element

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCatalogCache returns a cache holding at most max entries for ttl each.
// A non-positive ttl disables expiry.
func NewCatalogCache(max int, ttl time.Duration) *CatalogCache {
	if max <= 0 {
		max = 100
	}
	return &CatalogCache{
		cap:   max,
		ttl:   ttl,
		now:   time.Now,
		lru:   list.New(),
		items: make(map[CatalogKey]*list.Element, max),
	}
}

// Get returns the cached schemas for key if present and fresh.
func (c *CatalogCache) Get(key CatalogKey) ([]models.Schema, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ele, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	e := ele.Value.(*entry)
	if c.expired(e) {
		c.remove(ele)
		c.misses.Add(1)
		return nil, false
	}

	c.lru.MoveToFront(ele)
	e.hits.Add(1)
	c.hits.Add(1)
	return e.schemas, true
}

// Put stores schemas under key, replacing any previous value.
func (c *CatalogCache) Put(key CatalogKey, schemas []models.Schema) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.items[key]; ok {
		c.remove(ele)
	}

	e := &entry{
		key:       key,
		schemas:   schemas,
		createdAt: c.now(),
	}
	c.items[key] = c.lru.PushFront(e)

	if len(c.items) > c.cap {
		c.remove(c.lru.Back())
	}
}

// Invalidate drops every entry for instance.
func (c *CatalogCache) Invalidate(instance string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, ele := range c.items {
		if key.Instance == instance {
			c.remove(ele)
		}
	}
}

// Clear empties the cache.
func (c *CatalogCache) Clear() {
	c.mu.Lock()
	c.lru.Init()
	c.items = make(map[CatalogKey]*list.Element, c.cap)
	c.mu.Unlock()
}

// Size returns the current number of cached entries.
func (c *CatalogCache) Size() int {
	c.mu.Lock()
	n := len(c.items)
	c.mu.Unlock()
	return n
}

func (c *CatalogCache) expired(e *entry) bool {
	return c.ttl > 0 && c.now().Sub(e.createdAt) > c.ttl
}

// remove unlinks ele (caller holds the lock).
func (c *CatalogCache) remove(ele *list.Element) {
	if ele == nil {
		return
	}
	c.lru.Remove(ele)
	delete(c.items, ele.Value.(*entry).key)
}

// CacheStats contains live statistics.
type CacheStats struct {
	Size      int           `json:"size"`
	Cap       int           `json:"cap"`
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	OldestAge time.Duration `json:"oldest_age"`
}

// Stats gathers statistics (O(n), called rarely).
func (c *CatalogCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var oldest time.Time
	for e := c.lru.Back(); e != nil; e = e.Prev() {
		ent := e.Value.(*entry)
		if oldest.IsZero() || ent.createdAt.Before(oldest) {
			oldest = ent.createdAt
		}
	}

	age := time.Duration(0)
	if !oldest.IsZero() {
		age = c.now().Sub(oldest)
	}
	return CacheStats{
		Size:      len(c.items),
		Cap:       c.cap,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		OldestAge: age,
	}
}
