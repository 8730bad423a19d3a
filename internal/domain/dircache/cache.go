// Package dircache is a bounded read-through cache of talent directory
// entries keyed by id.
package dircache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/pkg/metrics"
)

// Loader fetches an entry on a cache miss.
type Loader func(ctx context.Context, id string) (model.TalentApplication, error)

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

type entry struct {
	id  string
	app model.TalentApplication
}

// Cache keeps at most maxSize entries and evicts the least recently used.
type Cache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	maxSize int
	load    Loader

	// gen is bumped by every invalidation so a load that started before it
	// does not put stale data back. Loads racing any invalidation are
	// returned but not cached.
	gen    uint64
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache backed by load.
func New(load Loader, opts ...Option) *Cache {
	c := &Cache{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
		load:    load,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for id, loading it on a miss. Loader errors are
// returned unchanged and nothing is cached.
func (c *Cache) Get(ctx context.Context, id string) (model.TalentApplication, error) {
	c.mu.Lock()
	if el, ok := c.items[id]; ok {
		c.order.MoveToFront(el)
		app := el.Value.(*entry).app.Clone()
		c.mu.Unlock()
		c.hits.Add(1)
		metrics.RecordCacheHit()
		return app, nil
	}
	gen := c.gen
	c.mu.Unlock()

	c.misses.Add(1)
	metrics.RecordCacheMiss()
	if c.load == nil {
		return model.TalentApplication{}, errors.New("dircache: no loader")
	}
	app, err := c.load(ctx, id)
	if err != nil {
		return model.TalentApplication{}, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.putLocked(app)
	}
	c.mu.Unlock()
	return app.Clone(), nil
}

// Put stores app, replacing any entry with the same id.
func (c *Cache) Put(app model.TalentApplication) {
	c.mu.Lock()
	c.putLocked(app)
	c.mu.Unlock()
}

func (c *Cache) putLocked(app model.TalentApplication) {
	if c.maxSize <= 0 {
		return
	}
	if el, ok := c.items[app.ID]; ok {
		el.Value.(*entry).app = app.Clone()
		c.order.MoveToFront(el)
		return
	}
	for c.order.Len() >= c.maxSize {
		c.evictOldest()
	}
	c.items[app.ID] = c.order.PushFront(&entry{id: app.ID, app: app.Clone()})
	metrics.UpdateCacheSize(c.order.Len())
}

// evictOldest must be called with c.mu held.
func (c *Cache) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).id)
}

// Invalidate drops id. A load of id already in flight is not cached.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if el, ok := c.items[id]; ok {
		c.order.Remove(el)
		delete(c.items, id)
		metrics.UpdateCacheSize(c.order.Len())
	}
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.gen++
	metrics.UpdateCacheSize(0)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
