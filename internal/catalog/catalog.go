// Package catalog holds the gateway's live, in-memory tool map: a flat
// dictionary from tool name to descriptor. It is the only in-memory graph
// the gateway keeps — every other cross-entity relationship lives
// in the Persistent Store as id references. The catalog itself is a derived
// projection, rebuildable at any time from store.ListTools.
package catalog

import (
	"sort"
	"sync"

	"github.com/forgemcp/gateway/pkg/models"
)

// Catalog is a concurrency-safe name -> descriptor map. Writers (provider
// connect/disconnect, bootstrap) are serialized against each other; readers
// (list, call lookup) take a read lock and never block one another.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]*models.ToolDescriptor
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{tools: make(map[string]*models.ToolDescriptor)}
}

// Put inserts or overwrites the descriptor keyed by its name.
func (c *Catalog) Put(t *models.ToolDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[t.Name] = t
}

// Remove deletes the descriptor for name. No-op if absent.
func (c *Catalog) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tools, name)
}

// RemoveByProvider deletes every descriptor whose ProviderID matches and
// reports the removed names, so the caller can also evict them from the
// BM25 index.
func (c *Catalog) RemoveByProvider(providerID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed []string
	for name, t := range c.tools {
		if t.ProviderID == providerID {
			delete(c.tools, name)
			removed = append(removed, name)
		}
	}
	return removed
}

// Get implements loader.Catalog.
func (c *Catalog) Get(name string) (*models.ToolDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[name]
	return t, ok
}

// Len implements loader.Catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}

// All implements loader.Catalog, returning a name-sorted snapshot.
func (c *Catalog) All() []*models.ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.ToolDescriptor, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
