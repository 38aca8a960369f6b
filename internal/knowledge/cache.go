package knowledge

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
)

// Cache is a process-wide, read-mostly cache of loaded packs, keyed by pack
// id. It is an explicitly constructed, injected component — there is no
// package-level instance.
//
// All methods are safe for concurrent use.
type Cache struct {
	dir string

	mu    sync.RWMutex
	packs map[string]*Pack
}

// NewCache creates a Cache that resolves pack ids to "<dir>/<id>.yaml".
func NewCache(dir string) *Cache {
	return &Cache{
		dir:   dir,
		packs: make(map[string]*Pack),
	}
}

// Load returns the pack with the given id, loading it from disk on first use.
// Subsequent calls return the same immutable snapshot.
func (c *Cache) Load(id string) (*Pack, error) {
	if id == "" {
		return nil, fmt.Errorf("knowledge: pack id must not be empty")
	}

	c.mu.RLock()
	p, ok := c.packs[id]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-check under the write lock; another goroutine may have loaded it.
	if p, ok := c.packs[id]; ok {
		return p, nil
	}

	p, err := LoadPackFile(filepath.Join(c.dir, id+".yaml"))
	if err != nil {
		return nil, err
	}
	if p.ID != id {
		return nil, fmt.Errorf("knowledge: pack file %q declares id %q", id, p.ID)
	}

	c.packs[id] = p
	slog.Info("knowledge pack loaded",
		"pack_id", id,
		"snippets", len(p.Snippets),
		"locations", len(p.Locations),
		"npcs", len(p.NPCs),
	)
	return p, nil
}

// Reload re-reads the pack from disk and replaces the cached snapshot.
// Sessions holding the old snapshot keep it; new sessions see the fresh one.
func (c *Cache) Reload(id string) (*Pack, error) {
	p, err := LoadPackFile(filepath.Join(c.dir, id+".yaml"))
	if err != nil {
		return nil, err
	}
	if p.ID != id {
		return nil, fmt.Errorf("knowledge: pack file %q declares id %q", id, p.ID)
	}

	c.mu.Lock()
	c.packs[id] = p
	c.mu.Unlock()

	slog.Info("knowledge pack reloaded", "pack_id", id, "snippets", len(p.Snippets))
	return p, nil
}

// ListAvailable returns the pack ids discoverable in the cache's directory,
// whether or not they are currently loaded.
func (c *Cache) ListAvailable() ([]string, error) {
	return DiscoverPacks(c.dir)
}
