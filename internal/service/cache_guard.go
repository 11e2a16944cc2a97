package service

import "sync"

// cacheGenerations counts invalidations per product so a cache fill that
// raced with a commit can tell its snapshot is stale. Invalidators bump
// before deleting and fillers check after writing, so either the filler sees
// the bump or the delete lands after the fill.
type cacheGenerations struct {
	mu   sync.Mutex
	gens map[int64]uint64
}

func newCacheGenerations() *cacheGenerations {
	return &cacheGenerations{gens: make(map[int64]uint64)}
}

func (g *cacheGenerations) current(id int64) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[id]
}

func (g *cacheGenerations) bump(ids ...int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		g.gens[id]++
	}
}
