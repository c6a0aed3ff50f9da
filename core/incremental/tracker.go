// Package incremental tracks which cost records derive from which, so a
// change to one input recomputes only what depends on it.
package incremental

import (
	"sync"

	"landed-cost/core/determinism"
	"landed-cost/core/types"
)

// Tracker is an append-only dependency map plus a dirty set
type Tracker struct {
	mu         sync.Mutex
	dependents map[types.CostKey]map[types.CostKey]struct{}
	dirty      map[types.CostKey]struct{}
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		dependents: make(map[types.CostKey]map[types.CostKey]struct{}),
		dirty:      make(map[types.CostKey]struct{}),
	}
}

// RegisterDependency records that dependent was derived from source
func (t *Tracker) RegisterDependency(source, dependent types.CostKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.dependents[source]
	if !ok {
		set = make(map[types.CostKey]struct{})
		t.dependents[source] = set
	}
	set[dependent] = struct{}{}
}

// MarkDirty marks key and everything transitively derived from it.
// Registrations must be acyclic; there is no cycle guard.
func (t *Tracker) MarkDirty(key types.CostKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markDirty(key)
}

func (t *Tracker) markDirty(key types.CostKey) {
	t.dirty[key] = struct{}{}
	for dep := range t.dependents[key] {
		t.markDirty(dep)
	}
}

// DrainDirty returns the dirty keys in canonical order and clears the set
func (t *Tracker) DrainDirty() []types.CostKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.CostKey, 0, len(t.dirty))
	for k := range t.dirty {
		out = append(out, k)
	}
	t.dirty = make(map[types.CostKey]struct{})
	determinism.SortCostKeys(out)
	return out
}

// Dependents returns the direct dependents of key in canonical order
func (t *Tracker) Dependents(key types.CostKey) []types.CostKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.CostKey, 0, len(t.dependents[key]))
	for k := range t.dependents[key] {
		out = append(out, k)
	}
	determinism.SortCostKeys(out)
	return out
}

// Reset forgets all registrations and dirty marks, starting a new
// calculation session
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dependents = make(map[types.CostKey]map[types.CostKey]struct{})
	t.dirty = make(map[types.CostKey]struct{})
}

// Clone returns an independent copy
func (t *Tracker) Clone() *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := NewTracker()
	for src, set := range t.dependents {
		cs := make(map[types.CostKey]struct{}, len(set))
		for k := range set {
			cs[k] = struct{}{}
		}
		c.dependents[src] = cs
	}
	for k := range t.dirty {
		c.dirty[k] = struct{}{}
	}
	return c
}
