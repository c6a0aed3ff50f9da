// Package bom explodes recursive bills of materials.
//
// The engine validates the BOM once at construction (quantities, scrap
// rates, acyclicity) and then serves a leaf-first processing order,
// memoized explosions and flattened raw-material requirements.
package bom

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"landed-cost/core/determinism"
	"landed-cost/core/graph"
	"landed-cost/core/types"
	"landed-cost/internal/errors"
	"landed-cost/internal/logging"
)

// ExplodedComponent is one component of an exploded product
type ExplodedComponent struct {
	Component         types.Component `json:"component"`
	EffectiveQuantity decimal.Decimal `json:"effective_quantity"`
	Child             *ExplodedNode   `json:"child"`
}

// ExplodedNode is the immutable explosion of one product. Nodes are
// shared between parents, so callers must not modify them.
type ExplodedNode struct {
	ProductID     types.ProductID     `json:"product_id"`
	IsRawMaterial bool                `json:"is_raw_material"`
	Components    []ExplodedComponent `json:"components,omitempty"`
}

// Stats reports explosion cache activity
type Stats struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
}

// Engine owns a validated BOM and its explosion cache
type Engine struct {
	entries     map[types.ProductID]types.BOMEntry
	parents     map[types.ProductID][]types.ProductID
	order       []types.ProductID
	fingerprint determinism.ContentHash

	mu    sync.Mutex
	cache map[types.ProductID]*ExplodedNode
	stats Stats
}

// New validates entries and builds the engine. Invalid quantities or
// scrap rates are invariant violations; any cycle is a configuration
// error naming the offending chain.
func New(entries []types.BOMEntry) (*Engine, error) {
	e := &Engine{cache: make(map[types.ProductID]*ExplodedNode)}
	if err := e.load(entries); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) load(entries []types.BOMEntry) error {
	index := make(map[types.ProductID]types.BOMEntry, len(entries))
	g := graph.New[types.ProductID, types.Component]()
	parents := make(map[types.ProductID][]types.ProductID)

	for _, entry := range entries {
		if entry.ProductID == "" {
			return errors.Input("bom entry with empty product id")
		}
		if _, dup := index[entry.ProductID]; dup {
			return errors.Newf(errors.TypeInput, "duplicate bom entry for %s", entry.ProductID)
		}
		if err := validateEntry(entry); err != nil {
			return err
		}
		index[entry.ProductID] = entry
		g.AddNode(entry.ProductID)
	}
	for _, entry := range entries {
		for _, c := range entry.Components {
			g.AddEdge(entry.ProductID, c.ItemID, c)
			parents[c.ItemID] = appendUnique(parents[c.ItemID], entry.ProductID)
		}
	}

	if cycles := g.DetectCycles(); len(cycles) > 0 {
		return errors.Config("bom contains a circular reference", &graph.CycleError[types.ProductID]{Cycles: cycles}).
			WithContext("chain", graph.FormatCycle(cycles[0]))
	}

	sorted, err := g.TopologicalSort()
	if err != nil {
		return err
	}

	e.entries = index
	e.parents = parents
	e.order = graph.Reverse(sorted)
	e.fingerprint = fingerprint(entries)
	return nil
}

func validateEntry(entry types.BOMEntry) error {
	one := decimal.NewFromInt(1)
	for _, c := range entry.Components {
		if c.ItemID == "" {
			return errors.Newf(errors.TypeInput, "%s has a component with empty item id", entry.ProductID)
		}
		if !c.Quantity.IsPositive() {
			return errors.Invariant("component quantity must be positive").
				WithContext("product", string(entry.ProductID)).
				WithContext("item", string(c.ItemID))
		}
		if c.ScrapRate.IsNegative() || c.ScrapRate.GreaterThanOrEqual(one) {
			return errors.Invariant("scrap rate must be in [0,1)").
				WithContext("product", string(entry.ProductID)).
				WithContext("item", string(c.ItemID)).
				WithContext("scrap_rate", c.ScrapRate.String())
		}
	}
	return nil
}

// ExplosionOrder returns every product leaves-first: a product appears
// after all of its components.
func (e *Engine) ExplosionOrder() []types.ProductID {
	out := make([]types.ProductID, len(e.order))
	copy(out, e.order)
	return out
}

// Explode returns the memoized explosion of id. Products without an
// entry, or with no components, are raw materials.
func (e *Engine) Explode(id types.ProductID) (*ExplodedNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var stack inflight
	return e.explode(id, &stack)
}

func (e *Engine) explode(id types.ProductID, stack *inflight) (*ExplodedNode, error) {
	if node, ok := e.cache[id]; ok {
		e.stats.Hits++
		return node, nil
	}
	e.stats.Misses++

	entry, ok := e.entries[id]
	if !ok || entry.IsRawMaterial() {
		node := &ExplodedNode{ProductID: id, IsRawMaterial: true}
		e.cache[id] = node
		return node, nil
	}

	if err := stack.push(id); err != nil {
		return nil, err
	}
	defer stack.pop()

	node := &ExplodedNode{
		ProductID:  id,
		Components: make([]ExplodedComponent, 0, len(entry.Components)),
	}
	for _, c := range entry.Components {
		child, err := e.explode(c.ItemID, stack)
		if err != nil {
			return nil, err
		}
		node.Components = append(node.Components, ExplodedComponent{
			Component:         c,
			EffectiveQuantity: c.EffectiveQuantity(),
			Child:             child,
		})
	}
	e.cache[id] = node
	return node, nil
}

// FlattenMaterials returns the raw-material quantities needed for
// multiplier units of id, summed across every branch that uses them.
func (e *Engine) FlattenMaterials(id types.ProductID, multiplier decimal.Decimal) map[types.ProductID]decimal.Decimal {
	out := make(map[types.ProductID]decimal.Decimal)
	e.flatten(id, multiplier, out)
	return out
}

func (e *Engine) flatten(id types.ProductID, multiplier decimal.Decimal, out map[types.ProductID]decimal.Decimal) {
	entry, ok := e.entries[id]
	if !ok || entry.IsRawMaterial() {
		out[id] = out[id].Add(multiplier)
		return
	}
	for _, c := range entry.Components {
		e.flatten(c.ItemID, multiplier.Mul(c.EffectiveQuantity()), out)
	}
}

// Rebuild swaps in a new BOM structure. The explosion cache is dropped
// only when the structure actually changed.
func (e *Engine) Rebuild(entries []types.BOMEntry) (bool, error) {
	next := fingerprint(entries)

	e.mu.Lock()
	defer e.mu.Unlock()
	if next == e.fingerprint {
		return false, nil
	}
	if err := e.load(entries); err != nil {
		return false, err
	}
	e.cache = make(map[types.ProductID]*ExplodedNode)
	logging.Debug("bom structure changed, explosion cache cleared",
		zap.String("fingerprint", e.fingerprint.String()))
	return true, nil
}

// Fingerprint returns the structural hash of the BOM
func (e *Engine) Fingerprint() determinism.ContentHash {
	return e.fingerprint
}

// Stats returns cache hit and miss counts
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Entry returns the BOM entry of id
func (e *Engine) Entry(id types.ProductID) (types.BOMEntry, bool) {
	entry, ok := e.entries[id]
	return entry, ok
}

// IsRaw reports whether id has no components
func (e *Engine) IsRaw(id types.ProductID) bool {
	entry, ok := e.entries[id]
	return !ok || entry.IsRawMaterial()
}

// Parents returns the products that consume id directly
func (e *Engine) Parents(id types.ProductID) []types.ProductID {
	return e.parents[id]
}

// Roots returns the finished goods: assembled products no other product
// consumes, in explosion order.
func (e *Engine) Roots() []types.ProductID {
	var roots []types.ProductID
	for _, id := range e.order {
		if len(e.parents[id]) == 0 && !e.IsRaw(id) {
			roots = append(roots, id)
		}
	}
	return roots
}

// Entries returns the BOM entries in explosion order
func (e *Engine) Entries() []types.BOMEntry {
	out := make([]types.BOMEntry, 0, len(e.entries))
	for _, id := range e.order {
		if entry, ok := e.entries[id]; ok {
			out = append(out, entry)
		}
	}
	return out
}

func fingerprint(entries []types.BOMEntry) determinism.ContentHash {
	byID := make(map[string]types.BOMEntry, len(entries))
	for _, entry := range entries {
		byID[string(entry.ProductID)] = entry
	}
	var parts []string
	for _, id := range determinism.SortedKeys(byID) {
		parts = append(parts, "P", id)
		for _, c := range byID[id].Components {
			parts = append(parts, "C", string(c.ItemID), c.Quantity.String(), c.ScrapRate.String(), c.Unit)
		}
	}
	return determinism.HashParts(parts...)
}

func appendUnique(s []types.ProductID, id types.ProductID) []types.ProductID {
	for _, v := range s {
		if v == id {
			return s
		}
	}
	return append(s, id)
}
