// Package lookup holds the raw period inputs the engine reads: unit costs,
// labor and production volumes.
package lookup

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"landed-cost/core/types"
)

// UnitCost is a per-unit price of an item at an entity for a period
type UnitCost struct {
	Unit     decimal.Decimal `json:"unit_cost"`
	Currency types.Currency  `json:"currency"`
}

// Labor is the direct labor content of one unit
type Labor struct {
	Hours    decimal.Decimal `json:"hours"`
	Rate     decimal.Decimal `json:"rate"`
	Currency types.Currency  `json:"currency"`
}

// Cost returns hours times rate
func (l Labor) Cost() decimal.Decimal {
	return l.Hours.Mul(l.Rate)
}

// Source answers period lookups. A missing entry is ok=false, not an error.
type Source interface {
	Cost(item types.ProductID, entity types.EntityID, period types.Period) (UnitCost, bool)
	Labor(product types.ProductID, entity types.EntityID, period types.Period) (Labor, bool)
	Volume(product types.ProductID, entity types.EntityID, period types.Period) (decimal.Decimal, bool)
}

type key struct {
	product types.ProductID
	entity  types.EntityID
	period  types.Period
}

// Table is an in-memory Source
type Table struct {
	mu      sync.RWMutex
	costs   map[key]UnitCost
	labor   map[key]Labor
	volumes map[key]decimal.Decimal
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{
		costs:   make(map[key]UnitCost),
		labor:   make(map[key]Labor),
		volumes: make(map[key]decimal.Decimal),
	}
}

// SetCost stores a unit cost
func (t *Table) SetCost(item types.ProductID, entity types.EntityID, period types.Period, c UnitCost) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.costs[key{item, entity, period}] = c
}

// SetLabor stores labor content
func (t *Table) SetLabor(product types.ProductID, entity types.EntityID, period types.Period, l Labor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.labor[key{product, entity, period}] = l
}

// SetVolume stores a production volume
func (t *Table) SetVolume(product types.ProductID, entity types.EntityID, period types.Period, units decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.volumes[key{product, entity, period}] = units
}

// Cost implements Source
func (t *Table) Cost(item types.ProductID, entity types.EntityID, period types.Period) (UnitCost, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.costs[key{item, entity, period}]
	return c, ok
}

// Labor implements Source
func (t *Table) Labor(product types.ProductID, entity types.EntityID, period types.Period) (Labor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.labor[key{product, entity, period}]
	return l, ok
}

// Volume implements Source
func (t *Table) Volume(product types.ProductID, entity types.EntityID, period types.Period) (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.volumes[key{product, entity, period}]
	return v, ok
}

// Periods returns every period that appears in the table, sorted
func (t *Table) Periods() []types.Period {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := make(map[types.Period]struct{})
	for k := range t.costs {
		seen[k.period] = struct{}{}
	}
	for k := range t.labor {
		seen[k.period] = struct{}{}
	}
	for k := range t.volumes {
		seen[k.period] = struct{}{}
	}
	out := make([]types.Period, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// VolumesAt returns the volume of every product made at entity in period
func (t *Table) VolumesAt(entity types.EntityID, period types.Period) map[types.ProductID]decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[types.ProductID]decimal.Decimal)
	for k, v := range t.volumes {
		if k.entity == entity && k.period == period {
			out[k.product] = v
		}
	}
	return out
}

// Len returns the number of cost, labor and volume entries
func (t *Table) Len() (costs, labor, volumes int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.costs), len(t.labor), len(t.volumes)
}

// Clone returns an independent copy
func (t *Table) Clone() *Table {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := NewTable()
	for k, v := range t.costs {
		c.costs[k] = v
	}
	for k, v := range t.labor {
		c.labor[k] = v
	}
	for k, v := range t.volumes {
		c.volumes[k] = v
	}
	return c
}

// Merge copies every entry of other into t
func (t *Table) Merge(other *Table) {
	src := other.Clone()
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range src.costs {
		t.costs[k] = v
	}
	for k, v := range src.labor {
		t.labor[k] = v
	}
	for k, v := range src.volumes {
		t.volumes[k] = v
	}
}

// EachCost calls fn for every unit cost
func (t *Table) EachCost(fn func(item types.ProductID, entity types.EntityID, period types.Period, c UnitCost) error) error {
	src := t.Clone()
	for k, v := range src.costs {
		if err := fn(k.product, k.entity, k.period, v); err != nil {
			return err
		}
	}
	return nil
}

// EachLabor calls fn for every labor entry
func (t *Table) EachLabor(fn func(product types.ProductID, entity types.EntityID, period types.Period, l Labor) error) error {
	src := t.Clone()
	for k, v := range src.labor {
		if err := fn(k.product, k.entity, k.period, v); err != nil {
			return err
		}
	}
	return nil
}

// EachVolume calls fn for every production volume
func (t *Table) EachVolume(fn func(product types.ProductID, entity types.EntityID, period types.Period, units decimal.Decimal) error) error {
	src := t.Clone()
	for k, v := range src.volumes {
		if err := fn(k.product, k.entity, k.period, v); err != nil {
			return err
		}
	}
	return nil
}
