// Package model is the complete input of a landed-cost calculation: the
// entity network, the BOM, the allocation rules and the period tables.
package model

import (
	"slices"

	"landed-cost/core/currency"
	"landed-cost/core/lookup"
	"landed-cost/core/rules"
	"landed-cost/core/types"
	"landed-cost/internal/errors"
)

// Model is what the loaders produce and the engine consumes
type Model struct {
	Entities []types.Entity
	Routes   []types.Route
	BOM      []types.BOMEntry
	Rules    []rules.Rule

	Costs *lookup.Table
	Rates *currency.Table

	// Periods to calculate; when empty every period present in Costs is used
	Periods []types.Period

	// Sources lists the files or databases the model was read from
	Sources []string
}

// New creates an empty model with initialized tables
func New() *Model {
	return &Model{
		Costs: lookup.NewTable(),
		Rates: currency.NewTable(),
	}
}

// Entity returns a declared entity
func (m *Model) Entity(id types.EntityID) (types.Entity, bool) {
	for _, e := range m.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return types.Entity{}, false
}

// CalculationPeriods returns the periods to calculate, sorted
func (m *Model) CalculationPeriods() []types.Period {
	if len(m.Periods) > 0 {
		out := slices.Clone(m.Periods)
		slices.Sort(out)
		return slices.Compact(out)
	}
	if m.Costs == nil {
		return nil
	}
	return m.Costs.Periods()
}

// Merge appends the definitions of other. Table entries in other
// overwrite entries with the same key.
func (m *Model) Merge(other *Model) {
	m.Entities = append(m.Entities, other.Entities...)
	m.Routes = append(m.Routes, other.Routes...)
	m.BOM = append(m.BOM, other.BOM...)
	m.Rules = append(m.Rules, other.Rules...)
	m.Periods = append(m.Periods, other.Periods...)
	m.Sources = append(m.Sources, other.Sources...)
	if other.Costs != nil {
		m.Costs.Merge(other.Costs)
	}
	if other.Rates != nil {
		m.Rates.Merge(other.Rates)
	}
}

// Validate checks the cross-references between sections. Structural
// checks (BOM cycles, rule dependencies, route endpoints) are left to the
// components that own them.
func (m *Model) Validate() error {
	if len(m.Entities) == 0 {
		return errors.Input("model declares no entities")
	}
	if len(m.BOM) == 0 {
		return errors.Input("model declares no products")
	}
	for _, e := range m.Entities {
		if e.Currency == "" {
			return errors.Newf(errors.TypeInput, "entity %s has no currency", e.ID)
		}
	}
	for _, r := range m.Rules {
		h := r.Head()
		for _, id := range h.Entities {
			if _, ok := m.Entity(id); !ok {
				return errors.Newf(errors.TypeInput, "rule %s is scoped to unknown entity %s", h.ID, id)
			}
		}
	}
	for _, p := range m.Periods {
		if _, err := types.ParsePeriod(string(p)); err != nil {
			return errors.Wrap(errors.TypeInput, "invalid calculation period", err)
		}
	}
	return nil
}
