package rules

import (
	"landed-cost/core/graph"
	"landed-cost/internal/errors"
)

// Scheduler holds a validated rule set and its execution order
type Scheduler struct {
	byID  map[ID]Rule
	order []ID
}

// NewScheduler indexes rules, links each declared dependency to its
// dependent and rejects unknown ids, duplicates and cycles.
func NewScheduler(rules []Rule) (*Scheduler, error) {
	byID := make(map[ID]Rule, len(rules))
	g := graph.New[ID, struct{}]()

	for _, r := range rules {
		h := r.Head()
		if h.ID == "" {
			return nil, errors.Input("rule with empty id")
		}
		if _, dup := byID[h.ID]; dup {
			return nil, errors.Newf(errors.TypeConfig, "duplicate rule id %s", h.ID)
		}
		byID[h.ID] = r
		g.AddNode(h.ID)
	}
	for _, r := range rules {
		h := r.Head()
		for _, dep := range h.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, errors.Newf(errors.TypeConfig, "rule %s depends on unknown rule %s", h.ID, dep)
			}
			g.AddEdge(dep, h.ID, struct{}{})
		}
	}

	if cycles := g.DetectCycles(); len(cycles) > 0 {
		return nil, errors.Config("rule dependencies contain a cycle", &graph.CycleError[ID]{Cycles: cycles}).
			WithContext("chain", graph.FormatCycle(cycles[0]))
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	return &Scheduler{byID: byID, order: order}, nil
}

// ExecutionOrder returns rule ids with every dependency before its
// dependents
func (s *Scheduler) ExecutionOrder() []ID {
	out := make([]ID, len(s.order))
	copy(out, s.order)
	return out
}

// ParallelGroups partitions the execution order into waves. Each pass
// takes every not-yet-placed rule whose dependencies were all placed in
// earlier waves.
func (s *Scheduler) ParallelGroups() [][]ID {
	executed := make(map[ID]bool, len(s.order))
	var waves [][]ID

	for len(executed) < len(s.order) {
		var wave []ID
		for _, id := range s.order {
			if executed[id] {
				continue
			}
			ready := true
			for _, dep := range s.byID[id].Head().Dependencies {
				if !executed[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			break
		}
		for _, id := range wave {
			executed[id] = true
		}
		waves = append(waves, wave)
	}
	return waves
}

// Rule returns the rule with the given id
func (s *Scheduler) Rule(id ID) (Rule, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// Rules returns the rules in execution order
func (s *Scheduler) Rules() []Rule {
	out := make([]Rule, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Deferred returns the weighted-average and variance rules in execution
// order; they run as separate passes after all waves.
func (s *Scheduler) Deferred() []Rule {
	var out []Rule
	for _, r := range s.Rules() {
		if r.Kind().Deferred() {
			out = append(out, r)
		}
	}
	return out
}

// RoyaltyRules returns the transfer-royalty rules in execution order
func (s *Scheduler) RoyaltyRules() []Rule {
	var out []Rule
	for _, r := range s.Rules() {
		if r.Kind() == KindTransferRoyalty {
			out = append(out, r)
		}
	}
	return out
}
