// Package transfer prices goods moved between legal entities and picks the
// cheapest route from any manufacturing entity to a destination.
package transfer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"landed-cost/core/graph"
	"landed-cost/core/types"
	"landed-cost/internal/errors"
	"landed-cost/internal/logging"
)

// DutyTable maps a destination country to a flat customs duty rate.
// It is a first-match table, not a tariff schedule.
type DutyTable struct {
	Default   decimal.Decimal
	ByCountry map[string]decimal.Decimal
}

// DefaultDutyTable returns US 2.5%, DE 4% and 3% elsewhere
func DefaultDutyTable() DutyTable {
	return DutyTable{
		Default: decimal.RequireFromString("0.03"),
		ByCountry: map[string]decimal.Decimal{
			"US": decimal.RequireFromString("0.025"),
			"DE": decimal.RequireFromString("0.04"),
		},
	}
}

// Rate returns the duty rate for a destination country
func (d DutyTable) Rate(country string) decimal.Decimal {
	if r, ok := d.ByCountry[strings.ToUpper(country)]; ok {
		return r
	}
	return d.Default
}

// CostFunc returns the base cost of a product at a source entity, already
// expressed in the currency used for comparison
type CostFunc func(product types.ProductID, entity types.EntityID, period types.Period) (decimal.Decimal, bool)

// Hop is one step of a priced path
type Hop struct {
	Entity types.EntityID  `json:"entity"`
	Cost   decimal.Decimal `json:"cost"`
	Markup decimal.Decimal `json:"markup"`
	Duty   decimal.Decimal `json:"duty"`
}

// Selection is the cheapest priced path to a destination
type Selection struct {
	Product     types.ProductID `json:"product"`
	Destination types.EntityID  `json:"destination"`
	Period      types.Period    `json:"period"`
	Source      types.EntityID  `json:"source"`
	SourceCost  decimal.Decimal `json:"source_cost"`
	Hops        []Hop           `json:"hops"`
	Routes      []types.Route   `json:"routes"`
	Markup      decimal.Decimal `json:"markup"`
	Duty        decimal.Decimal `json:"duty"`
	FinalCost   decimal.Decimal `json:"final_cost"`
	Candidates  int             `json:"candidates"`
}

// Path returns the entity sequence of the selection
func (s Selection) Path() []types.EntityID {
	out := []types.EntityID{s.Source}
	for _, h := range s.Hops {
		out = append(out, h.Entity)
	}
	return out
}

// Option configures a Resolver
type Option func(*Resolver)

// WithMaxDepth bounds path enumeration
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithDuties replaces the duty table
func WithDuties(d DutyTable) Option {
	return func(r *Resolver) {
		r.duties = d
	}
}

// Resolver is built over the entity transfer multigraph
type Resolver struct {
	entities map[types.EntityID]types.Entity
	order    []types.EntityID
	graph    *graph.Graph[types.EntityID, types.Route]
	duties   DutyTable
	maxDepth int
}

// NewResolver indexes entities and routes. Routes naming an undeclared
// entity are rejected.
func NewResolver(entities []types.Entity, routes []types.Route, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		entities: make(map[types.EntityID]types.Entity, len(entities)),
		graph:    graph.New[types.EntityID, types.Route](),
		duties:   DefaultDutyTable(),
		maxDepth: graph.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, e := range entities {
		if e.ID == "" {
			return nil, errors.Input("entity with empty id")
		}
		if _, dup := r.entities[e.ID]; dup {
			return nil, errors.Newf(errors.TypeInput, "duplicate entity %s", e.ID)
		}
		r.entities[e.ID] = e
		r.order = append(r.order, e.ID)
		r.graph.AddNode(e.ID)
	}
	for i, rt := range routes {
		for _, id := range []types.EntityID{rt.From, rt.To} {
			if _, ok := r.entities[id]; !ok {
				return nil, errors.Newf(errors.TypeInput, "route %d references unknown entity %s", i, id).
					WithContext("from", string(rt.From)).
					WithContext("to", string(rt.To))
			}
		}
		r.graph.AddEdge(rt.From, rt.To, rt)
	}
	return r, nil
}

// Entity returns a declared entity
func (r *Resolver) Entity(id types.EntityID) (types.Entity, bool) {
	e, ok := r.entities[id]
	return e, ok
}

// Entities returns the entities in declaration order
func (r *Resolver) Entities() []types.Entity {
	out := make([]types.Entity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entities[id])
	}
	return out
}

// OfType returns the entities of one type in declaration order
func (r *Resolver) OfType(t types.EntityType) []types.Entity {
	var out []types.Entity
	for _, id := range r.order {
		if e := r.entities[id]; e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// RoutesFrom returns the outgoing routes of an entity in declaration order
func (r *Resolver) RoutesFrom(id types.EntityID) []types.Route {
	edges := r.graph.Neighbors(id)
	out := make([]types.Route, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.Meta)
	}
	return out
}

// FindPaths enumerates the bounded-depth paths between two entities
func (r *Resolver) FindPaths(from, to types.EntityID) []graph.Path[types.EntityID, types.Route] {
	return r.graph.FindAllPaths(from, to, r.maxDepth)
}

// Price walks a path from a starting cost, applying each hop's markup and
// any cross-border duty charged at the destination country's rate
func (r *Resolver) Price(path graph.Path[types.EntityID, types.Route], start decimal.Decimal) ([]Hop, decimal.Decimal) {
	cost := start
	hops := make([]Hop, 0, len(path.Edges))
	for _, e := range path.Edges {
		before := cost
		cost = applyMarkup(cost, e.Meta)
		hop := Hop{Entity: e.To, Markup: cost.Sub(before)}

		from, to := r.entities[e.From], r.entities[e.To]
		if !strings.EqualFold(from.Country, to.Country) {
			hop.Duty = cost.Mul(r.duties.Rate(to.Country))
			cost = cost.Add(hop.Duty)
		}
		hop.Cost = cost
		hops = append(hops, hop)
	}
	return hops, cost
}

// applyMarkup prices one hop. resale-minus uses (1 + v/2) as a linear
// stand-in for resale price minus margin; revenue-percent leaves the
// transfer cost unchanged.
func applyMarkup(cost decimal.Decimal, rt types.Route) decimal.Decimal {
	v := decimal.NewFromFloat(rt.MarkupValue)
	one := decimal.NewFromInt(1)
	switch rt.MarkupType {
	case types.MarkupCostPlus:
		return cost.Mul(one.Add(v))
	case types.MarkupResaleMinus:
		return cost.Mul(one.Add(v.Div(decimal.NewFromInt(2))))
	default:
		return cost
	}
}

// SelectBestPath prices every path from every manufacturing entity with a
// known base cost to dest and returns the global minimum. Ties keep the
// first candidate found. When no candidate exists the result is ok=false
// with a missing-path warning.
func (r *Resolver) SelectBestPath(product types.ProductID, dest types.EntityID, period types.Period, costs CostFunc) (Selection, bool, *types.Warning) {
	key := types.CostKey{Product: product, Entity: dest, Period: period}
	var (
		best       Selection
		found      bool
		candidates int
	)

	for _, src := range r.OfType(types.EntityManufacturing) {
		if src.ID == dest {
			continue
		}
		base, ok := costs(product, src.ID, period)
		if !ok {
			continue
		}
		for _, p := range r.FindPaths(src.ID, dest) {
			candidates++
			hops, final := r.Price(p, base)
			if found && final.GreaterThanOrEqual(best.FinalCost) {
				continue
			}
			best = Selection{
				Product:     product,
				Destination: dest,
				Period:      period,
				Source:      src.ID,
				SourceCost:  base,
				Hops:        hops,
				Routes:      routesOf(p),
				FinalCost:   final,
			}
			found = true
		}
	}

	if !found {
		w := &types.Warning{
			Kind:    types.WarnMissingPath,
			Key:     key,
			Message: fmt.Sprintf("no transfer path from any manufacturing entity to %s", dest),
		}
		logging.Warn("no transfer path", zap.String("key", key.String()))
		return Selection{}, false, w
	}

	for _, h := range best.Hops {
		best.Markup = best.Markup.Add(h.Markup)
		best.Duty = best.Duty.Add(h.Duty)
	}
	best.Candidates = candidates
	logging.Debug("transfer path selected",
		zap.String("key", key.String()),
		zap.String("source", string(best.Source)),
		zap.Int("hops", len(best.Hops)),
		zap.Int("candidates", candidates),
		zap.String("final_cost", best.FinalCost.String()))
	return best, true, nil
}

func routesOf(p graph.Path[types.EntityID, types.Route]) []types.Route {
	out := make([]types.Route, len(p.Edges))
	for i, e := range p.Edges {
		out[i] = e.Meta
	}
	return out
}
