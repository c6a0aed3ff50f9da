// Package engine sequences a landed-cost calculation: base cost in BOM
// order, allocation rules in dependency waves, royalty cycle resolution,
// deferred analytic passes and transfer pricing to distribution entities.
// The CLI is a thin wrapper around this package.
package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"landed-cost/core/audit"
	"landed-cost/core/bom"
	"landed-cost/core/currency"
	"landed-cost/core/cycle"
	"landed-cost/core/incremental"
	"landed-cost/core/lookup"
	"landed-cost/core/model"
	"landed-cost/core/rules"
	"landed-cost/core/transfer"
	"landed-cost/core/types"
	"landed-cost/internal/config"
	"landed-cost/internal/errors"
	"landed-cost/internal/logging"
	"landed-cost/internal/metrics"
)

// Options configures an Engine
type Options struct {
	// BaseCurrency is the currency transfer paths and thresholds are
	// compared in
	BaseCurrency types.Currency

	// Workers bounds the rule-wave worker pool
	Workers int

	// MaxPathDepth bounds transfer path enumeration
	MaxPathDepth int

	Cycle  cycle.Options
	Duties transfer.DutyTable

	// Strict escalates warnings into an error
	Strict bool

	// Audit receives every applied charge; defaults to a zap sink
	Audit audit.Sink

	// Metrics may be nil
	Metrics *metrics.Collector
}

// DefaultOptions returns the defaults of the default configuration
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

// OptionsFromConfig maps the engine section of the configuration
func OptionsFromConfig(cfg *config.Config) Options {
	ec := cfg.Engine
	duties := transfer.DutyTable{
		Default:   decimal.NewFromFloat(ec.DutyRates.Default),
		ByCountry: make(map[string]decimal.Decimal, len(ec.DutyRates.ByCountry)),
	}
	for country, rate := range ec.DutyRates.ByCountry {
		duties.ByCountry[strings.ToUpper(country)] = decimal.NewFromFloat(rate)
	}
	return Options{
		BaseCurrency: ec.BaseCurrency,
		Workers:      ec.Workers,
		MaxPathDepth: ec.MaxPathDepth,
		Cycle: cycle.Options{
			MaxIterations: ec.CycleMaxIterations,
			Tolerance:     decimal.NewFromFloat(ec.CycleTolerance),
		},
		Duties: duties,
		Strict: ec.Strict,
	}
}

// baseParts are the charges produced by base-cost calculation, kept apart
// from rule-derived charges so a base recompute can be applied as a delta
type baseParts struct {
	material decimal.Decimal
	labor    decimal.Decimal
}

func (b baseParts) total() decimal.Decimal {
	return b.material.Add(b.labor)
}

// state is everything a calculation mutates. What-if scenarios run on a
// clone of it.
type state struct {
	records   map[types.CostKey]*types.CostRecord
	base      map[types.CostKey]baseParts
	transfers map[types.CostKey]transfer.Selection
	cycles    map[types.CostKey]cycle.Result
	warnings  []types.Warning
	tracker   *incremental.Tracker
	costs     *lookup.Table
	rates     *currency.Table
}

func newState(costs *lookup.Table, rates *currency.Table) *state {
	return &state{
		records:   make(map[types.CostKey]*types.CostRecord),
		base:      make(map[types.CostKey]baseParts),
		transfers: make(map[types.CostKey]transfer.Selection),
		cycles:    make(map[types.CostKey]cycle.Result),
		tracker:   incremental.NewTracker(),
		costs:     costs,
		rates:     rates,
	}
}

func (s *state) clone() *state {
	c := newState(s.costs.Clone(), s.rates.Clone())
	for k, r := range s.records {
		c.records[k] = r.Clone()
	}
	for k, b := range s.base {
		c.base[k] = b
	}
	for k, t := range s.transfers {
		c.transfers[k] = t
	}
	for k, r := range s.cycles {
		c.cycles[k] = r
	}
	c.warnings = append(c.warnings, s.warnings...)
	c.tracker = s.tracker.Clone()
	return c
}

// reset clears calculated values and keeps the input tables
func (s *state) reset() {
	fresh := newState(s.costs, s.rates)
	*s = *fresh
}

// Engine is the primary API for landed-cost calculation
type Engine struct {
	opts Options

	bom       *bom.Engine
	scheduler *rules.Scheduler
	transfer  *transfer.Resolver

	entities      map[types.EntityID]types.Entity
	manufacturing []types.Entity
	distribution  []types.Entity
	routesFrom    map[types.EntityID][]types.Route
	periods       []types.Period

	audit   audit.Sink
	metrics *metrics.Collector
	log     *zap.Logger

	// run serializes entry points that mutate state
	run   sync.Mutex
	phase Phase
	st    *state
	last  *Result

	// wmu guards st.warnings while waves run
	wmu sync.Mutex
}

// New validates the model and builds the BOM, rule and transfer
// structures. Configuration errors (cycles, unknown references) abort
// here, before any cost is computed.
func New(m *model.Model, opts Options) (*Engine, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	def := DefaultOptions()
	if opts.BaseCurrency == "" {
		opts.BaseCurrency = def.BaseCurrency
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.MaxPathDepth <= 0 {
		opts.MaxPathDepth = def.MaxPathDepth
	}
	if opts.Duties.ByCountry == nil && opts.Duties.Default.IsZero() {
		opts.Duties = transfer.DefaultDutyTable()
	}

	bomEngine, err := bom.New(m.BOM)
	if err != nil {
		return nil, err
	}
	scheduler, err := rules.NewScheduler(m.Rules)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:       opts,
		bom:        bomEngine,
		scheduler:  scheduler,
		entities:   make(map[types.EntityID]types.Entity, len(m.Entities)),
		routesFrom: make(map[types.EntityID][]types.Route),
		periods:    m.CalculationPeriods(),
		audit:      opts.Audit,
		metrics:    opts.Metrics,
		log:        logging.Named("engine"),
	}
	if len(e.periods) == 0 {
		return nil, errors.Input("model has no calculation periods and no period costs")
	}
	if e.audit == nil {
		e.audit = audit.NewZapSink(logging.Logger)
	}

	for _, ent := range m.Entities {
		e.entities[ent.ID] = ent
		switch ent.Type {
		case types.EntityManufacturing:
			e.manufacturing = append(e.manufacturing, ent)
		case types.EntityDistribution:
			e.distribution = append(e.distribution, ent)
		}
	}

	// goods move on untagged routes and on routes tagged finished-goods;
	// the rest carry royalty and fee relationships only
	var goods []types.Route
	for _, rt := range m.Routes {
		e.routesFrom[rt.From] = append(e.routesFrom[rt.From], rt)
		if len(rt.ItemTypes) == 0 || rt.Carries(types.ItemFinishedGoods) {
			goods = append(goods, rt)
		}
	}
	e.transfer, err = transfer.NewResolver(m.Entities, goods,
		transfer.WithMaxDepth(opts.MaxPathDepth),
		transfer.WithDuties(opts.Duties))
	if err != nil {
		return nil, err
	}

	costs, rates := m.Costs, m.Rates
	if costs == nil {
		costs = lookup.NewTable()
	}
	if rates == nil {
		rates = currency.NewTable()
	}
	e.st = newState(costs, rates)

	e.log.Info("engine ready",
		zap.Int("products", len(m.BOM)),
		zap.Int("entities", len(m.Entities)),
		zap.Int("routes", len(m.Routes)),
		zap.Int("rules", len(m.Rules)),
		zap.Int("periods", len(e.periods)),
		zap.String("bom_fingerprint", bomEngine.Fingerprint().Hex()))
	return e, nil
}

// ExplosionOrder returns products leaves first
func (e *Engine) ExplosionOrder() []types.ProductID {
	return e.bom.ExplosionOrder()
}

// Explode returns the memoized explosion of a product
func (e *Engine) Explode(id types.ProductID) (*bom.ExplodedNode, error) {
	return e.bom.Explode(id)
}

// FlattenMaterials returns raw material quantities for multiplier units
func (e *Engine) FlattenMaterials(id types.ProductID, multiplier decimal.Decimal) map[types.ProductID]decimal.Decimal {
	return e.bom.FlattenMaterials(id, multiplier)
}

// ExecutionOrder returns rule ids dependencies first
func (e *Engine) ExecutionOrder() []rules.ID {
	return e.scheduler.ExecutionOrder()
}

// ParallelGroups returns the rule waves
func (e *Engine) ParallelGroups() [][]rules.ID {
	return e.scheduler.ParallelGroups()
}

// Periods returns the calculation periods
func (e *Engine) Periods() []types.Period {
	return append([]types.Period(nil), e.periods...)
}

// Phase returns the furthest completed phase
func (e *Engine) Phase() Phase {
	e.run.Lock()
	defer e.run.Unlock()
	return e.phase
}

// Record returns a copy of the current record for key
func (e *Engine) Record(key types.CostKey) (*types.CostRecord, bool) {
	e.run.Lock()
	defer e.run.Unlock()
	rec, ok := e.st.records[key]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// UpdateBOM replaces the BOM structure. A structural change discards the
// explosion cache and requires a full Calculate.
func (e *Engine) UpdateBOM(entries []types.BOMEntry) (bool, error) {
	e.run.Lock()
	defer e.run.Unlock()
	changed, err := e.bom.Rebuild(entries)
	if err != nil {
		return false, err
	}
	if changed {
		e.phase = PhaseUninitialized
	}
	return changed, nil
}

func (e *Engine) currencyOf(id types.EntityID) types.Currency {
	if ent, ok := e.entities[id]; ok && ent.Currency != "" {
		return ent.Currency
	}
	return e.opts.BaseCurrency
}

// warn records a warning; safe to call from wave workers
func (e *Engine) warn(w types.Warning) {
	e.wmu.Lock()
	e.st.warnings = append(e.st.warnings, w)
	e.wmu.Unlock()
	e.metrics.Warning(string(w.Kind))
	e.log.Debug("warning", zap.String("kind", string(w.Kind)), zap.String("key", w.Key.String()), zap.String("message", w.Message))
}

// convert converts amount for key's period; a missing rate is a warning
// and a zero contribution
func (e *Engine) convert(key types.CostKey, amount decimal.Decimal, from, to types.Currency) (decimal.Decimal, bool) {
	if from == "" {
		from = e.opts.BaseCurrency
	}
	v, err := e.st.rates.Convert(amount, from, to, key.Period)
	if err != nil {
		e.warn(types.Warning{Kind: types.WarnMissingRate, Key: key, Message: err.Error()})
		return decimal.Zero, false
	}
	return v, true
}

func (e *Engine) checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.TypeInternal, "calculation cancelled", err)
	}
	return nil
}
