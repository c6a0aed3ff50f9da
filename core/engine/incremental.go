package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"landed-cost/core/cycle"
	"landed-cost/core/lookup"
	"landed-cost/core/rules"
	"landed-cost/core/types"
	"landed-cost/internal/errors"
)

// MarkDirty marks key and every record derived from it for the next
// Recalculate
func (e *Engine) MarkDirty(key types.CostKey) {
	e.run.Lock()
	defer e.run.Unlock()
	e.st.tracker.MarkDirty(key)
}

// DrainDirty returns and clears the keys waiting for recalculation
func (e *Engine) DrainDirty() []types.CostKey {
	e.run.Lock()
	defer e.run.Unlock()
	return e.st.tracker.DrainDirty()
}

// UpdateCost replaces a period unit cost and marks what depends on it
func (e *Engine) UpdateCost(item types.ProductID, entity types.EntityID, period types.Period, c lookup.UnitCost) {
	e.run.Lock()
	defer e.run.Unlock()
	e.st.costs.SetCost(item, entity, period, c)
	e.st.tracker.MarkDirty(types.CostKey{Product: item, Entity: entity, Period: period})
}

// UpdateLabor replaces labor content and marks what depends on it
func (e *Engine) UpdateLabor(product types.ProductID, entity types.EntityID, period types.Period, l lookup.Labor) {
	e.run.Lock()
	defer e.run.Unlock()
	e.st.costs.SetLabor(product, entity, period, l)
	e.st.tracker.MarkDirty(types.CostKey{Product: product, Entity: entity, Period: period})
}

// Recalculate recomputes only the dirty records: their base cost, every
// rule, royalty cycles and transfer pricing. Deferred passes rerun in
// full since they read across entities. All other records are reused.
func (e *Engine) Recalculate(ctx context.Context) (*Result, error) {
	e.run.Lock()
	defer e.run.Unlock()
	if err := e.guard(PhaseComplete); err != nil {
		return nil, err
	}

	start := time.Now()
	dirty := e.st.tracker.DrainDirty()
	if len(dirty) == 0 {
		return e.last, nil
	}
	runID := uuid.NewString()
	e.log.Info("recalculation started", zap.String("run_id", runID), zap.Int("dirty", len(dirty)))

	only := make(map[types.CostKey]bool, len(dirty))
	for _, k := range dirty {
		only[k] = true
	}
	e.dropWarnings(only)
	statsBefore := e.bom.Stats()

	var exec ExecutionStats
	err := e.runPhase(PhaseBase, func() error { return e.computeBase(ctx, only) })
	if err == nil {
		err = e.runPhase(PhaseRules, func() error {
			var werr error
			exec, werr = e.applyWaves(ctx, e.filterKeys(only))
			return werr
		})
	}
	if err == nil {
		err = e.runPhase(PhaseCycles, func() error { return e.resolveRoyaltyCycles(e.filterKeys(only)) })
	}
	if err == nil {
		err = e.runPhase(PhaseDeferred, func() error { e.applyDeferred(); return nil })
	}
	if err == nil {
		err = e.runPhase(PhaseTransfer, func() error { return e.priceTransfers(ctx, only) })
	}
	if err == nil {
		err = e.checkInvariants()
	}
	if err != nil {
		e.phase = PhaseUninitialized
		return nil, err
	}
	e.phase = PhaseComplete

	res := e.snapshot(runID, start, statsBefore, exec)
	res.Incremental = true
	res.Recomputed = dirty
	e.last = res
	e.log.Info("recalculation complete", zap.String("run_id", runID), zap.Int("recomputed", len(dirty)))
	return res, e.strictError(res)
}

// filterKeys returns the manufacturing keys that are in only
func (e *Engine) filterKeys(only map[types.CostKey]bool) []types.CostKey {
	var out []types.CostKey
	for _, k := range e.manufacturingKeys() {
		if only[k] {
			out = append(out, k)
		}
	}
	return out
}

// dropWarnings forgets warnings about keys that are about to be
// recomputed and every warning of a deferred rule, since deferred passes
// rerun in full
func (e *Engine) dropWarnings(only map[types.CostKey]bool) {
	kept := e.st.warnings[:0]
	for _, w := range e.st.warnings {
		if only[w.Key] || e.deferredWarning(w) {
			continue
		}
		kept = append(kept, w)
	}
	e.st.warnings = kept
}

func (e *Engine) deferredWarning(w types.Warning) bool {
	if w.Rule == "" {
		return false
	}
	r, ok := e.scheduler.Rule(rules.ID(w.Rule))
	return ok && r.Kind().Deferred()
}

// recomputer drives cycle resolution against the engine state
type recomputer struct {
	e *Engine
}

// RecomputeBase re-derives the base charges and applies the change, so
// charges added by rules on top of the base are kept
func (r recomputer) RecomputeBase(key types.CostKey) error {
	rec, ok := r.e.st.records[key]
	if !ok {
		return errors.NotFound("cost record", key.String())
	}
	fresh, ok, err := r.e.baseFor(key, false)
	if err != nil {
		return err
	}
	if !ok {
		fresh = baseParts{}
	}
	old := r.e.st.base[key]
	rec.AddCharge(types.FieldDirectMaterial, fresh.material.Sub(old.material))
	rec.AddCharge(types.FieldDirectLabor, fresh.labor.Sub(old.labor))
	r.e.st.base[key] = fresh
	return nil
}

// ApplyRoyalties re-applies only the royalty rules in scope of key
func (r recomputer) ApplyRoyalties(key types.CostKey) error {
	rec, ok := r.e.st.records[key]
	if !ok {
		return errors.NotFound("cost record", key.String())
	}
	for _, rule := range r.e.scheduler.RoyaltyRules() {
		if !rule.Head().AppliesTo(key) {
			continue
		}
		if err := r.e.applyRule(rec, rule); err != nil {
			return err
		}
	}
	return nil
}

// Total returns the current total of key
func (r recomputer) Total(key types.CostKey) (decimal.Decimal, bool) {
	rec, ok := r.e.st.records[key]
	if !ok {
		return decimal.Zero, false
	}
	return rec.TotalCost, true
}

// ResolveCycle runs the royalty fixed point for one record
func (e *Engine) ResolveCycle(key types.CostKey) (cycle.Result, error) {
	e.run.Lock()
	defer e.run.Unlock()
	if err := e.guard(PhaseRules); err != nil {
		return cycle.Result{}, err
	}
	return e.resolveCycle(key)
}

func (e *Engine) resolveCycle(key types.CostKey) (cycle.Result, error) {
	res, err := cycle.NewResolver(recomputer{e}, e.opts.Cycle).Resolve(key)
	if err != nil {
		return res, err
	}
	e.st.cycles[key] = res
	e.metrics.CycleIterations(res.Iterations)
	if !res.Converged {
		e.warn(types.Warning{
			Kind: types.WarnConvergence,
			Key:  key,
			Message: fmt.Sprintf("royalty cycle did not converge after %d iterations (last change %s)",
				res.Iterations, res.LastDelta.StringFixed(4)),
		})
	}
	return res, nil
}

// resolveRoyaltyCycles resolves every assembled record that a royalty
// rule with a non-zero rate applies to
func (e *Engine) resolveRoyaltyCycles(keys []types.CostKey) error {
	royalties := e.scheduler.RoyaltyRules()
	if len(royalties) == 0 {
		return nil
	}
	for _, key := range keys {
		if e.bom.IsRaw(key.Product) || !e.royaltyApplies(royalties, key) {
			continue
		}
		if _, err := e.resolveCycle(key); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) royaltyApplies(royalties []rules.Rule, key types.CostKey) bool {
	for _, r := range royalties {
		roy := r.(*rules.TransferRoyalty)
		if roy.AppliesTo(key) && !e.ruleRate(roy.Rate, key.Entity, types.ItemRoyalty).IsZero() {
			return true
		}
	}
	return false
}
