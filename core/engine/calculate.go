package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"landed-cost/core/bom"
	"landed-cost/core/cycle"
	"landed-cost/core/determinism"
	"landed-cost/core/rules"
	"landed-cost/core/transfer"
	"landed-cost/core/types"
	"landed-cost/internal/errors"
)

// Stats summarizes a run
type Stats struct {
	Records     int            `json:"records"`
	Transfers   int            `json:"transfers"`
	Cycles      int            `json:"cycles"`
	CacheHits   int            `json:"cache_hits"`
	CacheMisses int            `json:"cache_misses"`
	Execution   ExecutionStats `json:"execution"`
}

// Result is an immutable snapshot of a calculation
type Result struct {
	RunID          string               `json:"run_id"`
	BaseCurrency   types.Currency       `json:"base_currency"`
	Periods        []types.Period       `json:"periods"`
	ExplosionOrder []types.ProductID    `json:"explosion_order"`
	ExecutionOrder []rules.ID           `json:"execution_order"`
	Waves          [][]rules.ID         `json:"waves"`
	Records        []*types.CostRecord  `json:"records"`
	Transfers      []transfer.Selection `json:"transfers"`
	Cycles         []cycle.Result       `json:"cycles,omitempty"`
	Warnings       []types.Warning      `json:"warnings"`
	Stats          Stats                `json:"stats"`
	CalculatedAt   time.Time            `json:"calculated_at"`
	Duration       time.Duration        `json:"duration"`
	Incremental    bool                 `json:"incremental"`
	Recomputed     []types.CostKey      `json:"recomputed,omitempty"`
}

// Record finds a record in the result
func (r *Result) Record(key types.CostKey) (*types.CostRecord, bool) {
	i, ok := slices.BinarySearchFunc(r.Records, key, func(rec *types.CostRecord, k types.CostKey) int {
		return determinism.CompareCostKeys(rec.Key, k)
	})
	if !ok {
		return nil, false
	}
	return r.Records[i], true
}

// Transfer finds the transfer selection for a distribution key
func (r *Result) Transfer(key types.CostKey) (transfer.Selection, bool) {
	for _, t := range r.Transfers {
		if t.Product == key.Product && t.Destination == key.Entity && t.Period == key.Period {
			return t, true
		}
	}
	return transfer.Selection{}, false
}

// WarningsOf returns the warnings of one kind
func (r *Result) WarningsOf(kind types.WarningKind) []types.Warning {
	var out []types.Warning
	for _, w := range r.Warnings {
		if w.Kind == kind {
			out = append(out, w)
		}
	}
	return out
}

// Calculate runs a full calculation. Configuration problems were already
// rejected by New; data gaps become warnings, and in strict mode the
// warnings are also returned combined as an error next to the result.
func (e *Engine) Calculate(ctx context.Context) (*Result, error) {
	e.run.Lock()
	defer e.run.Unlock()
	return e.calculate(ctx)
}

func (e *Engine) calculate(ctx context.Context) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := e.log.With(zap.String("run_id", runID))
	log.Info("calculation started", zap.Int("periods", len(e.periods)))

	e.st.reset()
	e.phase = PhaseUninitialized
	statsBefore := e.bom.Stats()

	var exec ExecutionStats
	err := e.runPhase(PhaseBase, func() error { return e.computeBase(ctx, nil) })
	if err == nil {
		err = e.runPhase(PhaseRules, func() error {
			var werr error
			exec, werr = e.applyWaves(ctx, e.manufacturingKeys())
			return werr
		})
	}
	if err == nil {
		err = e.runPhase(PhaseCycles, func() error { return e.resolveRoyaltyCycles(e.manufacturingKeys()) })
	}
	if err == nil {
		err = e.runPhase(PhaseDeferred, func() error { e.applyDeferred(); return nil })
	}
	if err == nil {
		err = e.runPhase(PhaseTransfer, func() error { return e.priceTransfers(ctx, nil) })
	}
	if err == nil {
		err = e.checkInvariants()
	}
	if err != nil {
		e.phase = PhaseUninitialized
		log.Error("calculation failed", zap.Error(err))
		return nil, err
	}
	e.phase = PhaseComplete

	res := e.snapshot(runID, start, statsBefore, exec)
	e.last = res
	e.audit.Log("calculation complete", map[string]any{
		"run_id":   runID,
		"records":  len(res.Records),
		"warnings": len(res.Warnings),
	})
	log.Info("calculation complete",
		zap.Int("records", len(res.Records)),
		zap.Int("transfers", len(res.Transfers)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("duration", res.Duration))
	return res, e.strictError(res)
}

// manufacturingKeys returns the keys of every non-distribution record,
// sorted
func (e *Engine) manufacturingKeys() []types.CostKey {
	keys := make([]types.CostKey, 0, len(e.st.records))
	for k := range e.st.records {
		if e.entities[k.Entity].Type == types.EntityManufacturing {
			keys = append(keys, k)
		}
	}
	determinism.SortCostKeys(keys)
	return keys
}

func (e *Engine) checkInvariants() error {
	for _, rec := range e.st.records {
		if err := rec.CheckInvariant(); err != nil {
			return errors.Wrap(errors.TypeInvariant, "cost record total drifted from itemized sum", err).
				WithContext("key", rec.Key.String())
		}
	}
	return nil
}

// snapshot copies the state into a Result
func (e *Engine) snapshot(runID string, start time.Time, before bom.Stats, exec ExecutionStats) *Result {
	keys := make([]types.CostKey, 0, len(e.st.records))
	for k := range e.st.records {
		keys = append(keys, k)
	}
	determinism.SortCostKeys(keys)

	res := &Result{
		RunID:          runID,
		BaseCurrency:   e.opts.BaseCurrency,
		Periods:        e.Periods(),
		ExplosionOrder: e.bom.ExplosionOrder(),
		ExecutionOrder: e.scheduler.ExecutionOrder(),
		Waves:          e.scheduler.ParallelGroups(),
		Records:        make([]*types.CostRecord, 0, len(keys)),
		CalculatedAt:   time.Now().UTC(),
	}
	for _, k := range keys {
		res.Records = append(res.Records, e.st.records[k].Clone())
		if t, ok := e.st.transfers[k]; ok {
			res.Transfers = append(res.Transfers, t)
		}
		if c, ok := e.st.cycles[k]; ok {
			res.Cycles = append(res.Cycles, c)
		}
	}
	res.Warnings = sortedWarnings(e.st.warnings)

	after := e.bom.Stats()
	res.Stats = Stats{
		Records:     len(res.Records),
		Transfers:   len(res.Transfers),
		Cycles:      len(res.Cycles),
		CacheHits:   after.Hits - before.Hits,
		CacheMisses: after.Misses - before.Misses,
		Execution:   exec,
	}
	res.Duration = time.Since(start)

	e.metrics.CacheHits(res.Stats.CacheHits)
	e.metrics.Records(res.Stats.Records)
	return res
}

func sortedWarnings(ws []types.Warning) []types.Warning {
	out := slices.Clone(ws)
	slices.SortStableFunc(out, func(a, b types.Warning) int {
		if c := determinism.CompareCostKeys(a.Key, b.Key); c != 0 {
			return c
		}
		if a.Kind != b.Kind {
			if a.Kind < b.Kind {
				return -1
			}
			return 1
		}
		if a.Message < b.Message {
			return -1
		}
		if a.Message > b.Message {
			return 1
		}
		return 0
	})
	return slices.CompactFunc(out, func(a, b types.Warning) bool { return a == b })
}

// strictError escalates warnings when strict mode is on
func (e *Engine) strictError(res *Result) error {
	if !e.opts.Strict || len(res.Warnings) == 0 {
		return nil
	}
	var combined error
	for _, w := range res.Warnings {
		t := errors.TypeDataGap
		if w.Kind == types.WarnConvergence {
			t = errors.TypeConvergence
		}
		combined = multierr.Append(combined, errors.New(t, w.String()).WithContext("key", w.Key.String()))
	}
	return errors.Wrap(errors.TypeDataGap, fmt.Sprintf("strict mode: %d warnings", len(res.Warnings)), combined)
}
