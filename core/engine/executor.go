package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"landed-cost/core/rules"
	"landed-cost/core/types"
	"landed-cost/internal/errors"
	"landed-cost/internal/logging"
)

// ExecutionStats tracks wave execution
type ExecutionStats struct {
	Waves           int           `json:"waves"`
	RecordTasks     int64         `json:"record_tasks"`
	Applications    int64         `json:"applications"`
	FailedTasks     int64         `json:"failed_tasks"`
	MaxConcurrency  int           `json:"max_concurrency"`
	AverageDuration time.Duration `json:"average_duration"`
	Duration        time.Duration `json:"duration"`
}

// ExecutionError records a failed rule application
type ExecutionError struct {
	Key     types.CostKey
	RuleID  rules.ID
	Wave    int
	Message string
	Cause   error
}

// RecordExecutor applies one rule to one record
type RecordExecutor func(rec *types.CostRecord, r rules.Rule) error

// waveExecutor runs rule waves on a bounded worker pool. Work is
// partitioned by record: one task owns one record and applies every rule
// of the wave to it in wave order, so no record is touched by two
// goroutines.
type waveExecutor struct {
	maxWorkers int

	stats  ExecutionStats
	total  time.Duration
	mu     sync.Mutex
	errors []ExecutionError
}

func newWaveExecutor(maxWorkers int) *waveExecutor {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &waveExecutor{maxWorkers: maxWorkers}
}

// Execute runs every wave over recs. A failing task cancels the rest of
// its wave and later waves are not started.
func (x *waveExecutor) Execute(ctx context.Context, waves [][]rules.Rule, recs []*types.CostRecord, exec RecordExecutor) error {
	start := time.Now()
	defer func() {
		x.stats.Duration = time.Since(start)
		if x.stats.RecordTasks > 0 {
			x.stats.AverageDuration = x.total / time.Duration(x.stats.RecordTasks)
		}
	}()

	for i, wave := range waves {
		if len(wave) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.TypeInternal, "calculation cancelled between waves", err)
		}
		if err := x.executeWave(ctx, i, wave, recs, exec); err != nil {
			return err
		}
		x.stats.Waves++
	}
	return nil
}

func (x *waveExecutor) executeWave(ctx context.Context, num int, wave []rules.Rule, recs []*types.CostRecord, exec RecordExecutor) error {
	workers := x.maxWorkers
	if len(recs) < workers {
		workers = len(recs)
	}
	if workers > x.stats.MaxConcurrency {
		x.stats.MaxConcurrency = workers
	}

	logging.Debug("executing wave", zap.Int("wave", num), zap.Int("rules", len(wave)), zap.Int("records", len(recs)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.maxWorkers)
	for _, rec := range recs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			return x.executeRecord(num, wave, rec, exec)
		})
	}
	return g.Wait()
}

func (x *waveExecutor) executeRecord(num int, wave []rules.Rule, rec *types.CostRecord, exec RecordExecutor) error {
	start := time.Now()
	defer func() {
		d := time.Since(start)
		x.mu.Lock()
		x.total += d
		x.mu.Unlock()
	}()
	atomic.AddInt64(&x.stats.RecordTasks, 1)

	for _, r := range wave {
		if !r.Head().AppliesTo(rec.Key) {
			continue
		}
		if err := exec(rec, r); err != nil {
			atomic.AddInt64(&x.stats.FailedTasks, 1)
			x.mu.Lock()
			x.errors = append(x.errors, ExecutionError{
				Key:     rec.Key,
				RuleID:  r.Head().ID,
				Wave:    num,
				Message: err.Error(),
				Cause:   err,
			})
			x.mu.Unlock()
			return err
		}
		atomic.AddInt64(&x.stats.Applications, 1)
	}
	return nil
}

// Stats returns execution stats
func (x *waveExecutor) Stats() ExecutionStats {
	return x.stats
}

// Errors returns the recorded failures
func (x *waveExecutor) Errors() []ExecutionError {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]ExecutionError(nil), x.errors...)
}

// ruleWaves resolves the scheduler's parallel groups to rules, without
// the deferred kinds
func (e *Engine) ruleWaves() [][]rules.Rule {
	groups := e.scheduler.ParallelGroups()
	waves := make([][]rules.Rule, 0, len(groups))
	for _, ids := range groups {
		var wave []rules.Rule
		for _, id := range ids {
			r, _ := e.scheduler.Rule(id)
			if !r.Kind().Deferred() {
				wave = append(wave, r)
			}
		}
		waves = append(waves, wave)
	}
	return waves
}

// applyWaves runs the rule waves over the assembled-product records in
// keys
func (e *Engine) applyWaves(ctx context.Context, keys []types.CostKey) (ExecutionStats, error) {
	recs := make([]*types.CostRecord, 0, len(keys))
	for _, k := range keys {
		if rec, ok := e.st.records[k]; ok && !e.bom.IsRaw(k.Product) {
			recs = append(recs, rec)
		}
	}
	x := newWaveExecutor(e.opts.Workers)
	err := x.Execute(ctx, e.ruleWaves(), recs, e.applyRule)
	for _, fail := range x.Errors() {
		e.log.Error("rule application failed",
			zap.String("rule", string(fail.RuleID)),
			zap.String("key", fail.Key.String()),
			zap.Int("wave", fail.Wave),
			zap.Error(fail.Cause))
	}
	return x.Stats(), err
}
