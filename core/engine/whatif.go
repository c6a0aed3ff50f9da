package engine

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"landed-cost/core/determinism"
	"landed-cost/core/lookup"
	"landed-cost/core/types"
)

// CostOverride replaces one period unit cost in a scenario
type CostOverride struct {
	Item   types.ProductID `json:"item"`
	Entity types.EntityID  `json:"entity"`
	Period types.Period    `json:"period"`
	Cost   lookup.UnitCost `json:"cost"`
}

// RateOverride replaces one exchange rate in a scenario
type RateOverride struct {
	From   types.Currency  `json:"from"`
	To     types.Currency  `json:"to"`
	Period types.Period    `json:"period"`
	Rate   decimal.Decimal `json:"rate"`
}

// Scenario is a set of input changes evaluated against the baseline
type Scenario struct {
	Name  string         `json:"name"`
	Costs []CostOverride `json:"costs,omitempty"`
	Rates []RateOverride `json:"rates,omitempty"`
}

// Delta compares one record between the baseline and a scenario
type Delta struct {
	Key      types.CostKey   `json:"key"`
	Currency types.Currency  `json:"currency"`
	Baseline decimal.Decimal `json:"baseline"`
	Scenario decimal.Decimal `json:"scenario"`
	Change   decimal.Decimal `json:"change"`
}

// WhatIfResult is a scenario run and its changes against the baseline
type WhatIfResult struct {
	Scenario string  `json:"scenario"`
	Result   *Result `json:"result"`
	Deltas   []Delta `json:"deltas"`
}

// WhatIf evaluates a scenario on a clone of the cost state and input
// tables. The baseline is restored afterwards, and scenarios run one at a
// time.
func (e *Engine) WhatIf(ctx context.Context, sc Scenario) (*WhatIfResult, error) {
	e.run.Lock()
	defer e.run.Unlock()
	if err := e.guard(PhaseComplete); err != nil {
		return nil, err
	}

	baseline, saved, savedPhase := e.last, e.st, e.phase
	e.st = saved.clone()
	defer func() {
		e.st, e.last, e.phase = saved, baseline, savedPhase
	}()

	for _, o := range sc.Costs {
		e.st.costs.SetCost(o.Item, o.Entity, o.Period, o.Cost)
	}
	for _, o := range sc.Rates {
		e.st.rates.Set(o.From, o.To, o.Period, o.Rate)
	}

	e.log.Info("what-if scenario", zap.String("scenario", sc.Name),
		zap.Int("cost_overrides", len(sc.Costs)), zap.Int("rate_overrides", len(sc.Rates)))

	res, err := e.calculate(ctx)
	if res == nil {
		return nil, err
	}
	return &WhatIfResult{
		Scenario: sc.Name,
		Result:   res,
		Deltas:   diff(baseline, res),
	}, err
}

// diff lists the records whose total changed, appeared or disappeared
func diff(baseline, scenario *Result) []Delta {
	keys := make(map[types.CostKey]struct{})
	for _, r := range baseline.Records {
		keys[r.Key] = struct{}{}
	}
	for _, r := range scenario.Records {
		keys[r.Key] = struct{}{}
	}
	sorted := make([]types.CostKey, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	determinism.SortCostKeys(sorted)

	var out []Delta
	for _, k := range sorted {
		d := Delta{Key: k}
		if r, ok := baseline.Record(k); ok {
			d.Baseline, d.Currency = r.TotalCost, r.Currency
		}
		if r, ok := scenario.Record(k); ok {
			d.Scenario, d.Currency = r.TotalCost, r.Currency
		}
		d.Change = d.Scenario.Sub(d.Baseline)
		if !d.Change.IsZero() {
			out = append(out, d)
		}
	}
	return out
}
