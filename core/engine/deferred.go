package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"landed-cost/core/rules"
	"landed-cost/core/types"
)

// applyDeferred runs the weighted-average and variance passes over the
// manufacturing records, in rule execution order
func (e *Engine) applyDeferred() {
	for _, r := range e.scheduler.Deferred() {
		switch r := r.(type) {
		case *rules.WeightedAverage:
			e.weightedAverage(r)
		case *rules.Variance:
			e.variance(r)
		}
		e.metrics.RuleApplied(r.Kind().String())
	}
}

// weightedAverage sets WeightedAverageCost on every record of a product
// and period to the volume-weighted mean of its total across entities.
// Without any volume the mean is unweighted.
func (e *Engine) weightedAverage(r *rules.WeightedAverage) {
	for _, period := range e.periods {
		for _, product := range e.bom.ExplosionOrder() {
			if e.bom.IsRaw(product) {
				continue
			}
			var (
				recs    []*types.CostRecord
				totals  []decimal.Decimal
				weights []decimal.Decimal
			)
			for _, ent := range e.manufacturing {
				key := types.CostKey{Product: product, Entity: ent.ID, Period: period}
				rec, ok := e.st.records[key]
				if !ok || !r.AppliesTo(key) {
					continue
				}
				total, ok := e.convert(key, rec.TotalCost, rec.Currency, e.opts.BaseCurrency)
				if !ok {
					continue
				}
				w, ok := e.st.costs.Volume(product, ent.ID, period)
				if !ok {
					e.warn(types.Warning{
						Kind:    types.WarnMissingVolume,
						Key:     key,
						Rule:    string(r.ID),
						Message: fmt.Sprintf("rule %s: no volume; weight zero", r.ID),
					})
					w = decimal.Zero
				}
				recs = append(recs, rec)
				totals = append(totals, total)
				weights = append(weights, w)
			}
			if len(recs) == 0 {
				continue
			}

			avg := weightedMean(totals, weights)
			for _, rec := range recs {
				v, _ := e.convert(rec.Key, avg, e.opts.BaseCurrency, rec.Currency)
				rec.WeightedAverageCost = v
			}
		}
	}
}

func weightedMean(values, weights []decimal.Decimal) decimal.Decimal {
	sumW := decimal.Zero
	sum := decimal.Zero
	for i, v := range values {
		sumW = sumW.Add(weights[i])
		sum = sum.Add(v.Mul(weights[i]))
	}
	if sumW.IsZero() {
		sum = decimal.Zero
		for _, v := range values {
			sum = sum.Add(v)
		}
		return sum.Div(decimal.NewFromInt(int64(len(values))))
	}
	return sum.Div(sumW)
}

// variance sets Variance to total minus the product's standard cost.
// Standards are stated in the base currency.
func (e *Engine) variance(r *rules.Variance) {
	for key, rec := range e.st.records {
		std, ok := r.Standards[key.Product]
		if !ok || !r.AppliesTo(key) || e.entities[key.Entity].Type != types.EntityManufacturing {
			continue
		}
		total, ok := e.convert(key, rec.TotalCost, rec.Currency, e.opts.BaseCurrency)
		if !ok {
			continue
		}
		diff := total.Sub(decimal.NewFromFloat(std))
		v, _ := e.convert(key, diff, e.opts.BaseCurrency, rec.Currency)
		rec.Variance = v
	}
}
