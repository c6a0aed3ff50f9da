package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"landed-cost/core/rules"
	"landed-cost/core/types"
	"landed-cost/internal/errors"
)

// applyRule applies one rule to one record. Every branch changes one
// named field through AddCharge or SetCharge so TotalCost stays equal to
// the itemized sum. Deferred kinds are no-ops here.
func (e *Engine) applyRule(rec *types.CostRecord, r rules.Rule) error {
	key := rec.Key
	before := rec.TotalCost
	var desc string

	switch r := r.(type) {
	case *rules.BaseSum:
		rec.Rebase()
		desc = "base sum"

	case *rules.ScrapAdjust:
		if r.Rate >= 1 || r.Rate < 0 {
			return errors.Newf(errors.TypeInvariant, "rule %s: scrap rate %v outside [0,1)", r.ID, r.Rate)
		}
		rate := decimal.NewFromFloat(r.Rate)
		uplift := rec.Charge(types.FieldDirectMaterial).Mul(rate).Div(decimal.NewFromInt(1).Sub(rate))
		rec.AddCharge(types.FieldDirectMaterial, uplift)
		desc = fmt.Sprintf("scrap %.4g%% on direct material", r.Rate*100)

	case *rules.LaborBurden:
		rec.AddCharge(types.FieldLaborBurden, rec.Charge(types.FieldDirectLabor).Mul(decimal.NewFromFloat(r.Rate)))
		desc = fmt.Sprintf("burden %.4g%% on direct labor", r.Rate*100)

	case *rules.PercentageOfBase:
		base := rec.Sum(r.BaseFields...)
		rec.AddCharge(r.Target, base.Mul(decimal.NewFromFloat(r.Percentage)))
		desc = fmt.Sprintf("%.4g%% of %s to %s", r.Percentage*100, fieldList(r.BaseFields), r.Target)

	case *rules.PoolAllocation:
		volumes := e.st.costs.VolumesAt(key.Entity, key.Period)
		total := decimal.Zero
		for _, v := range volumes {
			total = total.Add(v)
		}
		if total.IsZero() {
			e.warn(types.Warning{
				Kind:    types.WarnMissingVolume,
				Key:     key,
				Rule:    string(r.ID),
				Message: fmt.Sprintf("rule %s: no production volume at %s", r.ID, key.Entity),
			})
			return nil
		}
		share := decimal.NewFromFloat(r.Pool).Div(total)
		amount, ok := e.convert(key, share, r.Currency, rec.Currency)
		if !ok {
			return nil
		}
		rec.AddCharge(r.Target, amount)
		desc = fmt.Sprintf("pool %.2f over %s units to %s", r.Pool, total, r.Target)

	case *rules.TransferRoyalty:
		rate := e.ruleRate(r.Rate, key.Entity, types.ItemRoyalty)
		rec.SetCharge(types.FieldRoyalty, rec.TotalCost.Mul(rate))
		desc = fmt.Sprintf("royalty %s of total cost", rate)

	case *rules.TransferMgmtFee:
		rate := e.ruleRate(r.Rate, key.Entity, types.ItemManagementFee)
		base := rec.TotalCost.Sub(rec.Charge(types.FieldManagementFee))
		rec.SetCharge(types.FieldManagementFee, base.Mul(rate))
		desc = fmt.Sprintf("management fee %s of cost before fee", rate)

	case *rules.ConditionalDuty:
		ent := e.entities[key.Entity]
		if !containsFold(r.Countries, ent.Country) {
			return nil
		}
		total, ok := e.convert(key, rec.TotalCost, rec.Currency, e.opts.BaseCurrency)
		if !ok || !total.GreaterThan(decimal.NewFromFloat(r.Threshold)) {
			return nil
		}
		rec.AddCharge(types.FieldCustomsDuties, rec.Charge(types.FieldDirectMaterial).Mul(decimal.NewFromFloat(r.Rate)))
		desc = fmt.Sprintf("duty %.4g%% on direct material in %s", r.Rate*100, ent.Country)

	case *rules.WeightedAverage, *rules.Variance:
		return nil

	default:
		return errors.Newf(errors.TypeInternal, "unhandled rule kind %T", r)
	}

	e.metrics.RuleApplied(r.Kind().String())
	delta := rec.TotalCost.Sub(before)
	e.audit.Record(key.Product, key.Entity, string(r.Head().ID), delta, desc)
	e.log.Debug("rule applied",
		zap.String("rule", string(r.Head().ID)),
		zap.String("kind", r.Kind().String()),
		zap.String("key", key.String()),
		zap.String("delta", delta.String()))
	return nil
}

// ruleRate returns the explicit rule rate, or the sum of markup values
// of routes leaving entity tagged with itemType
func (e *Engine) ruleRate(explicit float64, entity types.EntityID, itemType string) decimal.Decimal {
	if explicit != 0 {
		return decimal.NewFromFloat(explicit)
	}
	rate := decimal.Zero
	for _, rt := range e.routesFrom[entity] {
		if rt.Carries(itemType) {
			rate = rate.Add(decimal.NewFromFloat(rt.MarkupValue))
		}
	}
	return rate
}

func fieldList(fs []types.Field) string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.String()
	}
	return strings.Join(names, "+")
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
