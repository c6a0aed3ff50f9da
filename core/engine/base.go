package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"landed-cost/core/types"
)

// computeBase builds base records for every manufacturing entity and
// period in explosion order. When only is non-nil, keys outside it are
// left untouched.
func (e *Engine) computeBase(ctx context.Context, only map[types.CostKey]bool) error {
	order := e.bom.ExplosionOrder()
	for _, period := range e.periods {
		if err := e.checkContext(ctx); err != nil {
			return err
		}
		for _, ent := range e.manufacturing {
			for _, product := range order {
				key := types.CostKey{Product: product, Entity: ent.ID, Period: period}
				if only != nil && !only[key] {
					continue
				}
				parts, ok, err := e.baseFor(key, true)
				if err != nil {
					return err
				}
				if !ok {
					delete(e.st.records, key)
					delete(e.st.base, key)
					continue
				}
				rec := types.NewCostRecord(key, e.currencyOf(ent.ID))
				rec.AddCharge(types.FieldDirectMaterial, parts.material)
				rec.AddCharge(types.FieldDirectLabor, parts.labor)
				e.st.records[key] = rec
				e.st.base[key] = parts
			}
		}
	}
	return nil
}

// baseFor derives the base charges of key. Raw materials take their
// period unit cost; assemblies sum effective quantity times each
// component's base cost at the same entity, falling back to a purchased
// unit cost, plus labor. ok=false means the entity has nothing for the
// product in that period. When report is set, gaps become warnings and
// dependencies are registered.
func (e *Engine) baseFor(key types.CostKey, report bool) (baseParts, bool, error) {
	cur := e.currencyOf(key.Entity)

	if e.bom.IsRaw(key.Product) {
		uc, ok := e.st.costs.Cost(key.Product, key.Entity, key.Period)
		if !ok {
			return baseParts{}, false, nil
		}
		dm, _ := e.convertIf(report, key, uc.Unit, uc.Currency, cur)
		return baseParts{material: dm}, true, nil
	}

	node, err := e.bom.Explode(key.Product)
	if err != nil {
		return baseParts{}, false, err
	}

	var (
		parts   baseParts
		found   bool
		missing []string
	)
	for _, c := range node.Components {
		childKey := types.CostKey{Product: c.Component.ItemID, Entity: key.Entity, Period: key.Period}
		if report {
			e.st.tracker.RegisterDependency(childKey, key)
		}
		unit, ok := e.componentCost(childKey, cur, report)
		if !ok {
			missing = append(missing, string(childKey.Product))
			continue
		}
		found = true
		parts.material = parts.material.Add(c.EffectiveQuantity.Mul(unit))
	}

	labor, hasLabor := e.st.costs.Labor(key.Product, key.Entity, key.Period)
	if hasLabor {
		parts.labor, _ = e.convertIf(report, key, labor.Cost(), labor.Currency, cur)
	}

	if !found && !hasLabor {
		return baseParts{}, false, nil
	}
	if report {
		if len(missing) > 0 {
			e.warn(types.Warning{
				Kind:    types.WarnMissingCost,
				Key:     key,
				Message: fmt.Sprintf("no cost for components %s; counted as zero", strings.Join(missing, ", ")),
			})
		}
		if !hasLabor {
			e.warn(types.Warning{Kind: types.WarnMissingLabor, Key: key, Message: "no labor defined; counted as zero"})
		}
	}
	return parts, true, nil
}

// componentCost returns the unit cost of a component at the consuming
// entity in currency cur: its own base cost when it is built there,
// otherwise its purchased unit cost
func (e *Engine) componentCost(key types.CostKey, cur types.Currency, report bool) (decimal.Decimal, bool) {
	if parts, ok := e.st.base[key]; ok {
		return parts.total(), true
	}
	uc, ok := e.st.costs.Cost(key.Product, key.Entity, key.Period)
	if !ok {
		return decimal.Zero, false
	}
	return e.convertIf(report, key, uc.Unit, uc.Currency, cur)
}

func (e *Engine) convertIf(report bool, key types.CostKey, amount decimal.Decimal, from, to types.Currency) (decimal.Decimal, bool) {
	if report {
		return e.convert(key, amount, from, to)
	}
	if from == "" {
		from = e.opts.BaseCurrency
	}
	v, err := e.st.rates.Convert(amount, from, to, key.Period)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}
