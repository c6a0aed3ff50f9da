package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"landed-cost/core/transfer"
	"landed-cost/core/types"
)

// sourceCost is the transfer.CostFunc over current records, in the base
// currency
func (e *Engine) sourceCost(product types.ProductID, entity types.EntityID, period types.Period) (decimal.Decimal, bool) {
	key := types.CostKey{Product: product, Entity: entity, Period: period}
	rec, ok := e.st.records[key]
	if !ok {
		return decimal.Zero, false
	}
	return e.convert(key, rec.TotalCost, rec.Currency, e.opts.BaseCurrency)
}

// SelectBestPath picks the cheapest transfer path of a product to dest
// using the current manufacturing records. ok=false comes with a
// missing-path warning.
func (e *Engine) SelectBestPath(product types.ProductID, dest types.EntityID, period types.Period) (transfer.Selection, bool, *types.Warning) {
	e.run.Lock()
	defer e.run.Unlock()
	return e.transfer.SelectBestPath(product, dest, period, e.sourceCost)
}

// priceTransfers builds the distribution records of every finished good.
// The landed record carries the source cost as direct material, markups
// as inter-company markup and duties as customs duties, converted to the
// destination currency.
func (e *Engine) priceTransfers(ctx context.Context, only map[types.CostKey]bool) error {
	roots := e.bom.Roots()
	for _, period := range e.periods {
		if err := e.checkContext(ctx); err != nil {
			return err
		}
		for _, dest := range e.distribution {
			for _, product := range roots {
				key := types.CostKey{Product: product, Entity: dest.ID, Period: period}
				if only != nil && !only[key] {
					continue
				}
				delete(e.st.records, key)
				delete(e.st.transfers, key)

				sel, ok, w := e.transfer.SelectBestPath(product, dest.ID, period, e.sourceCost)
				if !ok {
					e.warn(*w)
					continue
				}

				cur := e.currencyOf(dest.ID)
				rec := types.NewCostRecord(key, cur)
				for _, c := range []struct {
					field  types.Field
					amount decimal.Decimal
				}{
					{types.FieldDirectMaterial, sel.SourceCost},
					{types.FieldInterCompanyMarkup, sel.Markup},
					{types.FieldCustomsDuties, sel.Duty},
				} {
					v, _ := e.convert(key, c.amount, e.opts.BaseCurrency, cur)
					rec.AddCharge(c.field, v)
				}

				e.st.records[key] = rec
				e.st.transfers[key] = sel
				// any source may become cheapest after an update
				for _, src := range e.manufacturing {
					e.st.tracker.RegisterDependency(types.CostKey{Product: product, Entity: src.ID, Period: period}, key)
				}
				e.audit.Record(product, dest.ID, "transfer", rec.TotalCost,
					fmt.Sprintf("from %s over %d hops", sel.Source, len(sel.Hops)))
			}
		}
	}
	return nil
}
