package hcl

import (
	"fmt"
	"strings"

	"landed-cost/core/rules"
	"landed-cost/core/types"
)

func (b *builder) rule(blk *ruleBlk) {
	kind, err := rules.ParseKind(blk.Type)
	if err != nil {
		b.fail(blk.Range, "rule %s: %v", blk.ID, err)
		return
	}

	h := rules.Header{ID: rules.ID(blk.ID)}
	for _, d := range blk.DependsOn {
		h.Dependencies = append(h.Dependencies, rules.ID(d))
	}
	for _, p := range blk.Products {
		h.Products = append(h.Products, types.ProductID(p))
	}
	for _, e := range blk.Entities {
		h.Entities = append(h.Entities, types.EntityID(e))
	}

	var r rules.Rule
	switch kind {
	case rules.KindBaseSum:
		r = &rules.BaseSum{Header: h}
	case rules.KindScrapAdjust:
		r = &rules.ScrapAdjust{Header: h, Rate: b.required(blk, "rate", blk.Rate)}
	case rules.KindLaborBurden:
		r = &rules.LaborBurden{Header: h, Rate: b.required(blk, "rate", blk.Rate)}
	case rules.KindPercentageOfBase:
		if len(blk.BaseFields) == 0 {
			b.fail(blk.Range, "%s: base_fields is required", describe(blk))
		}
		r = &rules.PercentageOfBase{
			Header:     h,
			Percentage: b.required(blk, "percentage", blk.Percentage),
			BaseFields: b.fields(blk, blk.BaseFields),
			Target:     b.target(blk),
		}
	case rules.KindPoolAllocation:
		cur := types.CurrencyUSD
		if blk.Currency != nil {
			cur = types.Currency(strings.ToUpper(*blk.Currency))
		}
		r = &rules.PoolAllocation{
			Header:   h,
			Pool:     b.required(blk, "pool", blk.Pool),
			Currency: cur,
			Target:   b.target(blk),
		}
	case rules.KindTransferRoyalty:
		r = &rules.TransferRoyalty{Header: h, Rate: optional(blk.Rate)}
	case rules.KindTransferMgmtFee:
		r = &rules.TransferMgmtFee{Header: h, Rate: optional(blk.Rate)}
	case rules.KindConditionalDuty:
		countries := make([]string, 0, len(blk.Countries))
		for _, c := range blk.Countries {
			countries = append(countries, strings.ToUpper(c))
		}
		r = &rules.ConditionalDuty{
			Header:    h,
			Rate:      b.required(blk, "rate", blk.Rate),
			Countries: countries,
			Threshold: optional(blk.Threshold),
		}
	case rules.KindWeightedAverage:
		r = &rules.WeightedAverage{Header: h}
	case rules.KindVariance:
		std, err := numberMap(blk.Standards)
		if err != nil {
			b.fail(blk.Range, "%s: standards: %v", describe(blk), err)
		}
		v := &rules.Variance{Header: h, Standards: make(map[types.ProductID]float64, len(std))}
		for p, c := range std {
			v.Standards[types.ProductID(p)] = c
		}
		r = v
	}
	b.m.Rules = append(b.m.Rules, r)
}

func (b *builder) required(blk *ruleBlk, name string, v *float64) float64 {
	if v == nil {
		b.fail(blk.Range, "%s: %s is required", describe(blk), name)
		return 0
	}
	return *v
}

func (b *builder) target(blk *ruleBlk) types.Field {
	if blk.Target == nil {
		return types.FieldFactoryOverhead
	}
	f, err := types.ParseField(*blk.Target)
	if err != nil {
		b.fail(blk.Range, "%s: %v", describe(blk), err)
	}
	return f
}

func (b *builder) fields(blk *ruleBlk, names []string) []types.Field {
	out := make([]types.Field, 0, len(names))
	for _, n := range names {
		f, err := types.ParseField(n)
		if err != nil {
			b.fail(blk.Range, "%s: %v", describe(blk), err)
			continue
		}
		out = append(out, f)
	}
	return out
}

func optional(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func describe(blk *ruleBlk) string {
	return fmt.Sprintf("rule %s (%s)", blk.ID, blk.Type)
}
