// Package rules defines allocation rules and schedules them.
//
// A rule is one of a closed set of kinds, each carrying its own typed
// parameters. The scheduler orders rules so every dependency runs first
// and partitions them into waves of mutually independent rules.
package rules

import (
	"landed-cost/core/types"
	"landed-cost/internal/errors"
)

// ID identifies a rule
type ID string

// Kind is the rule type tag
type Kind int

const (
	KindBaseSum Kind = iota
	KindScrapAdjust
	KindLaborBurden
	KindPercentageOfBase
	KindPoolAllocation
	KindTransferRoyalty
	KindTransferMgmtFee
	KindConditionalDuty
	KindWeightedAverage
	KindVariance
)

var kindNames = map[Kind]string{
	KindBaseSum:          "base-sum",
	KindScrapAdjust:      "scrap-adjust",
	KindLaborBurden:      "labor-burden",
	KindPercentageOfBase: "percentage-of-base",
	KindPoolAllocation:   "pool-allocation",
	KindTransferRoyalty:  "transfer-royalty",
	KindTransferMgmtFee:  "transfer-mgmt-fee",
	KindConditionalDuty:  "conditional-duty",
	KindWeightedAverage:  "weighted-average",
	KindVariance:         "variance",
}

// String returns the tag
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind resolves a tag
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, errors.Newf(errors.TypeParsing, "unknown rule type %q", s).
		WithContext("type", s)
}

// Deferred reports whether rules of this kind run after all waves
func (k Kind) Deferred() bool {
	return k == KindWeightedAverage || k == KindVariance
}

// Header is shared by every rule
type Header struct {
	ID           ID
	Dependencies []ID

	// Products and Entities restrict where the rule applies; empty
	// means everywhere
	Products []types.ProductID
	Entities []types.EntityID
}

// Head returns the header
func (h *Header) Head() *Header {
	return h
}

// AppliesTo reports whether the rule's scope covers key
func (h *Header) AppliesTo(key types.CostKey) bool {
	return matches(h.Products, key.Product) && matches(h.Entities, key.Entity)
}

func matches[T comparable](scope []T, v T) bool {
	if len(scope) == 0 {
		return true
	}
	for _, s := range scope {
		if s == v {
			return true
		}
	}
	return false
}

// Rule is implemented only by the kinds in this package
type Rule interface {
	Head() *Header
	Kind() Kind
	sealed()
}

// BaseSum re-derives TotalCost from the itemized charges
type BaseSum struct {
	Header
}

// ScrapAdjust grosses up direct material for process scrap not captured
// in the BOM
type ScrapAdjust struct {
	Header
	Rate float64
}

// LaborBurden applies a burden rate to direct labor
type LaborBurden struct {
	Header
	Rate float64
}

// PercentageOfBase charges a percentage of the sum of named fields to a
// target field
type PercentageOfBase struct {
	Header
	Percentage float64
	BaseFields []types.Field
	Target     types.Field
}

// PoolAllocation spreads a shared cost pool over the units produced at
// an entity in proportion to volume
type PoolAllocation struct {
	Header
	Pool     float64
	Currency types.Currency
	Target   types.Field
}

// TransferRoyalty charges royalty on the current total cost. A zero Rate
// takes the rate from royalty routes leaving the entity.
type TransferRoyalty struct {
	Header
	Rate float64
}

// TransferMgmtFee charges a management fee on the total cost excluding
// the fee. A zero Rate takes the rate from management-fee routes.
type TransferMgmtFee struct {
	Header
	Rate float64
}

// ConditionalDuty charges duty on direct material at entities located in
// Countries once the total cost exceeds Threshold
type ConditionalDuty struct {
	Header
	Rate      float64
	Countries []string
	Threshold float64
}

// WeightedAverage computes the volume-weighted cost across manufacturing
// entities for each product and period
type WeightedAverage struct {
	Header
}

// Variance compares total cost to a standard cost per product
type Variance struct {
	Header
	Standards map[types.ProductID]float64
}

func (*BaseSum) Kind() Kind          { return KindBaseSum }
func (*ScrapAdjust) Kind() Kind      { return KindScrapAdjust }
func (*LaborBurden) Kind() Kind      { return KindLaborBurden }
func (*PercentageOfBase) Kind() Kind { return KindPercentageOfBase }
func (*PoolAllocation) Kind() Kind   { return KindPoolAllocation }
func (*TransferRoyalty) Kind() Kind  { return KindTransferRoyalty }
func (*TransferMgmtFee) Kind() Kind  { return KindTransferMgmtFee }
func (*ConditionalDuty) Kind() Kind  { return KindConditionalDuty }
func (*WeightedAverage) Kind() Kind  { return KindWeightedAverage }
func (*Variance) Kind() Kind         { return KindVariance }

func (*BaseSum) sealed()          {}
func (*ScrapAdjust) sealed()      {}
func (*LaborBurden) sealed()      {}
func (*PercentageOfBase) sealed() {}
func (*PoolAllocation) sealed()   {}
func (*TransferRoyalty) sealed()  {}
func (*TransferMgmtFee) sealed()  {}
func (*ConditionalDuty) sealed()  {}
func (*WeightedAverage) sealed()  {}
func (*Variance) sealed()         {}
