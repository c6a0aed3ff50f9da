package types

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// CostKey addresses one cost record
type CostKey struct {
	Product ProductID `json:"product"`
	Entity  EntityID  `json:"entity"`
	Period  Period    `json:"period"`
}

// String returns PRODUCT@ENTITY/PERIOD
func (k CostKey) String() string {
	return fmt.Sprintf("%s@%s/%s", k.Product, k.Entity, k.Period)
}

// Field names one itemized charge of a cost record
type Field int

const (
	FieldDirectMaterial Field = iota
	FieldDirectLabor
	FieldLaborBurden
	FieldFactoryOverhead
	FieldRnDAmortization
	FieldRoyalty
	FieldManagementFee
	FieldInterCompanyMarkup
	FieldCustomsDuties
	fieldCount
)

var fieldNames = [fieldCount]string{
	"direct_material",
	"direct_labor",
	"labor_burden",
	"factory_overhead",
	"rnd_amortization",
	"royalty",
	"management_fee",
	"inter_company_markup",
	"customs_duties",
}

// String returns the snake_case field name
func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return "unknown"
	}
	return fieldNames[f]
}

// ParseField resolves a snake_case field name
func ParseField(s string) (Field, error) {
	for i, name := range fieldNames {
		if name == s {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("unknown cost field %q", s)
}

// Fields returns every itemized field in declaration order
func Fields() []Field {
	out := make([]Field, fieldCount)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// CostRecord accumulates the cost of one product at one entity in one
// period. TotalCost always equals the sum of the itemized charges; the
// charges are only mutated through AddCharge and SetCharge.
// WeightedAverageCost and Variance are analytic outputs outside the sum.
type CostRecord struct {
	Key      CostKey  `json:"key"`
	Currency Currency `json:"currency"`

	charges [fieldCount]decimal.Decimal

	TotalCost           decimal.Decimal `json:"total_cost"`
	WeightedAverageCost decimal.Decimal `json:"weighted_average_cost"`
	Variance            decimal.Decimal `json:"variance"`
}

// NewCostRecord creates an empty record
func NewCostRecord(key CostKey, currency Currency) *CostRecord {
	return &CostRecord{Key: key, Currency: currency}
}

// Charge returns the value of an itemized field
func (r *CostRecord) Charge(f Field) decimal.Decimal {
	return r.charges[f]
}

// AddCharge adds amount to a field and to TotalCost
func (r *CostRecord) AddCharge(f Field, amount decimal.Decimal) {
	r.charges[f] = r.charges[f].Add(amount)
	r.TotalCost = r.TotalCost.Add(amount)
}

// SetCharge replaces a field and moves TotalCost by the difference
func (r *CostRecord) SetCharge(f Field, amount decimal.Decimal) {
	delta := amount.Sub(r.charges[f])
	r.charges[f] = amount
	r.TotalCost = r.TotalCost.Add(delta)
}

// Sum returns the sum of the given fields
func (r *CostRecord) Sum(fields ...Field) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fields {
		total = total.Add(r.charges[f])
	}
	return total
}

// Rebase re-derives TotalCost from the itemized fields
func (r *CostRecord) Rebase() {
	r.TotalCost = r.Sum(Fields()...)
}

// ResetCharges zeroes every field except the ones listed
func (r *CostRecord) ResetCharges(keep ...Field) {
	var kept [fieldCount]bool
	for _, f := range keep {
		kept[f] = true
	}
	for i := range r.charges {
		if !kept[i] {
			r.charges[i] = decimal.Zero
		}
	}
	r.Rebase()
}

// CheckInvariant reports an error when TotalCost has drifted from the
// sum of the itemized fields
func (r *CostRecord) CheckInvariant() error {
	if sum := r.Sum(Fields()...); !sum.Equal(r.TotalCost) {
		return fmt.Errorf("%s: total %s != itemized sum %s", r.Key, r.TotalCost, sum)
	}
	return nil
}

// Breakdown returns the itemized fields by name
func (r *CostRecord) Breakdown() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, fieldCount)
	for i, v := range r.charges {
		out[fieldNames[i]] = v
	}
	return out
}

// Clone returns an independent copy
func (r *CostRecord) Clone() *CostRecord {
	c := *r
	return &c
}

// MarshalJSON includes the itemized breakdown
func (r *CostRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key                 CostKey                    `json:"key"`
		Currency            Currency                   `json:"currency"`
		Charges             map[string]decimal.Decimal `json:"charges"`
		TotalCost           decimal.Decimal            `json:"total_cost"`
		WeightedAverageCost decimal.Decimal            `json:"weighted_average_cost"`
		Variance            decimal.Decimal            `json:"variance"`
	}{r.Key, r.Currency, r.Breakdown(), r.TotalCost, r.WeightedAverageCost, r.Variance})
}
