package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCostRecordChargesKeepTotal(t *testing.T) {
	r := NewCostRecord(CostKey{Product: "P", Entity: "E", Period: "2024-01"}, CurrencyUSD)
	r.AddCharge(FieldDirectMaterial, decimal.NewFromInt(100))
	r.AddCharge(FieldDirectLabor, decimal.NewFromInt(20))
	r.SetCharge(FieldRoyalty, decimal.NewFromInt(5))
	r.SetCharge(FieldRoyalty, decimal.NewFromInt(3))

	if !r.TotalCost.Equal(decimal.NewFromInt(123)) {
		t.Errorf("TotalCost = %s, want 123", r.TotalCost)
	}
	if err := r.CheckInvariant(); err != nil {
		t.Error(err)
	}

	r.ResetCharges(FieldRoyalty)
	if !r.TotalCost.Equal(decimal.NewFromInt(3)) {
		t.Errorf("after reset TotalCost = %s, want 3", r.TotalCost)
	}
}

func TestCostRecordCloneIsIndependent(t *testing.T) {
	r := NewCostRecord(CostKey{Product: "P"}, CurrencyUSD)
	r.AddCharge(FieldDirectMaterial, decimal.NewFromInt(10))
	c := r.Clone()
	c.AddCharge(FieldDirectMaterial, decimal.NewFromInt(1))

	if !r.Charge(FieldDirectMaterial).Equal(decimal.NewFromInt(10)) {
		t.Errorf("original mutated: %s", r.Charge(FieldDirectMaterial))
	}
}

func TestParseField(t *testing.T) {
	for _, f := range Fields() {
		got, err := ParseField(f.String())
		if err != nil || got != f {
			t.Errorf("ParseField(%q) = %v, %v", f.String(), got, err)
		}
	}
	if _, err := ParseField("bogus"); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestPeriodIndex(t *testing.T) {
	a, b := Period("2024-01"), Period("2023-11")
	if a.Index()-b.Index() != 2 {
		t.Errorf("distance = %d, want 2", a.Index()-b.Index())
	}
	if Period("junk").Index() != -1 {
		t.Error("invalid period should index to -1")
	}
	if _, err := ParsePeriod("2024-13"); err == nil {
		t.Error("expected error for month 13")
	}
}

func TestEffectiveQuantity(t *testing.T) {
	c := Component{Quantity: decimal.NewFromInt(2), ScrapRate: decimal.RequireFromString("0.01")}
	got, _ := c.EffectiveQuantity().Float64()
	if got < 2.0202 || got > 2.0203 {
		t.Errorf("EffectiveQuantity = %v, want ~2.0202", got)
	}
}
