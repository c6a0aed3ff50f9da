package determinism

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"landed-cost/core/types"
)

func TestHashPartsSeparatesBoundaries(t *testing.T) {
	if HashParts("ab", "c") == HashParts("a", "bc") {
		t.Error("hashes should differ when part boundaries differ")
	}
	if HashParts("x", "y") != HashParts("x", "y") {
		t.Error("hash must be deterministic")
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a, err := NewMoney("10.50", types.CurrencyUSD)
	if err != nil {
		t.Fatal(err)
	}
	b := NewMoneyFromDecimal(decimal.NewFromFloat(0.5), types.CurrencyUSD)
	sum := a.Add(b).MulFloat(2)
	if sum.String() != "22.00 USD" {
		t.Errorf("sum = %s, want 22.00 USD", sum)
	}
	if a.Cmp(b) <= 0 {
		t.Error("expected a > b")
	}
}

func TestMoneyCurrencyMismatchPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on currency mismatch")
		}
	}()
	Zero(types.CurrencyUSD).Add(Zero(types.CurrencyEUR))
}

func TestSortCostKeys(t *testing.T) {
	keys := []types.CostKey{
		{Product: "B", Entity: "E1", Period: "2024-01"},
		{Product: "A", Entity: "E2", Period: "2024-01"},
		{Product: "A", Entity: "E1", Period: "2024-02"},
		{Product: "A", Entity: "E1", Period: "2024-01"},
	}
	SortCostKeys(keys)
	want := []types.CostKey{
		{Product: "A", Entity: "E1", Period: "2024-01"},
		{Product: "A", Entity: "E1", Period: "2024-02"},
		{Product: "A", Entity: "E2", Period: "2024-01"},
		{Product: "B", Entity: "E1", Period: "2024-01"},
	}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("sorted = %v", keys)
	}
	if got := SortedKeys(map[string]int{"b": 1, "a": 2}); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("SortedKeys = %v", got)
	}
}
