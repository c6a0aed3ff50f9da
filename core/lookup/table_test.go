package lookup

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"landed-cost/core/types"
)

func TestTableLookups(t *testing.T) {
	tbl := NewTable()
	tbl.SetCost("CPU-CHIP", "MFG-MEXICO", "2024-01", UnitCost{Unit: decimal.NewFromInt(120), Currency: "USD"})
	tbl.SetLabor("LAPTOP-X1", "MFG-MEXICO", "2024-01", Labor{
		Hours: decimal.RequireFromString("1.5"), Rate: decimal.NewFromInt(20), Currency: "USD",
	})
	tbl.SetVolume("LAPTOP-X1", "MFG-MEXICO", "2024-01", decimal.NewFromInt(1000))
	tbl.SetVolume("COMPUTE-MODULE", "MFG-MEXICO", "2024-01", decimal.NewFromInt(500))
	tbl.SetVolume("LAPTOP-X1", "MFG-CHINA", "2024-02", decimal.NewFromInt(10))

	if c, ok := tbl.Cost("CPU-CHIP", "MFG-MEXICO", "2024-01"); !ok || !c.Unit.Equal(decimal.NewFromInt(120)) {
		t.Errorf("Cost = %v, %v", c, ok)
	}
	if _, ok := tbl.Cost("CPU-CHIP", "MFG-MEXICO", "2024-02"); ok {
		t.Error("absent period should miss")
	}
	if l, ok := tbl.Labor("LAPTOP-X1", "MFG-MEXICO", "2024-01"); !ok || !l.Cost().Equal(decimal.NewFromInt(30)) {
		t.Errorf("Labor = %v, %v", l, ok)
	}
	if got := tbl.VolumesAt("MFG-MEXICO", "2024-01"); len(got) != 2 {
		t.Errorf("VolumesAt = %v", got)
	}
	if got := tbl.Periods(); !reflect.DeepEqual(got, []types.Period{"2024-01", "2024-02"}) {
		t.Errorf("Periods = %v", got)
	}
}

func TestTableClone(t *testing.T) {
	tbl := NewTable()
	tbl.SetCost("PCB-BLANK", "MFG-CHINA", "2024-01", UnitCost{Unit: decimal.NewFromInt(8), Currency: "CNY"})
	c := tbl.Clone()
	c.SetCost("PCB-BLANK", "MFG-CHINA", "2024-01", UnitCost{Unit: decimal.NewFromInt(99), Currency: "CNY"})

	got, _ := tbl.Cost("PCB-BLANK", "MFG-CHINA", "2024-01")
	if !got.Unit.Equal(decimal.NewFromInt(8)) {
		t.Errorf("clone mutation leaked: %s", got.Unit)
	}
	if costs, _, _ := tbl.Len(); costs != 1 {
		t.Errorf("Len costs = %d", costs)
	}
}
