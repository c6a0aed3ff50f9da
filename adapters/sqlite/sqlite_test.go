package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"landed-cost/core/engine"
	"landed-cost/core/lookup"
	"landed-cost/core/model"
	"landed-cost/core/types"
	"landed-cost/internal/errors"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "costs.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLoadIntoMergesTables(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	steps := []func() error{
		func() error {
			return db.PutCost(ctx, "PCB", "MFG-MEXICO", "2024-01", lookup.UnitCost{Unit: d("4.25"), Currency: "USD"})
		},
		func() error {
			return db.PutCost(ctx, "PCB", "MFG-MEXICO", "2024-01", lookup.UnitCost{Unit: d("4.50"), Currency: "USD"})
		},
		func() error {
			return db.PutLabor(ctx, "KIT", "MFG-MEXICO", "2024-01", lookup.Labor{Hours: d("0.5"), Rate: d("16"), Currency: "USD"})
		},
		func() error { return db.PutVolume(ctx, "KIT", "MFG-MEXICO", "2024-01", d("1000")) },
		func() error { return db.PutRate(ctx, "MXN", "USD", "2024-01", d("0.05")) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	m := model.New()
	m.Costs.SetCost("PCB", "MFG-MEXICO", "2024-01", lookup.UnitCost{Unit: d("9"), Currency: "USD"})
	m.Costs.SetCost("CPU", "MFG-MEXICO", "2024-01", lookup.UnitCost{Unit: d("150"), Currency: "USD"})
	if err := db.LoadInto(ctx, m); err != nil {
		t.Fatalf("LoadInto failed: %v", err)
	}

	pcb, _ := m.Costs.Cost("PCB", "MFG-MEXICO", "2024-01")
	if !pcb.Unit.Equal(d("4.5")) {
		t.Errorf("PCB = %s, want the upserted database value", pcb.Unit)
	}
	if _, ok := m.Costs.Cost("CPU", "MFG-MEXICO", "2024-01"); !ok {
		t.Error("file-defined cost lost on merge")
	}
	labor, ok := m.Costs.Labor("KIT", "MFG-MEXICO", "2024-01")
	if !ok || !labor.Cost().Equal(d("8")) {
		t.Errorf("labor = %+v", labor)
	}
	if v, ok := m.Costs.Volume("KIT", "MFG-MEXICO", "2024-01"); !ok || !v.Equal(d("1000")) {
		t.Errorf("volume = %s", v)
	}
	if r, err := m.Rates.Rate("USD", "MXN", "2024-01"); err != nil || !r.Equal(d("20")) {
		t.Errorf("inverse rate = %s, %v", r, err)
	}
	if len(m.Sources) != 1 {
		t.Errorf("sources = %v", m.Sources)
	}
}

func result(id string, at time.Time, totals map[types.ProductID]string) *engine.Result {
	res := &engine.Result{RunID: id, BaseCurrency: "USD", CalculatedAt: at}
	for p, total := range totals {
		rec := types.NewCostRecord(types.CostKey{Product: p, Entity: "MFG-MEXICO", Period: "2024-01"}, "MXN")
		rec.AddCharge(types.FieldDirectMaterial, d(total))
		res.Records = append(res.Records, rec)
	}
	return res
}

func TestRunHistory(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	t0 := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	if _, err := db.SaveRun(ctx, "plan", result("run-a", t0, map[types.ProductID]string{"LAPTOP": "100", "BOARD": "40", "OLD": "5"})); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if _, err := db.SaveRun(ctx, "plan", result("run-b", t0.Add(time.Hour), map[types.ProductID]string{"LAPTOP": "110", "BOARD": "40"})); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if _, err := db.SaveRun(ctx, "scratch", result("run-c", t0.Add(2*time.Hour), nil)); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	latest, err := db.LatestRun(ctx, "plan")
	if err != nil || latest.ID != "run-b" {
		t.Fatalf("LatestRun = %+v, %v", latest, err)
	}
	if !latest.CreatedAt.Equal(t0.Add(time.Hour)) || latest.Records != 2 || len(latest.Payload) == 0 {
		t.Errorf("stored run = %+v", latest)
	}

	all, err := db.ListRuns(ctx, ListFilter{})
	if err != nil || len(all) != 3 || all[0].ID != "run-c" {
		t.Errorf("ListRuns = %v, %v", all, err)
	}

	cmp, err := db.CompareRuns(ctx, "run-a", "run-b")
	if err != nil {
		t.Fatalf("CompareRuns failed: %v", err)
	}
	if len(cmp.Changes) != 2 {
		t.Fatalf("changes = %+v", cmp.Changes)
	}
	for _, ch := range cmp.Changes {
		switch ch.Key.Product {
		case "LAPTOP":
			if !ch.Delta.Equal(d("10")) || !ch.Percent.Equal(d("10")) {
				t.Errorf("LAPTOP change = %+v", ch)
			}
		case "OLD":
			if !ch.New.IsZero() || !ch.Delta.Equal(d("-5")) || ch.Currency != "MXN" {
				t.Errorf("OLD change = %+v", ch)
			}
		default:
			t.Errorf("unexpected change %+v", ch)
		}
	}

	if err := db.DeleteRun(ctx, "run-a"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := db.GetRun(ctx, "run-a"); !errors.IsType(err, errors.TypeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := db.DeleteRun(ctx, "run-a"); !errors.IsType(err, errors.TypeNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	src := model.New()
	src.Costs.SetCost("PCB", "MFG-CHINA", "2024-01", lookup.UnitCost{Unit: d("8.5"), Currency: "CNY"})
	src.Costs.SetCost("CPU", "MFG-CHINA", "2024-01", lookup.UnitCost{Unit: d("150"), Currency: "USD"})
	src.Costs.SetLabor("KIT", "MFG-CHINA", "2024-01", lookup.Labor{Hours: d("2"), Rate: d("40"), Currency: "CNY"})
	src.Costs.SetVolume("KIT", "MFG-CHINA", "2024-01", d("3000"))
	src.Rates.Set("CNY", "USD", "2024-01", d("0.125"))

	stats, err := db.Import(ctx, src.Costs, src.Rates)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if stats != (ImportStats{Costs: 2, Labor: 1, Volumes: 1, Rates: 1}) || stats.Total() != 5 {
		t.Errorf("stats = %+v", stats)
	}

	// a second import upserts rather than duplicating
	if _, err := db.Import(ctx, src.Costs, nil); err != nil {
		t.Fatalf("second Import failed: %v", err)
	}
	costs, rates, err := db.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables failed: %v", err)
	}
	if c, l, v := costs.Len(); c != 2 || l != 1 || v != 1 {
		t.Errorf("Len = %d %d %d", c, l, v)
	}
	if pcb, ok := costs.Cost("PCB", "MFG-CHINA", "2024-01"); !ok || !pcb.Unit.Equal(d("8.5")) || pcb.Currency != "CNY" {
		t.Errorf("PCB = %+v", pcb)
	}
	if r, err := rates.Rate("CNY", "USD", "2024-01"); err != nil || !r.Equal(d("0.125")) {
		t.Errorf("rate = %s, %v", r, err)
	}
}
