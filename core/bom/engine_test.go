package bom

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"landed-cost/core/types"
	"landed-cost/internal/errors"
)

func comp(id string, qty float64, scrap float64) types.Component {
	return types.Component{
		ItemID:    types.ProductID(id),
		Quantity:  decimal.NewFromFloat(qty),
		ScrapRate: decimal.NewFromFloat(scrap),
		Unit:      "ea",
	}
}

func entry(id string, components ...types.Component) types.BOMEntry {
	return types.BOMEntry{ProductID: types.ProductID(id), Components: components}
}

// laptopBOM is the four-level laptop structure. RAM-MODULE and PCB-BLANK
// are shared between sub-assemblies.
func laptopBOM() []types.BOMEntry {
	return []types.BOMEntry{
		entry("LAPTOP-X1", comp("COMPUTE-MODULE", 1, 0), comp("BATTERY-PACK", 1, 0), comp("CHASSIS", 1, 0.02)),
		entry("COMPUTE-MODULE", comp("MOTHERBOARD-A", 1, 0), comp("RAM-MODULE", 2, 0.01)),
		entry("MOTHERBOARD-A", comp("PCB-BLANK", 1, 0.05), comp("CPU-CHIP", 1, 0), comp("RAM-MODULE", 2, 0.01)),
		entry("BATTERY-PACK", comp("BMS-BOARD", 1, 0), comp("LI-CELL", 6, 0.03)),
		entry("BMS-BOARD", comp("PCB-BLANK", 1, 0.05)),
		entry("PCB-BLANK"),
		entry("CPU-CHIP"),
		entry("RAM-MODULE"),
	}
}

func mustEngine(t *testing.T, entries []types.BOMEntry) *Engine {
	t.Helper()
	e, err := New(entries)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func TestExplosionOrderLeavesFirst(t *testing.T) {
	e := mustEngine(t, laptopBOM())
	order := e.ExplosionOrder()

	pos := make(map[types.ProductID]int)
	for i, id := range order {
		pos[id] = i
	}
	before := [][2]types.ProductID{
		{"PCB-BLANK", "MOTHERBOARD-A"},
		{"BMS-BOARD", "BATTERY-PACK"},
		{"RAM-MODULE", "COMPUTE-MODULE"},
		{"MOTHERBOARD-A", "COMPUTE-MODULE"},
		{"COMPUTE-MODULE", "LAPTOP-X1"},
		{"LI-CELL", "BATTERY-PACK"},
	}
	for _, pair := range before {
		if pos[pair[0]] >= pos[pair[1]] {
			t.Errorf("%s should come before %s in %v", pair[0], pair[1], order)
		}
	}
	if order[len(order)-1] != "LAPTOP-X1" {
		t.Errorf("finished good should be last, got %s", order[len(order)-1])
	}
	if len(order) != 10 {
		t.Errorf("order has %d products, want 10", len(order))
	}
}

func TestExplodeMemoized(t *testing.T) {
	e := mustEngine(t, laptopBOM())

	first, err := e.Explode("LAPTOP-X1")
	if err != nil {
		t.Fatalf("Explode failed: %v", err)
	}
	afterFirst := e.Stats()

	second, err := e.Explode("LAPTOP-X1")
	if err != nil {
		t.Fatalf("Explode failed: %v", err)
	}
	afterSecond := e.Stats()

	if first != second || !reflect.DeepEqual(first, second) {
		t.Error("second explosion should return the cached node")
	}
	if afterSecond.Misses != afterFirst.Misses {
		t.Errorf("second call re-traversed children: misses %d -> %d", afterFirst.Misses, afterSecond.Misses)
	}
	if afterSecond.Hits != afterFirst.Hits+1 {
		t.Errorf("expected exactly one cache hit, hits %d -> %d", afterFirst.Hits, afterSecond.Hits)
	}
	// ten distinct products are each computed once
	if afterFirst.Misses != 10 {
		t.Errorf("misses = %d, want 10", afterFirst.Misses)
	}
}

func TestExplodeSharedSubAssemblyComputedOnce(t *testing.T) {
	e := mustEngine(t, laptopBOM())
	root, err := e.Explode("LAPTOP-X1")
	if err != nil {
		t.Fatal(err)
	}
	compute := root.Components[0].Child
	ramViaCompute := compute.Components[1].Child
	ramViaBoard := compute.Components[0].Child.Components[2].Child
	if ramViaCompute != ramViaBoard {
		t.Error("shared sub-assembly should be the same cached node")
	}
	if !ramViaCompute.IsRawMaterial {
		t.Error("RAM-MODULE should be a raw material")
	}
}

func TestExplodeEffectiveQuantity(t *testing.T) {
	e := mustEngine(t, []types.BOMEntry{entry("A", comp("B", 2, 0.01))})
	node, err := e.Explode("A")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := node.Components[0].EffectiveQuantity.Float64()
	if got < 2.02020 || got > 2.02021 {
		t.Errorf("effective quantity = %v, want 2/0.99", got)
	}
}

func TestExplodeUnknownProductIsRaw(t *testing.T) {
	e := mustEngine(t, laptopBOM())
	node, err := e.Explode("NOT-IN-BOM")
	if err != nil {
		t.Fatal(err)
	}
	if !node.IsRawMaterial || len(node.Components) != 0 {
		t.Errorf("expected raw material leaf, got %+v", node)
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		entries []types.BOMEntry
		errType errors.Type
	}{
		{"cycle", []types.BOMEntry{
			entry("A", comp("B", 1, 0)),
			entry("B", comp("C", 1, 0)),
			entry("C", comp("A", 1, 0)),
		}, errors.TypeConfig},
		{"self reference", []types.BOMEntry{entry("A", comp("A", 1, 0))}, errors.TypeConfig},
		{"scrap of one", []types.BOMEntry{entry("A", comp("B", 1, 1))}, errors.TypeInvariant},
		{"negative scrap", []types.BOMEntry{entry("A", comp("B", 1, -0.1))}, errors.TypeInvariant},
		{"zero quantity", []types.BOMEntry{entry("A", comp("B", 0, 0))}, errors.TypeInvariant},
		{"duplicate entry", []types.BOMEntry{entry("A"), entry("A")}, errors.TypeInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.entries)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsType(err, tt.errType) {
				t.Errorf("expected %s, got %v", tt.errType, err)
			}
		})
	}
}

func TestCycleErrorNamesChain(t *testing.T) {
	_, err := New([]types.BOMEntry{
		entry("A", comp("B", 1, 0)),
		entry("B", comp("A", 1, 0)),
	})
	e, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if e.Context["chain"] != "A -> B -> A" {
		t.Errorf("chain = %v", e.Context["chain"])
	}
}

func TestInflightGuardDetectsReentry(t *testing.T) {
	var s inflight
	if err := s.push("A"); err != nil {
		t.Fatal(err)
	}
	if err := s.push("B"); err != nil {
		t.Fatal(err)
	}
	err := s.push("A")
	if !errors.IsType(err, errors.TypeConfig) {
		t.Fatalf("expected circular reference error, got %v", err)
	}
	s.pop()
	if err := s.push("C"); err != nil {
		t.Errorf("push after pop failed: %v", err)
	}
}

func TestFlattenMaterials(t *testing.T) {
	e := mustEngine(t, laptopBOM())
	got := e.FlattenMaterials("COMPUTE-MODULE", decimal.NewFromInt(1))

	ram := decimal.NewFromInt(2).Div(decimal.NewFromFloat(0.99))
	wantRAM := ram.Add(ram)
	if !got["RAM-MODULE"].Equal(wantRAM) {
		t.Errorf("RAM-MODULE = %s, want %s", got["RAM-MODULE"], wantRAM)
	}
	wantPCB := decimal.NewFromInt(1).Div(decimal.NewFromFloat(0.95))
	if !got["PCB-BLANK"].Equal(wantPCB) {
		t.Errorf("PCB-BLANK = %s, want %s", got["PCB-BLANK"], wantPCB)
	}
	if _, ok := got["MOTHERBOARD-A"]; ok {
		t.Error("sub-assemblies must not appear in flattened materials")
	}

	doubled := e.FlattenMaterials("COMPUTE-MODULE", decimal.NewFromInt(2))
	if !doubled["CPU-CHIP"].Equal(decimal.NewFromInt(2)) {
		t.Errorf("CPU-CHIP at multiplier 2 = %s", doubled["CPU-CHIP"])
	}
}

func TestRebuildClearsCacheOnlyOnStructuralChange(t *testing.T) {
	e := mustEngine(t, laptopBOM())
	if _, err := e.Explode("LAPTOP-X1"); err != nil {
		t.Fatal(err)
	}

	changed, err := e.Rebuild(laptopBOM())
	if err != nil || changed {
		t.Fatalf("identical BOM should not rebuild: changed=%v err=%v", changed, err)
	}

	modified := laptopBOM()
	modified[4] = entry("BMS-BOARD", comp("PCB-BLANK", 2, 0.05))
	changed, err = e.Rebuild(modified)
	if err != nil || !changed {
		t.Fatalf("modified BOM should rebuild: changed=%v err=%v", changed, err)
	}
	node, err := e.Explode("BMS-BOARD")
	if err != nil {
		t.Fatal(err)
	}
	if !node.Components[0].Component.Quantity.Equal(decimal.NewFromInt(2)) {
		t.Error("explosion should reflect the new structure")
	}

	cyclic := laptopBOM()
	cyclic[6] = entry("CPU-CHIP", comp("LAPTOP-X1", 1, 0))
	if _, err := e.Rebuild(cyclic); !errors.IsType(err, errors.TypeConfig) {
		t.Errorf("expected config error rebuilding into a cycle, got %v", err)
	}
	if e.Fingerprint() == fingerprint(cyclic) {
		t.Error("failed rebuild must keep the previous structure")
	}
}

func TestRootsAndParents(t *testing.T) {
	e := mustEngine(t, laptopBOM())
	if roots := e.Roots(); !reflect.DeepEqual(roots, []types.ProductID{"LAPTOP-X1"}) {
		t.Errorf("Roots = %v", roots)
	}
	parents := e.Parents("PCB-BLANK")
	if len(parents) != 2 {
		t.Errorf("PCB-BLANK parents = %v, want 2", parents)
	}
	if !e.IsRaw("LI-CELL") || e.IsRaw("BMS-BOARD") {
		t.Error("IsRaw misclassified")
	}
}
