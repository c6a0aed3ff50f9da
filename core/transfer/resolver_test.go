package transfer

import (
	"testing"

	"github.com/shopspring/decimal"

	"landed-cost/core/types"
	"landed-cost/internal/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func network() ([]types.Entity, []types.Route) {
	entities := []types.Entity{
		{ID: "MFG-CHINA", Type: types.EntityManufacturing, Country: "CN", Currency: "CNY"},
		{ID: "MFG-MEXICO", Type: types.EntityManufacturing, Country: "MX", Currency: "MXN"},
		{ID: "HUB-MEXICO", Type: types.EntityDistribution, Country: "MX", Currency: "MXN"},
		{ID: "DIST-US", Type: types.EntityDistribution, Country: "US", Currency: "USD"},
		{ID: "DIST-BR", Type: types.EntityDistribution, Country: "BR", Currency: "USD"},
	}
	routes := []types.Route{
		{From: "MFG-CHINA", To: "DIST-US", MarkupType: types.MarkupCostPlus, MarkupValue: 0.30},
		{From: "MFG-MEXICO", To: "DIST-US", MarkupType: types.MarkupCostPlus, MarkupValue: 0.40},
		{From: "MFG-MEXICO", To: "HUB-MEXICO", MarkupType: types.MarkupCostPlus, MarkupValue: 0.05},
		{From: "HUB-MEXICO", To: "DIST-US", MarkupType: types.MarkupCostPlus, MarkupValue: 0.05},
	}
	return entities, routes
}

func flatCost(amount string) CostFunc {
	return func(types.ProductID, types.EntityID, types.Period) (decimal.Decimal, bool) {
		return dec(amount), true
	}
}

func TestSelectBestPathPrefersCheaperMultiHop(t *testing.T) {
	r, err := NewResolver(network())
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	sel, ok, w := r.SelectBestPath("LAPTOP-X1", "DIST-US", "2024-01", flatCost("100"))
	if !ok || w != nil {
		t.Fatalf("expected a selection, got warning %v", w)
	}

	// China direct: 130 * 1.025 = 133.25
	// Mexico via hub: 100 * 1.05 * 1.05 * 1.025 = 113.00625
	if sel.Source != "MFG-MEXICO" {
		t.Errorf("source = %s, want MFG-MEXICO", sel.Source)
	}
	if len(sel.Hops) != 2 || sel.Hops[0].Entity != "HUB-MEXICO" {
		t.Errorf("hops = %+v", sel.Hops)
	}
	if !sel.FinalCost.Equal(dec("113.00625")) {
		t.Errorf("FinalCost = %s", sel.FinalCost)
	}
	if !sel.Hops[0].Duty.IsZero() {
		t.Errorf("domestic hop charged duty %s", sel.Hops[0].Duty)
	}
	if !sel.Duty.Equal(dec("2.75625")) {
		t.Errorf("Duty = %s", sel.Duty)
	}
	if !sel.SourceCost.Add(sel.Markup).Add(sel.Duty).Equal(sel.FinalCost) {
		t.Errorf("source + markup + duty != final: %+v", sel)
	}
	if sel.Candidates != 3 {
		t.Errorf("Candidates = %d, want 3", sel.Candidates)
	}
	if got := sel.Path(); len(got) != 3 || got[0] != "MFG-MEXICO" || got[2] != "DIST-US" {
		t.Errorf("Path = %v", got)
	}
}

func TestSelectBestPathDepthBound(t *testing.T) {
	entities, routes := network()
	r, err := NewResolver(entities, routes, WithMaxDepth(1))
	if err != nil {
		t.Fatal(err)
	}
	sel, ok, _ := r.SelectBestPath("LAPTOP-X1", "DIST-US", "2024-01", flatCost("100"))
	if !ok || sel.Source != "MFG-CHINA" {
		t.Errorf("with depth 1 expected MFG-CHINA direct, got %+v", sel)
	}
}

func TestSelectBestPathTieKeepsFirstFound(t *testing.T) {
	entities := []types.Entity{
		{ID: "MFG-A", Type: types.EntityManufacturing, Country: "US"},
		{ID: "MFG-B", Type: types.EntityManufacturing, Country: "US"},
		{ID: "DIST", Type: types.EntityDistribution, Country: "US"},
	}
	routes := []types.Route{
		{From: "MFG-B", To: "DIST", MarkupType: types.MarkupCostPlus, MarkupValue: 0.1},
		{From: "MFG-A", To: "DIST", MarkupType: types.MarkupCostPlus, MarkupValue: 0.1},
	}
	r, err := NewResolver(entities, routes)
	if err != nil {
		t.Fatal(err)
	}
	sel, ok, _ := r.SelectBestPath("X", "DIST", "2024-01", flatCost("10"))
	if !ok || sel.Source != "MFG-A" {
		t.Errorf("tie should keep the first source in declaration order, got %s", sel.Source)
	}
}

func TestSelectBestPathSkipsSourcesWithoutCost(t *testing.T) {
	r, err := NewResolver(network())
	if err != nil {
		t.Fatal(err)
	}
	onlyChina := func(_ types.ProductID, e types.EntityID, _ types.Period) (decimal.Decimal, bool) {
		return dec("100"), e == "MFG-CHINA"
	}
	sel, ok, _ := r.SelectBestPath("LAPTOP-X1", "DIST-US", "2024-01", onlyChina)
	if !ok || sel.Source != "MFG-CHINA" {
		t.Errorf("got %+v", sel)
	}
}

func TestSelectBestPathMissingPathWarns(t *testing.T) {
	r, err := NewResolver(network())
	if err != nil {
		t.Fatal(err)
	}
	_, ok, w := r.SelectBestPath("LAPTOP-X1", "DIST-BR", "2024-01", flatCost("100"))
	if ok {
		t.Fatal("expected no selection")
	}
	if w == nil || w.Kind != types.WarnMissingPath || w.Key.Entity != "DIST-BR" {
		t.Errorf("warning = %v", w)
	}
}

func TestPriceMarkupTypes(t *testing.T) {
	entities := []types.Entity{
		{ID: "A", Country: "CN"},
		{ID: "B", Country: "CN"},
		{ID: "C", Country: "DE"},
	}
	tests := []struct {
		name  string
		route types.Route
		want  string
	}{
		{"cost-plus", types.Route{From: "A", To: "B", MarkupType: types.MarkupCostPlus, MarkupValue: 0.2}, "120"},
		{"resale-minus", types.Route{From: "A", To: "B", MarkupType: types.MarkupResaleMinus, MarkupValue: 0.2}, "110"},
		{"revenue-percent", types.Route{From: "A", To: "B", MarkupType: types.MarkupRevenuePercent, MarkupValue: 0.2}, "100"},
		{"cross-border into DE", types.Route{From: "A", To: "C", MarkupType: types.MarkupCostPlus, MarkupValue: 0}, "104"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewResolver(entities, []types.Route{tt.route})
			if err != nil {
				t.Fatal(err)
			}
			paths := r.FindPaths(tt.route.From, tt.route.To)
			if len(paths) != 1 {
				t.Fatalf("paths = %d", len(paths))
			}
			_, got := r.Price(paths[0], dec("100"))
			if !got.Equal(dec(tt.want)) {
				t.Errorf("Price = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDutyTable(t *testing.T) {
	d := DefaultDutyTable()
	for country, want := range map[string]string{"US": "0.025", "de": "0.04", "JP": "0.03"} {
		if got := d.Rate(country); !got.Equal(dec(want)) {
			t.Errorf("Rate(%s) = %s, want %s", country, got, want)
		}
	}
}

func TestNewResolverRejectsUnknownEntity(t *testing.T) {
	entities, _ := network()
	_, err := NewResolver(entities, []types.Route{{From: "MFG-CHINA", To: "NOWHERE"}})
	if !errors.IsType(err, errors.TypeInput) {
		t.Errorf("expected input error, got %v", err)
	}
}
