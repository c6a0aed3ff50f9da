package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"landed-cost/core/lookup"
	"landed-cost/core/model"
	"landed-cost/core/types"
)

func testModel() *model.Model {
	m := model.New()
	m.Entities = []types.Entity{{ID: "MFG-CHINA", Type: types.EntityManufacturing, Country: "CN", Currency: "CNY"}}
	m.Costs.SetCost("CPU", "MFG-CHINA", "2024-01", lookup.UnitCost{Unit: decimal.RequireFromString("150"), Currency: "USD"})
	return m
}

func TestParseCostOverride(t *testing.T) {
	m := testModel()
	tests := []struct {
		name     string
		arg     string
		currency types.Currency
		wantErr  bool
	}{
		{"explicit currency", "PCB:MFG-CHINA:2024-01=9.5:eur", "EUR", false},
		{"existing cost currency", "CPU:MFG-CHINA:2024-01=165", "USD", false},
		{"entity currency", "PCB:MFG-CHINA:2024-01=60", "CNY", false},
		{"unknown entity", "PCB:NOWHERE:2024-01=1", "", true},
		{"missing value", "PCB:MFG-CHINA:2024-01", "", true},
		{"bad period", "PCB:MFG-CHINA:2024-13=1", "", true},
		{"bad amount", "PCB:MFG-CHINA:2024-01=abc", "", true},
		{"short key", "PCB:2024-01=1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseCostOverride(m, tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", o)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCostOverride failed: %v", err)
			}
			if o.Cost.Currency != tt.currency {
				t.Errorf("currency = %s, want %s", o.Cost.Currency, tt.currency)
			}
		})
	}
}

func TestParseRateOverride(t *testing.T) {
	o, err := parseRateOverride("mxn:usd:2024-01=0.055")
	if err != nil {
		t.Fatalf("parseRateOverride failed: %v", err)
	}
	if o.From != "MXN" || o.To != "USD" || o.Period != "2024-01" || o.Rate.String() != "0.055" {
		t.Errorf("override = %+v", o)
	}
	for _, bad := range []string{"MXN:USD:2024-01=0", "MXN:USD:2024-01=-1", "MXN:USD=1", "MXN:USD:2024-01=1:X"} {
		if _, err := parseRateOverride(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestCalculateCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"calculate", "--format", "json", filepath.Join("..", "..", "..", "testdata", "laptop.hcl")})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("calculate failed: %v\n%s", err, errOut.String())
	}

	var res struct {
		Records []struct {
			Key struct {
				Product string `json:"product"`
			} `json:"key"`
		} `json:"records"`
	}
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	found := false
	for _, r := range res.Records {
		if r.Key.Product == "LAPTOP-X1" {
			found = true
		}
	}
	if !found {
		t.Errorf("LAPTOP-X1 missing from %d records", len(res.Records))
	}
}
