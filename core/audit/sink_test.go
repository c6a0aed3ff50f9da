package audit

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMemoryConcurrentRecord(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record("LAPTOP-X1", "MFG-MEXICO", "RULE-002", decimal.NewFromInt(1), "labor burden")
		}()
	}
	wg.Wait()
	m.Log("calculation complete", map[string]any{"records": 1})

	if got := len(m.Entries()); got != 50 {
		t.Errorf("entries = %d, want 50", got)
	}
	if got := len(m.ForRule("RULE-002")); got != 50 {
		t.Errorf("ForRule = %d", got)
	}
	if ev := m.Events(); len(ev) != 1 || ev[0].Name != "calculation complete" {
		t.Errorf("events = %v", ev)
	}
}

func TestZapSinkWritesNamedEntries(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := NewZapSink(zap.New(core))
	mem := NewMemory()

	Tee{sink, mem}.Record("LAPTOP-X1", "MFG-MEXICO", "RULE-004", decimal.RequireFromString("2.5"), "overhead")

	entries := logs.FilterLoggerName("audit").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["rule"]; got != "RULE-004" {
		t.Errorf("rule field = %v", got)
	}
	if len(mem.Entries()) != 1 {
		t.Error("tee did not reach the memory sink")
	}
}
