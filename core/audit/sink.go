// Package audit receives write-only records of every charge the engine
// applies.
package audit

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"landed-cost/core/types"
)

// Sink is fire-and-forget from the engine's side
type Sink interface {
	Record(product types.ProductID, entity types.EntityID, ruleID string, amount decimal.Decimal, description string)
	Log(event string, details map[string]any)
}

// Entry is one recorded charge
type Entry struct {
	Time        time.Time       `json:"time"`
	Product     types.ProductID `json:"product"`
	Entity      types.EntityID  `json:"entity"`
	RuleID      string          `json:"rule_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Event is one logged event
type Event struct {
	Time    time.Time      `json:"time"`
	Name    string         `json:"name"`
	Details map[string]any `json:"details,omitempty"`
}

// ZapSink writes audit entries through a named zap logger
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink creates a sink on a child of logger
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{log: logger.Named("audit")}
}

// Record implements Sink
func (s *ZapSink) Record(product types.ProductID, entity types.EntityID, ruleID string, amount decimal.Decimal, description string) {
	s.log.Debug("charge",
		zap.String("product", string(product)),
		zap.String("entity", string(entity)),
		zap.String("rule", ruleID),
		zap.String("amount", amount.String()),
		zap.String("description", description))
}

// Log implements Sink
func (s *ZapSink) Log(event string, details map[string]any) {
	fields := make([]zap.Field, 0, len(details))
	for k, v := range details {
		fields = append(fields, zap.Any(k, v))
	}
	s.log.Info(event, fields...)
}

// Memory keeps everything in memory; safe for concurrent use
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	events  []Event
}

// NewMemory creates an empty in-memory sink
func NewMemory() *Memory {
	return &Memory{}
}

// Record implements Sink
func (m *Memory) Record(product types.ProductID, entity types.EntityID, ruleID string, amount decimal.Decimal, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{
		Time:        time.Now(),
		Product:     product,
		Entity:      entity,
		RuleID:      ruleID,
		Amount:      amount,
		Description: description,
	})
}

// Log implements Sink
func (m *Memory) Log(event string, details map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{Time: time.Now(), Name: event, Details: details})
}

// Entries returns a copy of the recorded charges
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Events returns a copy of the logged events
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// ForRule returns the charges recorded by one rule
func (m *Memory) ForRule(ruleID string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.RuleID == ruleID {
			out = append(out, e)
		}
	}
	return out
}

// Tee fans out to several sinks
type Tee []Sink

// Record implements Sink
func (t Tee) Record(product types.ProductID, entity types.EntityID, ruleID string, amount decimal.Decimal, description string) {
	for _, s := range t {
		s.Record(product, entity, ruleID, amount, description)
	}
}

// Log implements Sink
func (t Tee) Log(event string, details map[string]any) {
	for _, s := range t {
		s.Log(event, details)
	}
}
