package engine

import (
	"fmt"

	"landed-cost/internal/logging"
)

// Phase is a calculation phase; phases only move forward within a run
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseBase                // base cost in explosion order
	PhaseRules               // allocation rule waves
	PhaseCycles              // royalty fixed points
	PhaseDeferred            // weighted-average and variance passes
	PhaseTransfer            // transfer pricing to distribution entities
	PhaseComplete
)

// String returns the phase name
func (p Phase) String() string {
	names := []string{
		"uninitialized", "base", "rules", "cycles",
		"deferred", "transfer", "complete",
	}
	if int(p) >= 0 && int(p) < len(names) {
		return names[p]
	}
	return "unknown"
}

// PhaseOrderError indicates an entry point was called before the phase
// it needs
type PhaseOrderError struct {
	Required Phase
	Current  Phase
}

func (e *PhaseOrderError) Error() string {
	return fmt.Sprintf("phase %s required, but current phase is %s", e.Required, e.Current)
}

// guard ensures a phase has been completed; callers hold e.run
func (e *Engine) guard(required Phase) error {
	if e.phase < required {
		return &PhaseOrderError{Required: required, Current: e.phase}
	}
	return nil
}

// runPhase times and logs one phase and advances the engine past it
func (e *Engine) runPhase(p Phase, fn func() error) error {
	done := e.metrics.Phase(p.String())
	logDone := logging.Phase(p.String())
	err := fn()
	done()
	logDone()
	if err != nil {
		return err
	}
	e.phase = p
	return nil
}
