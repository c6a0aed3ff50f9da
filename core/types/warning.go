package types

import "fmt"

// WarningKind classifies a non-fatal data problem
type WarningKind string

const (
	WarnMissingCost   WarningKind = "missing-cost"
	WarnMissingRate   WarningKind = "missing-rate"
	WarnMissingPath   WarningKind = "missing-path"
	WarnMissingLabor  WarningKind = "missing-labor"
	WarnMissingVolume WarningKind = "missing-volume"
	WarnConvergence   WarningKind = "convergence"
)

// Warning records a data gap whose contribution was treated as zero
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Key     CostKey     `json:"key"`
	Rule    string      `json:"rule,omitempty"`
	Message string      `json:"message"`
}

// String returns a one-line description
func (w Warning) String() string {
	return fmt.Sprintf("%s %s: %s", w.Kind, w.Key, w.Message)
}
