package api

import (
	"time"

	"landed-cost/adapters/sqlite"
	"landed-cost/core/engine"
)

// CalculateRequest is the body of POST /calculate. Every field is optional.
type CalculateRequest struct {
	Strict bool `json:"strict"`

	// Save stores the run when the server has a database
	Save  bool   `json:"save"`
	Label string `json:"label,omitempty"`
}

// CalculateResponse wraps an engine result
type CalculateResponse struct {
	RequestID string         `json:"request_id"`
	Saved     bool           `json:"saved"`
	Result    *engine.Result `json:"result"`
	Metadata  *Metadata      `json:"metadata"`
}

// WhatIfResponse wraps a scenario evaluation
type WhatIfResponse struct {
	RequestID string               `json:"request_id"`
	WhatIf    *engine.WhatIfResult `json:"whatif"`
	Metadata  *Metadata            `json:"metadata"`
}

// RunsResponse lists stored runs
type RunsResponse struct {
	Runs  []*sqlite.Run `json:"runs"`
	Count int           `json:"count"`
}

// Metadata describes how a response was produced
type Metadata struct {
	InputHash     string    `json:"input_hash"`
	EngineVersion string    `json:"engine_version"`
	Sources       []string  `json:"sources"`
	DurationMs    int64     `json:"duration_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// ErrorBody is the error envelope of every failed request
type ErrorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}
