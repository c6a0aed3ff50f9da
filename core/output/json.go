package output

import (
	"encoding/json"
	"io"

	"landed-cost/core/engine"
)

// JSONFormatter writes indented JSON
type JSONFormatter struct{}

// Format implements Formatter
func (JSONFormatter) Format() Format { return FormatJSON }

// Render implements Formatter
func (JSONFormatter) Render(w io.Writer, res *engine.Result, _ Options) error {
	return encode(w, res)
}

// RenderWhatIf implements Formatter
func (JSONFormatter) RenderWhatIf(w io.Writer, wi *engine.WhatIfResult, opts Options) error {
	if opts.ShowDetails {
		return encode(w, wi)
	}
	return encode(w, struct {
		Scenario string         `json:"scenario"`
		Deltas   []engine.Delta `json:"deltas"`
	}{wi.Scenario, wi.Deltas})
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
