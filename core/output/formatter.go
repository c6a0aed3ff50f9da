// Package output renders calculation results for people and machines.
package output

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"landed-cost/core/engine"
	"landed-cost/internal/errors"
)

// Format represents output format type
type Format string

const (
	// FormatCLI is a human-readable table
	FormatCLI Format = "cli"

	// FormatJSON is machine-readable JSON
	FormatJSON Format = "json"

	// FormatMarkdown is a markdown report
	FormatMarkdown Format = "markdown"
)

// Options control rendering
type Options struct {
	// ShowDetails adds the itemized charges of each record
	ShowDetails bool
}

// Formatter produces output in a specific format
type Formatter interface {
	// Format returns the format type
	Format() Format

	// Render writes a calculation result
	Render(w io.Writer, res *engine.Result, opts Options) error

	// RenderWhatIf writes a scenario and its deltas against the baseline
	RenderWhatIf(w io.Writer, wi *engine.WhatIfResult, opts Options) error
}

// Registry holds formatters by format
type Registry struct {
	mu         sync.RWMutex
	formatters map[Format]Formatter
}

// NewRegistry returns a registry with the built-in formatters
func NewRegistry() *Registry {
	r := &Registry{formatters: make(map[Format]Formatter)}
	for _, f := range []Formatter{CLIFormatter{}, JSONFormatter{}, MarkdownFormatter{}} {
		_ = r.Register(f)
	}
	return r
}

// Register adds a formatter; a format can only be registered once
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.formatters[f.Format()]; dup {
		return errors.Newf(errors.TypeConfig, "formatter %s already registered", f.Format())
	}
	r.formatters[f.Format()] = f
	return nil
}

// Get returns the formatter for a format name
func (r *Registry) Get(format string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formatters[Format(format)]
	if !ok {
		return nil, errors.Newf(errors.TypeInput, "unknown output format %q (have %v)", format, r.names())
	}
	return f, nil
}

// Formats lists the registered formats
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	out := make([]string, 0, len(r.formatters))
	for f := range r.formatters {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// printer keeps the first write error so renderers can write freely
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) println(s string) {
	p.printf("%s\n", s)
}
