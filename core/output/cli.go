package output

import (
	"io"
	"strings"

	"landed-cost/core/engine"
	"landed-cost/core/types"
)

const rule = "─────────────────────────────────────────────────────────────────────────────"

// CLIFormatter renders fixed-width tables
type CLIFormatter struct{}

// Format implements Formatter
func (CLIFormatter) Format() Format { return FormatCLI }

// Render implements Formatter
func (CLIFormatter) Render(w io.Writer, res *engine.Result, opts Options) error {
	p := &printer{w: w}
	p.println("")
	p.println("╔═══════════════════════════════════════════════════════════════════════════╗")
	p.println("║                           LANDED COST REPORT                              ║")
	p.println("╚═══════════════════════════════════════════════════════════════════════════╝")
	p.println("")
	p.printf("Run:            %s\n", res.RunID)
	p.printf("Periods:        %s\n", joinPeriods(res.Periods))
	p.printf("Base currency:  %s\n", res.BaseCurrency)
	if res.Incremental {
		p.printf("Incremental:    %d records recomputed\n", len(res.Recomputed))
	}
	p.println("")

	p.println("COSTS BY RECORD")
	p.println(rule)
	p.printf("%-44s %-4s %14s %14s\n", "PRODUCT@ENTITY/PERIOD", "CUR", "TOTAL", "VARIANCE")
	p.println(rule)
	for _, rec := range res.Records {
		variance := ""
		if !rec.Variance.IsZero() {
			variance = rec.Variance.StringFixed(2)
		}
		p.printf("%-44s %-4s %14s %14s\n", truncate(rec.Key.String(), 44), rec.Currency, rec.TotalCost.StringFixed(2), variance)
		if opts.ShowDetails {
			for _, f := range types.Fields() {
				if v := rec.Charge(f); !v.IsZero() {
					p.printf("  └─ %-39s %-4s %14s\n", f, "", v.StringFixed(2))
				}
			}
		}
	}
	p.println(rule)
	p.println("")

	if len(res.Transfers) > 0 {
		p.println("TRANSFER PATHS")
		p.println(rule)
		for _, t := range res.Transfers {
			path := make([]string, 0, len(t.Hops)+1)
			for _, id := range t.Path() {
				path = append(path, string(id))
			}
			p.printf("%-24s %-40s %10s\n", truncate(string(t.Product)+"@"+string(t.Destination), 24),
				truncate(strings.Join(path, " → "), 40), t.FinalCost.StringFixed(2))
			if opts.ShowDetails {
				p.printf("  └─ source %s, markup %s, duty %s, %d candidates\n",
					t.SourceCost.StringFixed(2), t.Markup.StringFixed(2), t.Duty.StringFixed(2), t.Candidates)
			}
		}
		p.println("")
	}

	if len(res.Cycles) > 0 && opts.ShowDetails {
		p.println("ROYALTY CYCLES")
		p.println(rule)
		for _, c := range res.Cycles {
			status := "converged"
			if !c.Converged {
				status = "NOT CONVERGED"
			}
			p.printf("%-44s %3d iterations  %s\n", truncate(c.Key.String(), 44), c.Iterations, status)
		}
		p.println("")
	}

	if len(res.Warnings) > 0 {
		p.println("WARNINGS")
		p.println(rule)
		for _, w := range res.Warnings {
			p.printf("⚠ %s\n", w)
		}
		p.println("")
	}

	p.printf("%d records, %d transfers, %d warnings in %s\n",
		res.Stats.Records, res.Stats.Transfers, len(res.Warnings), res.Duration)
	return p.err
}

// RenderWhatIf implements Formatter
func (f CLIFormatter) RenderWhatIf(w io.Writer, wi *engine.WhatIfResult, opts Options) error {
	p := &printer{w: w}
	p.printf("\nSCENARIO %s\n", wi.Scenario)
	p.println(rule)
	if len(wi.Deltas) == 0 {
		p.println("no record changed")
		return p.err
	}
	p.printf("%-44s %-4s %12s %12s %12s\n", "PRODUCT@ENTITY/PERIOD", "CUR", "BASELINE", "SCENARIO", "CHANGE")
	for _, d := range wi.Deltas {
		p.printf("%-44s %-4s %12s %12s %12s\n", truncate(d.Key.String(), 44), d.Currency,
			d.Baseline.StringFixed(2), d.Scenario.StringFixed(2), signed(d.Change.StringFixed(2)))
	}
	p.println(rule)
	if p.err != nil || !opts.ShowDetails {
		return p.err
	}
	return f.Render(w, wi.Result, opts)
}

func signed(s string) string {
	if strings.HasPrefix(s, "-") {
		return s
	}
	return "+" + s
}

func joinPeriods(ps []types.Period) string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return strings.Join(out, ", ")
}
