package output

import (
	"io"

	"landed-cost/core/engine"
)

// MarkdownFormatter writes a markdown report
type MarkdownFormatter struct{}

// Format implements Formatter
func (MarkdownFormatter) Format() Format { return FormatMarkdown }

// Render implements Formatter
func (MarkdownFormatter) Render(w io.Writer, res *engine.Result, opts Options) error {
	p := &printer{w: w}
	p.println("# Landed Cost Report")
	p.println("")
	p.printf("**Run:** `%s`  \n", res.RunID)
	p.printf("**Base currency:** %s\n", res.BaseCurrency)
	p.println("")

	p.println("## Records")
	p.println("")
	p.println("| Record | Currency | Total | Weighted average | Variance |")
	p.println("|--------|----------|------:|-----------------:|---------:|")
	for _, rec := range res.Records {
		p.printf("| `%s` | %s | %s | %s | %s |\n", rec.Key, rec.Currency,
			rec.TotalCost.StringFixed(2), rec.WeightedAverageCost.StringFixed(2), rec.Variance.StringFixed(2))
	}
	p.println("")

	if len(res.Transfers) > 0 {
		p.println("## Transfers")
		p.println("")
		p.println("| Product | Destination | Source | Hops | Markup | Duty | Landed |")
		p.println("|---------|-------------|--------|-----:|-------:|-----:|-------:|")
		for _, t := range res.Transfers {
			p.printf("| %s | %s | %s | %d | %s | %s | **%s** |\n", t.Product, t.Destination, t.Source,
				len(t.Hops), t.Markup.StringFixed(2), t.Duty.StringFixed(2), t.FinalCost.StringFixed(2))
		}
		p.println("")
	}

	if len(res.Warnings) > 0 {
		p.println("## Warnings")
		p.println("")
		for _, w := range res.Warnings {
			p.printf("- %s\n", w)
		}
	}
	return p.err
}

// RenderWhatIf implements Formatter
func (MarkdownFormatter) RenderWhatIf(w io.Writer, wi *engine.WhatIfResult, _ Options) error {
	p := &printer{w: w}
	p.printf("# Scenario %s\n\n", wi.Scenario)
	p.println("| Record | Currency | Baseline | Scenario | Change |")
	p.println("|--------|----------|---------:|---------:|-------:|")
	for _, d := range wi.Deltas {
		p.printf("| `%s` | %s | %s | %s | %s |\n", d.Key, d.Currency,
			d.Baseline.StringFixed(2), d.Scenario.StringFixed(2), signed(d.Change.StringFixed(2)))
	}
	return p.err
}
