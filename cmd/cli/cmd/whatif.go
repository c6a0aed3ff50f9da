package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"landed-cost/core/engine"
	"landed-cost/core/lookup"
	"landed-cost/core/model"
	"landed-cost/core/types"
)

var (
	whatifName   string
	whatifCosts  []string
	whatifRates  []string
	whatifFormat string
)

var whatifCmd = &cobra.Command{
	Use:   "whatif [model-path]",
	Short: "Compare a scenario against the baseline calculation",
	Long: `Run the baseline calculation, apply cost and exchange-rate overrides to a
copy of it and report the records whose totals change.

Overrides:
  --cost ITEM:ENTITY:PERIOD=AMOUNT[:CURRENCY]
  --rate FROM:TO:PERIOD=RATE

Examples:
  landed-cost whatif --cost CPU-CHIP:MFG-CHINA:2024-01=165 ./model
  landed-cost whatif --name "peso +10%" --rate MXN:USD:2024-01=0.055 ./model`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWhatIf,
}

func init() {
	rootCmd.AddCommand(whatifCmd)
	whatifCmd.Flags().StringVar(&whatifName, "name", "what-if", "scenario name")
	whatifCmd.Flags().StringArrayVar(&whatifCosts, "cost", nil, "unit cost override (repeatable)")
	whatifCmd.Flags().StringArrayVar(&whatifRates, "rate", nil, "exchange rate override (repeatable)")
	whatifCmd.Flags().StringVarP(&whatifFormat, "format", "f", "", "output format (cli, json, markdown)")
	addInputFlags(whatifCmd)
}

func runWhatIf(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := openSession(ctx, modelPath(args))
	if err != nil {
		return err
	}
	defer s.Close()
	defer s.FlushMetrics()

	sc, err := buildScenario(s.Model, whatifName, whatifCosts, whatifRates)
	if err != nil {
		return err
	}
	if len(sc.Costs)+len(sc.Rates) == 0 {
		return fmt.Errorf("no overrides given; use --cost or --rate")
	}

	f, opts, err := formatter(whatifFormat)
	if err != nil {
		return err
	}

	if res, err := s.Engine.Calculate(ctx); res == nil {
		return err
	}
	wr, err := s.Engine.WhatIf(ctx, sc)
	if wr == nil {
		return err
	}
	return f.RenderWhatIf(cmd.OutOrStdout(), wr, opts)
}

func buildScenario(m *model.Model, name string, costs, rates []string) (engine.Scenario, error) {
	sc := engine.Scenario{Name: name}
	for _, arg := range costs {
		o, err := parseCostOverride(m, arg)
		if err != nil {
			return sc, err
		}
		sc.Costs = append(sc.Costs, o)
	}
	for _, arg := range rates {
		o, err := parseRateOverride(arg)
		if err != nil {
			return sc, err
		}
		sc.Rates = append(sc.Rates, o)
	}
	return sc, nil
}

// splitOverride splits "A:B:C=VALUE[:EXTRA]" into its key parts and value parts
func splitOverride(arg string) ([]string, []string, error) {
	lhs, rhs, ok := strings.Cut(arg, "=")
	if !ok || lhs == "" || rhs == "" {
		return nil, nil, fmt.Errorf("invalid override %q: expected KEY=VALUE", arg)
	}
	return strings.Split(lhs, ":"), strings.Split(rhs, ":"), nil
}

func parseCostOverride(m *model.Model, arg string) (engine.CostOverride, error) {
	keys, vals, err := splitOverride(arg)
	if err != nil {
		return engine.CostOverride{}, err
	}
	if len(keys) != 3 || len(vals) > 2 {
		return engine.CostOverride{}, fmt.Errorf("invalid cost override %q: expected ITEM:ENTITY:PERIOD=AMOUNT[:CURRENCY]", arg)
	}
	period, err := types.ParsePeriod(keys[2])
	if err != nil {
		return engine.CostOverride{}, err
	}
	amount, err := decimal.NewFromString(vals[0])
	if err != nil {
		return engine.CostOverride{}, fmt.Errorf("invalid amount in %q: %w", arg, err)
	}

	o := engine.CostOverride{
		Item:   types.ProductID(keys[0]),
		Entity: types.EntityID(keys[1]),
		Period: period,
		Cost:   lookup.UnitCost{Unit: amount},
	}
	switch {
	case len(vals) == 2:
		o.Cost.Currency = types.Currency(strings.ToUpper(vals[1]))
	default:
		// keep the currency the cost is already quoted in
		if cur, ok := m.Costs.Cost(o.Item, o.Entity, o.Period); ok {
			o.Cost.Currency = cur.Currency
		} else if ent, ok := m.Entity(o.Entity); ok {
			o.Cost.Currency = ent.Currency
		} else {
			return o, fmt.Errorf("unknown entity %s in %q; give the currency explicitly", o.Entity, arg)
		}
	}
	return o, nil
}

func parseRateOverride(arg string) (engine.RateOverride, error) {
	keys, vals, err := splitOverride(arg)
	if err != nil {
		return engine.RateOverride{}, err
	}
	if len(keys) != 3 || len(vals) != 1 {
		return engine.RateOverride{}, fmt.Errorf("invalid rate override %q: expected FROM:TO:PERIOD=RATE", arg)
	}
	period, err := types.ParsePeriod(keys[2])
	if err != nil {
		return engine.RateOverride{}, err
	}
	rate, err := decimal.NewFromString(vals[0])
	if err != nil || !rate.IsPositive() {
		return engine.RateOverride{}, fmt.Errorf("invalid rate in %q", arg)
	}
	return engine.RateOverride{
		From:   types.Currency(strings.ToUpper(keys[0])),
		To:     types.Currency(strings.ToUpper(keys[1])),
		Period: period,
		Rate:   rate,
	}, nil
}
