package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"landed-cost/core/bom"
	"landed-cost/core/types"
)

var (
	treeProduct string
	pathPeriod  string
)

var orderCmd = &cobra.Command{
	Use:   "order [model-path]",
	Short: "Show BOM explosion order and rule execution waves",
	Long: `Print the order products are costed in (components before the
assemblies that consume them) and the waves allocation rules run in.
With --tree, print the explosion of one product.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOrder,
}

var pathCmd = &cobra.Command{
	Use:   "path <product> <destination> [model-path]",
	Short: "Select the cheapest transfer path of a product to a destination",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runPath,
}

func init() {
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(pathCmd)
	orderCmd.Flags().StringVar(&treeProduct, "tree", "", "print the BOM explosion of a product")
	pathCmd.Flags().StringVar(&pathPeriod, "period", "", "period to price (default: first calculated period)")
	addInputFlags(orderCmd)
	addInputFlags(pathCmd)
}

func runOrder(cmd *cobra.Command, args []string) error {
	s, err := openSession(context.Background(), modelPath(args))
	if err != nil {
		return err
	}
	defer s.Close()

	w := cmd.OutOrStdout()
	if treeProduct != "" {
		node, err := s.Engine.Explode(types.ProductID(treeProduct))
		if err != nil {
			return err
		}
		printTree(w, node, "1", 0)

		materials := s.Engine.FlattenMaterials(node.ProductID, decimal.NewFromInt(1))
		fmt.Fprintln(w, "\nRaw materials per unit:")
		for _, id := range slices.Sorted(maps.Keys(materials)) {
			fmt.Fprintf(w, "  %-20s %s\n", id, materials[id].StringFixed(4))
		}
		return nil
	}

	fmt.Fprintln(w, "Explosion order:")
	for i, id := range s.Engine.ExplosionOrder() {
		fmt.Fprintf(w, "  %3d. %s\n", i+1, id)
	}
	fmt.Fprintln(w, "\nRule waves:")
	for i, wave := range s.Engine.ParallelGroups() {
		ids := make([]string, len(wave))
		for j, id := range wave {
			ids[j] = string(id)
		}
		fmt.Fprintf(w, "  wave %d: %s\n", i+1, strings.Join(ids, ", "))
	}
	return nil
}

func printTree(w io.Writer, node *bom.ExplodedNode, qty string, depth int) {
	marker := ""
	if node.IsRawMaterial {
		marker = " (raw)"
	}
	fmt.Fprintf(w, "%s%s × %s%s\n", strings.Repeat("  ", depth), node.ProductID, qty, marker)
	for _, c := range node.Components {
		printTree(w, c.Child, c.EffectiveQuantity.String(), depth+1)
	}
}

func runPath(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, modelPath(args[2:]))
	if err != nil {
		return err
	}
	defer s.Close()

	if res, err := s.Engine.Calculate(ctx); res == nil {
		return err
	}

	period := types.Period(pathPeriod)
	if period == "" {
		periods := s.Engine.Periods()
		if len(periods) == 0 {
			return fmt.Errorf("model has no periods")
		}
		period = periods[0]
	} else if _, err := types.ParsePeriod(pathPeriod); err != nil {
		return err
	}

	product, dest := types.ProductID(args[0]), types.EntityID(args[1])
	sel, ok, warn := s.Engine.SelectBestPath(product, dest, period)
	w := cmd.OutOrStdout()
	if !ok {
		if warn != nil {
			return fmt.Errorf("%s", warn.Message)
		}
		return fmt.Errorf("no transfer path for %s to %s", product, dest)
	}

	path := make([]string, 0, len(sel.Hops)+1)
	for _, id := range sel.Path() {
		path = append(path, string(id))
	}
	fmt.Fprintf(w, "%s → %s (%s)\n", product, dest, period)
	fmt.Fprintf(w, "  path:        %s\n", strings.Join(path, " → "))
	fmt.Fprintf(w, "  source cost: %s\n", sel.SourceCost.StringFixed(2))
	for _, h := range sel.Hops {
		fmt.Fprintf(w, "  %-12s cost %s  markup %s  duty %s\n", h.Entity, h.Cost.StringFixed(2), h.Markup.StringFixed(2), h.Duty.StringFixed(2))
	}
	fmt.Fprintf(w, "  final cost:  %s (%d candidates)\n", sel.FinalCost.StringFixed(2), sel.Candidates)
	return nil
}
