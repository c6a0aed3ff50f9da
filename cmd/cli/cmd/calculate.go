package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"landed-cost/internal/logging"
)

var (
	outputFormat string
	showDetails  bool
	saveLabel    string
	saveRun      bool
)

// calculateCmd represents the calculate command
var calculateCmd = &cobra.Command{
	Use:   "calculate [model-path]",
	Short: "Calculate landed costs for a model",
	Long: `Load model definitions and run a full landed-cost calculation.

The path can be a single .hcl file or a directory of them; it defaults to
data.model_path from the configuration. Period tables in a sqlite database
are merged over the file definitions.

Examples:
  landed-cost calculate .
  landed-cost calculate --format json ./model
  landed-cost calculate --sqlite costs.db --save --label nightly ./model`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCalculate,
}

func init() {
	rootCmd.AddCommand(calculateCmd)
	calculateCmd.Flags().StringVarP(&outputFormat, "format", "f", "", "output format (cli, json, markdown)")
	calculateCmd.Flags().BoolVarP(&showDetails, "details", "d", true, "show itemized charges")
	calculateCmd.Flags().BoolVar(&saveRun, "save", false, "store the run in the sqlite database")
	calculateCmd.Flags().StringVar(&saveLabel, "label", "", "label for a saved run")
	addInputFlags(calculateCmd)
}

func runCalculate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := openSession(ctx, modelPath(args))
	if err != nil {
		return err
	}
	defer s.Close()
	defer s.FlushMetrics()

	f, opts, err := formatter(outputFormat)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("details") {
		opts.ShowDetails = showDetails
	}

	res, calcErr := s.Engine.Calculate(ctx)
	if res == nil {
		return calcErr
	}
	if err := f.Render(cmd.OutOrStdout(), res, opts); err != nil {
		return err
	}

	if saveRun {
		if s.DB == nil {
			return fmt.Errorf("--save needs a sqlite database (--sqlite or data.sqlite_path)")
		}
		run, err := s.DB.SaveRun(ctx, saveLabel, res)
		if err != nil {
			return err
		}
		logging.Info("run saved", zap.String("run_id", run.ID), zap.String("label", run.Label))
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved run %s\n", run.ID)
	}
	return calcErr
}
