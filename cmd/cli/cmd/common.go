package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"landed-cost/adapters/workspace"
	"landed-cost/core/output"
	"landed-cost/internal/config"
)

// inputFlags are shared by every command that builds an engine
type inputFlags struct {
	sqlitePath string
	strict     bool
}

var inputs inputFlags

func modelPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return config.Get().Data.ModelPath
}

func sqlitePath(cfg *config.Config) string {
	if inputs.sqlitePath != "" {
		return inputs.sqlitePath
	}
	return cfg.Data.SQLitePath
}

func openSession(ctx context.Context, path string) (*workspace.Workspace, error) {
	return workspace.Open(ctx, config.Get(), workspace.Options{
		ModelPath:  path,
		SQLitePath: inputs.sqlitePath,
		Strict:     inputs.strict,
	})
}

// formatter resolves the output format, falling back to the configured one
func formatter(name string) (output.Formatter, output.Options, error) {
	cfg := config.Get()
	if name == "" {
		name = cfg.Output.DefaultFormat
	}
	f, err := output.NewRegistry().Get(name)
	return f, output.Options{ShowDetails: cfg.Output.ShowDetails}, err
}

func addInputFlags(c *cobra.Command) {
	c.Flags().StringVar(&inputs.sqlitePath, "sqlite", "", "sqlite database with period tables (overrides config)")
	c.Flags().BoolVar(&inputs.strict, "strict", false, "fail when the calculation produces warnings")
}
