package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"landed-cost/adapters/workspace"
	"landed-cost/api"
	"landed-cost/internal/config"
	"landed-cost/internal/logging"
)

const version = "0.1.0"

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve [model-path]",
	Short: "Serve calculations over HTTP",
	Long: `Start the JSON API. The model is re-read on every request.

Endpoints:
  POST /calculate                  run a calculation, optionally saving it
  POST /whatif                     evaluate a scenario against the baseline
  GET  /path?product=&destination= cheapest transfer path
  GET  /runs, /runs/{id}, /runs/{old}/compare/{new}
  GET  /health, /version, /metrics`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	addInputFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := api.NewServer(version, config.Get(), workspace.Options{
		ModelPath:  modelPath(args),
		SQLitePath: inputs.sqlitePath,
		Strict:     inputs.strict,
	})
	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           http.StripPrefix("/api", handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintf(cmd.OutOrStdout(), "🚀 landed-cost server v%s\n", version)
	fmt.Fprintf(cmd.OutOrStdout(), "   API: http://localhost%s/api\n\n", serveAddr)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("shutting down", zap.String("addr", serveAddr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
