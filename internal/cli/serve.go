// serve.go implements the "aiorch serve" HTTP adapter command.
package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/warriorcabo/ai-orchestration-system/internal/obs"
	"github.com/warriorcabo/ai-orchestration-system/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve POST /v1/message over HTTP",
	Long: `Run the JSON HTTP adapter. Endpoints:
  POST /v1/message  {"user_id","message"} -> {"reply"}
  GET  /v1/status   counters, breakers, sessions and recent errors
  GET  /v1/metrics  metric snapshot (with --metrics)
  GET  /health`,
	RunE: runServe,
}

var (
	addrFlag    string
	metricsFlag bool
)

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (default: server.addr from config)")
	serveCmd.Flags().BoolVar(&metricsFlag, "metrics", false, "Install an in-process meter provider and expose /v1/metrics")
}

func runServe(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir()
	if err != nil {
		return err
	}

	// The meter provider must be global before the orchestrator creates
	// its instruments.
	var mp *obs.Provider
	if metricsFlag {
		mp = obs.NewProvider()
		mp.Install()
		defer func() { _ = mp.Shutdown(context.Background()) }()
	}

	a, err := newApp(dir)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if addrFlag != "" {
		addr = addrFlag
	}

	srv, err := server.New(a.orch, server.Options{
		Addr:           addr,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		Logger:         a.logger,
		Metrics:        mp,
		Providers:      a.providers,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "aiorch listening on http://%s\n", srv.Addr())
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "aiorch stopped")
	return nil
}
