package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/horde/internal/gateway"
	"github.com/wesleyorama2/horde/internal/metrics"
	"github.com/wesleyorama2/horde/internal/registry"
	"github.com/wesleyorama2/horde/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway as an HTTP service",
		Long: `Load the route registry and serve the mediation gateway:

  POST /mcp/request   execute one action request
  GET  /routes        route registry, credentials redacted
  GET  /health        liveness and route count
  GET  /metrics       Prometheus exposition

Example:
  horde serve --routes routes.yaml --addr :8090`,
		RunE: runServe,
	}

	cmd.Flags().StringP("routes", "r", "", "Route file (YAML or JSON)")
	cmd.Flags().String("addr", ":8090", "Listen address")
	cmd.Flags().Duration("shutdown-timeout", 10*time.Second, "How long to wait for in-flight requests on shutdown")
	_ = cmd.MarkFlagRequired("routes")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	routesPath, _ := cmd.Flags().GetString("routes")
	addr, _ := cmd.Flags().GetString("addr")
	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")

	logger, err := commandLogger(cmd)
	if err != nil {
		return err
	}

	reg, err := registry.Load(routesPath)
	if err != nil {
		return err
	}
	logger.Info().Strs("routes", reg.Names()).Msg("route registry loaded")

	collector := metrics.NewCollector()
	gw := gateway.New(reg, gateway.WithLogger(logger), gateway.WithCollector(collector))
	srv := server.New(gw, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
