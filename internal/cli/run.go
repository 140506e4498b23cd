package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/horde/internal/config"
	"github.com/wesleyorama2/horde/internal/executor"
	"github.com/wesleyorama2/horde/internal/gateway"
	"github.com/wesleyorama2/horde/internal/metrics"
	"github.com/wesleyorama2/horde/internal/oracle"
	"github.com/wesleyorama2/horde/internal/orchestrator"
	"github.com/wesleyorama2/horde/internal/output"
	"github.com/wesleyorama2/horde/internal/registry"
	"github.com/wesleyorama2/horde/internal/session"
)

// errIncomplete is returned with --strict when some session did not complete.
var errIncomplete = errors.New("not every session completed its goal")

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a population of agent sessions",
		Long: `Start sessions as described by a run file and print the aggregated report.

Sessions talk to the gateway in-process (--routes) or to a gateway service
(gateway.url in the run file, or --gateway).

Examples:
  horde run --config run.yaml --routes routes.yaml
  horde run --config run.yaml --routes routes.yaml --script journey.yaml
  horde run --config run.yaml --gateway http://localhost:8090 --json --output report.json`,
		RunE: runRun,
	}

	cmd.Flags().StringP("config", "c", "", "Run file (YAML or JSON)")
	cmd.Flags().StringP("routes", "r", "", "Route file for the in-process gateway")
	cmd.Flags().String("gateway", "", "Gateway service URL (overrides gateway.url)")
	cmd.Flags().String("script", "", "Script file replacing the configured oracle")
	cmd.Flags().String("format", "text", "Report format (text, json or yaml)")
	cmd.Flags().Bool("json", false, "Shorthand for --format json")
	cmd.Flags().StringP("output", "o", "", "Write the report to a file; the format follows the extension")
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	cmd.Flags().Duration("progress", 5*time.Second, "Interval between progress lines (0 disables)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	cmd.Flags().Bool("strict", false, "Exit non-zero unless every session completes")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	routesPath, _ := cmd.Flags().GetString("routes")
	gatewayURL, _ := cmd.Flags().GetString("gateway")
	scriptPath, _ := cmd.Flags().GetString("script")
	formatFlag, _ := cmd.Flags().GetString("format")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	noColor, _ := cmd.Flags().GetBool("no-color")
	progressEvery, _ := cmd.Flags().GetDuration("progress")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	strict, _ := cmd.Flags().GetBool("strict")

	logger, err := commandLogger(cmd)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	if jsonOutput {
		format = output.FormatJSON
	}

	var overrides []config.Override
	if gatewayURL != "" {
		overrides = append(overrides, config.WithGatewayURL(gatewayURL))
	}
	if scriptPath != "" {
		steps, err := config.LoadScript(scriptPath)
		if err != nil {
			return err
		}
		overrides = append(overrides, config.WithScript(steps))
	}

	runCfg, err := config.LoadRun(configPath, overrides...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var collector *metrics.Collector
	if metricsAddr != "" {
		collector = metrics.NewCollector()
	}

	mediator, routes, err := buildMediator(ctx, runCfg, routesPath, logger, collector)
	if err != nil {
		return err
	}

	o, err := oracle.FromConfig(&runCfg.Oracle, logger)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.ConfigFrom(runCfg), o, executor.New(runCfg.Extract), mediator,
		orchestrator.WithRoutes(routes),
		orchestrator.WithLogger(logger),
		orchestrator.WithCollector(collector),
	)
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	console := output.NewConsole(stdout, noColor)
	interactive := format == output.FormatText || outputPath != ""
	if interactive {
		console.PrintHeader(runCfg.Name, runCfg.Sessions, runCfg.Concurrency, runCfg.Duration.GetDuration(0))
	}

	g, gctx := errgroup.WithContext(ctx)
	runDone := make(chan struct{})

	if metricsAddr != "" {
		serveMetrics(gctx, g, runDone, metricsAddr, collector, logger)
	}
	if interactive && progressEvery > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(progressEvery)
			defer ticker.Stop()
			for {
				select {
				case <-runDone:
					return nil
				case <-ticker.C:
					console.PrintProgress(orch.Report())
				}
			}
		})
	}

	var report *orchestrator.Report
	g.Go(func() error {
		defer close(runDone)
		var err error
		report, err = orch.Run(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := writeReport(cmd, report, format, outputPath, noColor); err != nil {
		return err
	}

	if strict && report.States[session.Completed.String()] < report.Started {
		return errIncomplete
	}
	return nil
}

// buildMediator selects the remote gateway when a URL is configured and the
// in-process gateway otherwise, and returns the route catalogue for the oracle.
func buildMediator(ctx context.Context, runCfg *config.RunConfig, routesPath string, logger zerolog.Logger, collector *metrics.Collector) (gateway.Mediator, []oracle.Route, error) {
	if runCfg.Gateway.URL != "" {
		client := gateway.NewRemoteClient(runCfg.Gateway.URL, runCfg.Gateway.Timeout.GetDuration(config.DefaultGatewayTimeout))

		infoCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		infos, err := client.Routes(infoCtx)
		if err != nil {
			logger.Warn().Err(err).Str("gateway", runCfg.Gateway.URL).Msg("route catalogue unavailable; the oracle sees no routes")
		}
		return client, orchestrator.Catalogue(infos), nil
	}

	if routesPath == "" {
		return nil, nil, fmt.Errorf("--routes is required when no gateway URL is configured")
	}
	reg, err := registry.Load(routesPath)
	if err != nil {
		return nil, nil, err
	}
	gw := gateway.New(reg, gateway.WithLogger(logger), gateway.WithCollector(collector))
	return gw, orchestrator.RegistryCatalogue(reg), nil
}

// serveMetrics exposes the collector until the run is over.
func serveMetrics(ctx context.Context, g *errgroup.Group, runDone <-chan struct{}, addr string, collector *metrics.Collector, logger zerolog.Logger) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(collector.Handler()))

	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-runDone:
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
}

// writeReport prints the report to stdout, or to outputPath with the format
// taken from its extension. A text summary is still printed to stdout when
// writing a file.
func writeReport(cmd *cobra.Command, report *orchestrator.Report, format output.Format, outputPath string, noColor bool) error {
	stdout := cmd.OutOrStdout()
	if outputPath == "" {
		return output.WriteReport(stdout, report, format, noColor)
	}

	switch strings.ToLower(filepath.Ext(outputPath)) {
	case ".json":
		format = output.FormatJSON
	case ".yaml", ".yml":
		format = output.FormatYAML
	}

	var buf bytes.Buffer
	if err := output.WriteReport(&buf, report, format, true); err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	output.NewConsole(stdout, noColor).PrintReport(report)
	fmt.Fprintf(stdout, "Report written to %s\n", outputPath)
	return nil
}
