package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/admission"
	admissionstorage "mercator-hq/ganymede/pkg/admission/storage"
	analysisstorage "mercator-hq/ganymede/pkg/analysis/storage"
	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
)

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

var runFlags struct {
	metricsAddress string
	dryRun         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Ganymede admission controller",
	Long: `Start the admission controller with the specified configuration.

The controller evaluates requests against budgets and rate limits, scores
them for threats, and runs the async analysis pipeline. When configured,
a Prometheus metrics endpoint is served.

Examples:
  # Start with default config
  ganymede run

  # Start with custom config
  ganymede run --config /etc/ganymede/config.yaml

  # Override the metrics listen address
  ganymede run --metrics 0.0.0.0:9464

  # Validate config without starting
  ganymede run --dry-run`,
	RunE: runController,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.metricsAddress, "metrics", "m", "", "override metrics listen address")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runController(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	if runFlags.metricsAddress != "" {
		cfg.MetricsAddress = runFlags.metricsAddress
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Mercator Ganymede v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	opts := admission.Options{}

	if cfg.Storage.LedgerPath != "" {
		sink, err := admissionstorage.NewSQLiteSink(cfg.Storage.LedgerPath)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("ledger sink: %w", err))
		}
		opts.Sink = sink
		fmt.Printf("✓ Spending ledger: %s\n", cfg.Storage.LedgerPath)
	} else {
		fmt.Println("✓ Spending ledger: in-memory")
	}

	if cfg.Storage.AssessmentPath != "" {
		store, err := analysisstorage.NewSQLiteStore(cfg.Storage.AssessmentPath)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("assessment store: %w", err))
		}
		opts.Store = store
		fmt.Printf("✓ Assessment store: %s\n", cfg.Storage.AssessmentPath)
	}

	controller, err := admission.NewController(cfg, opts)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	ctx := cli.SetupSignalHandler()
	if err := controller.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Printf("✓ Analysis workers started (%d workers, queue %d)\n",
		cfg.Analysis.Workers, cfg.Analysis.QueueCapacity)

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		})

		metricsSrv = &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server exited", "error", err)
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.MetricsAddress)
	}

	fmt.Println("\nPress Ctrl+C to stop")
	<-ctx.Done()

	fmt.Println("\nShutting down gracefully...")
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server shutdown failed", "error", err)
		}
	}
	if err := controller.Stop(); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Stopped")
	return nil
}
