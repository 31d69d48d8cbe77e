package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/lineage/pkg/admission"
	"mercator-hq/lineage/pkg/admission/webhook"
	"mercator-hq/lineage/pkg/cli"
	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/objectstore"
	"mercator-hq/lineage/pkg/server"
	"mercator-hq/lineage/pkg/telemetry/health"
	"mercator-hq/lineage/pkg/telemetry/logging"
	"mercator-hq/lineage/pkg/telemetry/metrics"
	"mercator-hq/lineage/pkg/telemetry/tracing"
	"mercator-hq/lineage/pkg/tracecontext"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Lineage admission webhook",
	Long: `Start the Lineage admission webhook with the specified configuration.

The webhook answers AdmissionReview requests at the mutate path and patches
the trace-context annotation of every traced object. Admission spans are
buffered in memory and exported to the OTLP collector; an unreachable
collector never blocks admission.

The configured object store is opened only as a readiness dependency: the
readiness endpoint pings it, and admission never reads or writes it. Use
"lineage apply" and "lineage links" to work with the store's contents.

Examples:
  # Start with defaults
  lineage run

  # Start with a config file, reloaded when it changes or on SIGHUP
  lineage run --config /etc/lineage/config.yaml

  # Override listen address
  lineage run --listen 0.0.0.0:9443

  # Validate config without starting the server
  lineage run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Webhook.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	} else if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.NewFromConfig(&cfg.Telemetry.Logging, os.Stdout)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	defer logger.Shutdown()
	log := logger.Slog()

	stage, err := tracecontext.ParseStage(cfg.Admission.Stage)
	if err != nil {
		return cli.NewConfigError("admission.stage", err.Error())
	}
	kinds, err := admission.ParseKinds(cfg.Admission.TracedKinds)
	if err != nil {
		return cli.NewConfigError("admission.traced_kinds", err.Error())
	}

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	printBanner(cmd, cfg, stage)

	exp, err := tracing.InitializeExporter(cfg.Telemetry.Tracing.ServiceName,
		tracing.WithTracingConfig(&cfg.Telemetry.Tracing),
		tracing.WithExporterConfig(&cfg.Exporter),
		tracing.WithServiceVersion(Version),
		tracing.WithLogger(log),
	)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize span exporter: %w", err))
	}
	defer func() {
		if err := exp.Shutdown(context.Background()); err != nil {
			log.Warn("span exporter shutdown failed", "error", err)
		}
	}()
	if exp.Exporting() {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Exporting spans to %s\n", cfg.Exporter.Endpoint)
	}

	var (
		recorder       webhook.Recorder
		observer       objectstore.Observer
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
		collector.RegisterExporter(exp.Stats)
		recorder = collector
		observer = collector
		metricsHandler = collector.Handler()
	}

	// Readiness dependency only; apply and links share this store.
	store, err := objectstore.Open(&cfg.Store, objectstore.Options{
		Stage:    stage,
		Kinds:    kinds,
		Logger:   log,
		Observer: observer,
	})
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open object store: %w", err))
	}
	defer store.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Object store opened (%s)\n", cfg.Store.Backend)

	wh, err := webhook.NewFromConfig(&cfg.Admission, log, recorder)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	var checker *health.Checker
	if cfg.Telemetry.Health.Enabled {
		checker = health.New(cfg.Telemetry.Health.CheckTimeout)
		checker.RegisterCheck("config", health.ConfigCheck())
		checker.RegisterCheck("store", health.PingCheck(store))
		if exp.Exporting() {
			checker.RegisterInformational("collector", health.CollectorCheck(exp.Stats))
		}
		log.Debug("health checks registered", "checks", checker.ListChecks())
	}

	srv, err := server.NewServer(&cfg.Webhook, server.Options{
		Webhook:      wh,
		Exporter:     exp,
		Health:       checker,
		HealthConfig: &cfg.Telemetry.Health,
		Metrics:      metricsHandler,
		MetricsPath:  cfg.Telemetry.Metrics.Path,
		Version:      Version,
		Commit:       GitCommit,
		BuildTime:    BuildDate,
		Logger:       log,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	ctx := cli.SetupSignalHandler()

	// Reloads change the log level and the admission settings. Listener,
	// exporter and store settings need a restart.
	config.Subscribe(func(next *config.Config) {
		if err := logger.SetLevel(next.Telemetry.Logging.Level); err != nil {
			log.Warn("ignoring reloaded log level", "error", err)
		}
		if err := wh.Update(&next.Admission); err != nil {
			log.Warn("ignoring reloaded admission settings", "error", err)
		}
	})
	if cfgFile != "" {
		cli.NotifyReload(ctx, func() {
			if err := config.ReloadConfig(cfgFile); err != nil {
				log.Error("configuration reload failed, keeping current configuration", "error", err)
				return
			}
			log.Info("configuration reloaded", "trigger", "SIGHUP")
		})

		watcher, err := config.NewWatcher(cfgFile, 0, log)
		if err != nil {
			log.Warn("configuration reload disabled", "error", err)
		} else {
			defer watcher.Stop()
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					log.Error("configuration watcher stopped", "error", err)
				}
			}()
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Webhook listening on %s%s\n", cfg.Webhook.ListenAddress, cfg.Webhook.MutatePath)
	fmt.Fprintln(cmd.OutOrStdout(), "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		log.Error("server failed", "error", err)
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Server stopped")
	return nil
}

func printBanner(cmd *cobra.Command, cfg *config.Config, stage tracecontext.Stage) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Lineage v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	}
	fmt.Fprintln(out, "✓ Configuration loaded")
	fmt.Fprintf(out, "  annotation: %s\n", tracecontext.AnnotationKey(stage))
	if len(cfg.Admission.TracedKinds) == 0 {
		fmt.Fprintln(out, "  traced kinds: all")
	} else {
		fmt.Fprintf(out, "  traced kinds: %d\n", len(cfg.Admission.TracedKinds))
	}
}
