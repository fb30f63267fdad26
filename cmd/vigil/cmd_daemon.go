package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/vigil/internal/daemon"
	"github.com/yairfalse/vigil/internal/emitter"
	"github.com/yairfalse/vigil/types"
)

var (
	daemonInterval    time.Duration
	daemonMetricsAddr string
	daemonOnce        bool
	daemonSelect      selection
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon <manifest>",
	Short: "Re-apply a manifest on an interval",
	Long: `Run Vigil in daemon mode for continuous convergence.

The daemon reloads the manifest and reconciles every entity at each tick.
A failed remote call is never retried inside a run; the next tick starts a
new full run.

Features:
- Prometheus metrics on /metrics
- Health checks on /health, /-/healthy, /-/ready
- Journal retention cleanup and history compaction after each cycle
- Graceful shutdown on SIGTERM/SIGINT`,
	Example: `  vigil daemon manifests/                      # Use interval from config
  vigil daemon manifests/ --interval 1m        # Converge every minute
  vigil daemon manifests/ --metrics-addr :2112 # Custom metrics address
  vigil daemon manifests/ --once               # One cycle, then exit`,
	Args: cobra.ExactArgs(1),
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Reconciliation interval (overrides config)")
	daemonCmd.Flags().StringVar(&daemonMetricsAddr, "metrics-addr", "", "Metrics HTTP server address (overrides config)")
	daemonCmd.Flags().BoolVar(&daemonOnce, "once", false, "Run one cycle and exit")
	addSelectionFlags(daemonCmd, &daemonSelect)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadRuntimeConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if daemonInterval > 0 {
		cfg.Daemon.Interval = daemonInterval
	}
	if daemonMetricsAddr != "" {
		cfg.Daemon.MetricsAddr = daemonMetricsAddr
	}

	f, err := daemonSelect.build()
	if err != nil {
		return err
	}
	manifest := args[0]
	// Fail fast on a broken manifest; later cycles report load errors via /health.
	if _, err := loadSpecs(manifest, cfg, f); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	d, err := daemon.NewDaemon(daemon.Config{
		Interval:      cfg.Daemon.Interval,
		MetricsAddr:   cfg.Daemon.MetricsAddr,
		OneShot:       daemonOnce || cfg.Daemon.OneShot,
		KeepRevisions: cfg.Storage.KeepRevisions,
	}, a.orch, func() ([]types.EntitySpec, error) {
		return loadSpecs(manifest, cfg, f)
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	d.WithJournal(a.journal).WithCompactor(a.history)

	promEmitter, err := emitter.NewPrometheusEmitter()
	if err != nil {
		a.logger.Warn().Err(err).Msg("entity metrics disabled")
	} else {
		d.WithEmitter(promEmitter)
		defer promEmitter.Close()
	}

	a.logger.Info().
		Str("manifest", manifest).
		Str("centreon", cfg.Centreon.URL).
		Dur("interval", cfg.Daemon.Interval).
		Str("metrics_addr", cfg.Daemon.MetricsAddr).
		Msg("vigil daemon starting")

	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}

	a.logger.Info().Int64("cycles", d.CycleCount()).Msg("daemon stopped")
	return nil
}
