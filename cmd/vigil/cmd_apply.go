package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/vigil/executor"
	"github.com/yairfalse/vigil/orchestrator"
	"github.com/yairfalse/vigil/storage"
)

var (
	applyDryRun bool
	applyOutput string
	applySelect selection
)

var applyCmd = &cobra.Command{
	Use:   "apply <manifest>",
	Short: "Converge Centreon to a manifest once",
	Long: `Reconcile every entity in a manifest file or directory against Centreon.

Entities are processed one after the other. A failed entity does not stop
the run; the command exits non-zero when any entity failed or was denied
by policy. Run again until it reports no changes.`,
	Example: `  vigil apply hosts.yaml                       # Converge one manifest
  vigil apply manifests/ --dry-run             # Show the calls without making them
  vigil apply manifests/ -l env=prod           # Only entities labelled env=prod
  vigil apply manifests/ --exclude-kind command`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Journal calls as skipped instead of sending them")
	applyCmd.Flags().StringVarP(&applyOutput, "output", "o", "text", "Output format: text or json")
	addSelectionFlags(applyCmd, &applySelect)
}

func addSelectionFlags(cmd *cobra.Command, s *selection) {
	cmd.Flags().StringVarP(&s.selector, "selector", "l", "", "Only entities with these labels (k=v,k2=v2)")
	cmd.Flags().StringVar(&s.exclude, "exclude", "", "Skip entities with any of these labels (k=v,k2=v2)")
	cmd.Flags().StringSliceVar(&s.excludeKinds, "exclude-kind", nil, "Skip entity kinds (host, service, servicetemplate, command)")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if applyOutput != "text" && applyOutput != "json" {
		return fmt.Errorf("unknown output format %q", applyOutput)
	}

	cfg, err := loadRuntimeConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	f, err := applySelect.build()
	if err != nil {
		return err
	}
	specs, err := loadSpecs(args[0], cfg, f)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr(), applyDryRun)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	result, err := a.orch.RunCycle(ctx, specs)
	if err != nil {
		return fmt.Errorf("reconciliation interrupted: %w", err)
	}

	out := cmd.OutOrStdout()
	if applyOutput == "json" {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		displayCycleResult(out, result, a.engine.Counts())
	}

	if !result.Success() {
		return fmt.Errorf("%d failed, %d denied", result.Failed, result.Denied)
	}
	return nil
}

func displayCycleResult(w io.Writer, result *orchestrator.CycleResult, counts executor.Counts) {
	if result.DryRun {
		fmt.Fprintln(w, "🔍 DRY-RUN - no changes were sent")
	}

	for _, e := range result.Entities {
		fmt.Fprintf(w, "%s %s %s", statusIcon(e.Status), e.Kind.Label(), e.Identity)
		if e.Status == storage.StatusFailed || e.Status == storage.StatusDenied {
			fmt.Fprintf(w, ": %s", e.Error)
		}
		fmt.Fprintln(w)
		for _, entry := range e.Log {
			fmt.Fprintf(w, "    - %s\n", entry)
		}
	}

	fmt.Fprintf(w, "\nRun %s: %d changed, %d unchanged, %d failed, %d denied in %s\n",
		result.RunID, result.Changed, result.Unchanged, result.Failed, result.Denied, result.Duration.Round(time.Millisecond))
	if counts.Total() > 0 {
		fmt.Fprintf(w, "Calls: %d applied, %d failed, %d skipped\n", counts.Applied, counts.Failed, counts.Skipped)
	}
}

func statusIcon(status storage.RunStatus) string {
	switch status {
	case storage.StatusChanged:
		return "✏️ "
	case storage.StatusUnchanged:
		return "✅"
	case storage.StatusDenied:
		return "🛑"
	default:
		return "❌"
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
