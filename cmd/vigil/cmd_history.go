package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/vigil/storage"
	"github.com/yairfalse/vigil/types"
)

var (
	historyLimit  int
	historyRunID  string
	historyOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history [kind identity]",
	Short: "Show recorded reconciliation runs",
	Long: `Show what past runs did. History is a local record of outcomes; it is
never used in place of reading Centreon.

Without arguments, lists every entity seen with its last status.
With a kind and identity, lists that entity's runs, newest first.
With --run, lists every entity result of one run.`,
	Example: `  vigil history
  vigil history host web01 --limit 5
  vigil history service web01/Ping
  vigil history --run 1f0c6c1e-...`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected no arguments or <kind> <identity>")
		}
		return nil
	},
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to show for one entity")
	historyCmd.Flags().StringVar(&historyRunID, "run", "", "Show the results of one run")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "text", "Output format: text or json")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadRuntimeConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := storage.NewMVCCStorage(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer func() { _ = store.Close() }()

	return showHistory(cmd.OutOrStdout(), store, args, historyRunID, historyLimit, historyOutput == "json")
}

func showHistory(w io.Writer, reader storage.HistoryReader, args []string, runID string, limit int, asJSON bool) error {
	switch {
	case runID != "":
		records, err := reader.RunRecords(runID)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(w, records)
		}
		return printRecords(w, records)

	case len(args) == 2:
		kind := types.Kind(args[0])
		if !kind.Valid() {
			return fmt.Errorf("unknown kind %q", args[0])
		}
		records, err := reader.History(string(kind), args[1], limit)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(w, records)
		}
		return printRecords(w, records)

	default:
		entities, err := reader.ListEntities()
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(w, entities)
		}
		return printEntities(w, entities)
	}
}

func printEntities(w io.Writer, entities []*storage.EntityState) error {
	if len(entities) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tIDENTITY\tLAST STATUS\tFAILURES\tLAST RUN")
	for _, e := range entities {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.Kind, e.Identity, e.LastStatus, e.ConsecutiveFailures, e.LastRunID)
	}
	return tw.Flush()
}

func printRecords(w io.Writer, records []storage.RunRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REV\tSTARTED\tKIND\tIDENTITY\tSTATUS\tCHANGES\tDETAIL")
	for _, r := range records {
		detail := r.Error
		if r.DryRun {
			detail = "dry-run " + detail
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.Revision, r.StartedAt.Format(time.RFC3339), r.Kind, r.Identity, r.Status, len(r.Log), detail)
	}
	return tw.Flush()
}
