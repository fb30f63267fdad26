package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/vigil/wal"
)

var (
	journalSince  time.Duration
	journalTarget string
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the operation journal",
	Long: `The journal records every mutating call sent to Centreon: an "issued"
entry before the call and an "applied" or "failed" entry after it. Dry runs
record "skipped" entries.`,
}

var journalStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show journal size and entry counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadRuntimeConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		printJournalStats(cmd.OutOrStdout(), wal.GetStatsFromDir(cfg.Storage.JournalDir(), journalConfig(cfg)))
		return nil
	},
}

var journalReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Print journal entries",
	Example: `  vigil journal replay --since 24h
  vigil journal replay --target web01`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadRuntimeConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		var since time.Time
		if journalSince > 0 {
			since = time.Now().Add(-journalSince)
		}
		return replayJournal(cmd.OutOrStdout(), cfg.Storage.JournalDir(), since, journalTarget)
	},
}

var journalCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove journal files past the retention period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadRuntimeConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		stats, err := wal.CleanupWithStats(cfg.Storage.JournalDir(), journalConfig(cfg))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d files (%d bytes)\n", stats.FilesRemoved, stats.BytesFreed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalStatsCmd, journalReplayCmd, journalCleanupCmd)

	journalReplayCmd.Flags().DurationVar(&journalSince, "since", 0, "Only entries newer than this (e.g. 24h)")
	journalReplayCmd.Flags().StringVar(&journalTarget, "target", "", "Only entries for this target")
}

func printJournalStats(w io.Writer, stats wal.Stats) {
	fmt.Fprintf(w, "Files:     %d (%d bytes)\n", stats.TotalFiles, stats.TotalSizeBytes)
	if stats.TotalFiles == 0 {
		return
	}
	fmt.Fprintf(w, "Range:     %s .. %s\n", stats.OldestFile.Format(time.RFC3339), stats.NewestFile.Format(time.RFC3339))
	fmt.Fprintf(w, "Sequences: %d..%d (%d entries)\n", stats.FirstSequence, stats.LastSequence, stats.SequenceCount)
	for _, t := range []wal.EntryType{wal.EntryIssued, wal.EntryApplied, wal.EntryFailed, wal.EntrySkipped} {
		fmt.Fprintf(w, "  %-8s %d\n", t, stats.EntriesByType[t])
	}
}

func replayJournal(w io.Writer, dir string, since time.Time, target string) error {
	return wal.Replay(dir, since, func(e *wal.Entry) error {
		if target != "" && e.Target != target {
			return nil
		}
		fmt.Fprintf(w, "%s #%d %-7s %s %s", e.Timestamp.Format(time.RFC3339), e.Sequence, e.Type, e.Target, string(e.Data))
		if e.Error != "" {
			fmt.Fprintf(w, " error=%q", e.Error)
		}
		fmt.Fprintln(w)
		return nil
	})
}
