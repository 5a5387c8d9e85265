package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"postfetch/internal/retention"
	"postfetch/internal/store"
)

var flagMaxAge time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired files from the downloads directory",
	Args:  cobra.NoArgs,
	RunE:  sweepRun,
}

func init() {
	sweepCmd.Flags().DurationVar(&flagMaxAge, "max-age", 0, "Delete files older than this (default retention.max_age)")
}

func sweepRun(cmd *cobra.Command, args []string) error {
	dir, err := cfg.ExpandDownloadsDir()
	if err != nil {
		return err
	}
	st, err := store.New(dir)
	if err != nil {
		return err
	}

	maxAge := cfg.Retention.MaxAge.Duration
	if flagMaxAge > 0 {
		maxAge = flagMaxAge
	}

	deleted, err := retention.New(st, maxAge, retention.WithLogger(logger)).Sweep(cmd.Context())
	if err != nil {
		return fmt.Errorf("sweeping %s: %w", dir, err)
	}

	stats, err := st.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d file(s) older than %s from %s\n", deleted, maxAge, dir)
	fmt.Printf("Remaining: %d file(s), %s\n", stats.Files, humanize.Bytes(uint64(stats.TotalBytes)))
	return nil
}
