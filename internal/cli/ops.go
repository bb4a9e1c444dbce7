package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch new entries from every configured source now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(cmd.ErrOrStderr(), "Syncing (this may take a moment)...")
			res, err := c.Sync(cmd.Context())
			if err != nil {
				return err
			}
			if done, err := opts.emit(out, res); done {
				return err
			}
			fmt.Fprintf(out, "Synced %d entries\n", res.Synced)
			if res.Error != "" {
				fmt.Fprintf(out, "Some sources failed: %s\n", res.Error)
			}
			return nil
		},
	}
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a batch of pending entries now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			n, err := c.Classify(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Classified %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Batch size (default: server's WIRESUM_CLASSIFY_BATCH)")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := opts.emit(out, stats); done {
				return err
			}
			tw := newTable(out)
			fmt.Fprintf(tw, "Total entries\t%d\n", stats.TotalEntries)
			fmt.Fprintf(tw, "Unprocessed\t%d\n", stats.Unprocessed)
			fmt.Fprintf(tw, "Signal\t%d\n", stats.Signal)

			keys := make([]string, 0, len(stats.ByInterest))
			for k := range stats.ByInterest {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				label := k
				if label == "" {
					label = "(none)"
				}
				fmt.Fprintf(tw, "  %s\t%d\n", label, stats.ByInterest[k])
			}
			return tw.Flush()
		},
	}
}
