package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"wiresum/internal/client"
)

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entry id %q", arg)
	}
	return id, nil
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		all      bool
		hours    int
		limit    int
		interest string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent entries in a flat table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			q := client.EntryQuery{SinceHours: hours, Limit: limit, Interest: interest}
			if !all {
				signal := true
				q.IsSignal = &signal
			}
			entries, err := c.Entries(cmd.Context(), q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := opts.emit(out, entries); done {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No entries.")
				return nil
			}
			return writeEntryTable(out, entries)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include filtered and unclassified entries")
	cmd.Flags().IntVar(&hours, "hours", 48, "Only entries published in the last N hours")
	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "Max results")
	cmd.Flags().StringVarP(&interest, "interest", "i", "", "Filter by interest key")
	return cmd
}

func newDigestCmd(opts *rootOptions) *cobra.Command {
	var (
		all   bool
		hours int
		limit int
		date  string
	)
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Show signal grouped by interest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			groups, err := c.Digest(cmd.Context(), client.DigestQuery{
				LimitPerInterest: limit,
				SinceHours:       hours,
				Date:             date,
				IncludeAll:       all,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := opts.emit(out, groups); done {
				return err
			}
			if len(groups) == 0 {
				fmt.Fprintln(out, "Nothing new.")
				return nil
			}
			for i, g := range groups {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "%s (%d)\n", g.InterestLabel, g.Count)
				for _, e := range g.Entries {
					fmt.Fprintf(out, "  %5d  %s", e.ID, truncate(str(e.Title, "(untitled)"), 80))
					if d := domain(e.URL); d != "" {
						fmt.Fprintf(out, "  [%s]", d)
					}
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include filtered entries")
	cmd.Flags().IntVar(&hours, "hours", 48, "Window in hours when no --date is given")
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Max entries per interest")
	cmd.Flags().StringVar(&date, "date", "", "Show a single day (YYYY-MM-DD)")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one entry with its reasoning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			e, err := c.Entry(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := opts.emit(out, e); done {
				return err
			}
			writeEntryDetail(out, *e)
			return nil
		},
	}
}

func newReadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read ID...",
		Short: "Mark entries as read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				if err := c.MarkRead(cmd.Context(), id); err != nil {
					return fmt.Errorf("entry %d: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %d read\n", id)
			}
			return nil
		},
	}
}

func newReprocessCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess ID",
		Short: "Re-classify one entry now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			e, err := c.Reprocess(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := opts.emit(out, e); done {
				return err
			}
			fmt.Fprintf(out, "Reprocessed entry %d\n", id)
			fmt.Fprintf(out, "  Interest:  %s\n", str(e.Interest, "None"))
			fmt.Fprintf(out, "  Signal:    %t\n", e.IsSignal != nil && *e.IsSignal)
			fmt.Fprintf(out, "  Reasoning: %s\n", str(e.Reasoning, ""))
			return nil
		},
	}
}

func newRequeueCmd(opts *rootOptions) *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Clear classification so the background classifier picks entries up again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			n, err := c.Requeue(cmd.Context(), hours)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d entries for reprocessing\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "Requeue entries published in the last N hours")
	return cmd
}
