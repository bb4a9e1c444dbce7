package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change runtime settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			s, err := c.Settings(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := opts.emit(out, s); done {
				return err
			}
			processAfter := s.ProcessAfter
			if processAfter == "" {
				processAfter = "(all entries)"
			}
			prompt := s.ClassificationPrompt
			if prompt == "" {
				prompt = "(built-in)"
			}
			tw := newTable(out)
			fmt.Fprintf(tw, "model\t%s\n", s.Model)
			fmt.Fprintf(tw, "sync_interval\t%d\n", s.SyncInterval)
			fmt.Fprintf(tw, "process_after\t%s\n", processAfter)
			fmt.Fprintf(tw, "user_context\t%s\n", truncate(s.UserContext, 100))
			fmt.Fprintf(tw, "classification_prompt\t%s\n", truncate(prompt, 100))
			return tw.Flush()
		},
	}

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change a setting (classification_prompt, model, sync_interval, process_after)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			stored, err := c.SetSetting(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], stored)
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}
