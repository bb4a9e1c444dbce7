package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newInterestsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interests",
		Short: "Manage the interest taxonomy",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List interests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			interests, err := c.Interests(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := opts.emit(out, interests); done {
				return err
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "KEY\tLABEL\tDESCRIPTION")
			for _, in := range interests {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", in.Key, in.Label, truncate(str(in.Description, ""), 60))
			}
			return tw.Flush()
		},
	}

	add := &cobra.Command{
		Use:   "add KEY LABEL [DESCRIPTION]",
		Short: "Add an interest",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var desc *string
			if len(args) == 3 && args[2] != "" {
				desc = &args[2]
			}
			in, err := c.CreateInterest(cmd.Context(), args[0], args[1], desc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created interest: %s\n", in.Key)
			return nil
		},
	}

	var label, desc string
	edit := &cobra.Command{
		Use:   "edit KEY",
		Short: "Change an interest's label or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var labelPtr, descPtr *string
			if cmd.Flags().Changed("label") {
				labelPtr = &label
			}
			if cmd.Flags().Changed("desc") {
				descPtr = &desc
			}
			if labelPtr == nil && descPtr == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to update. Use --label or --desc.")
				return nil
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			if _, err := c.UpdateInterest(cmd.Context(), args[0], labelPtr, descPtr); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated interest: %s\n", args[0])
			return nil
		},
	}
	edit.Flags().StringVarP(&label, "label", "l", "", "New label")
	edit.Flags().StringVarP(&desc, "desc", "d", "", "New description")

	var yes bool
	del := &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete an interest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Delete interest %q? [y/N]: ", args[0])
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.DeleteInterest(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted interest: %s\n", args[0])
			return nil
		},
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	cmd.AddCommand(list, add, edit, del)
	return cmd
}
