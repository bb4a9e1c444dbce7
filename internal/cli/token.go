package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"wiresum/internal/auth"
)

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [TOKEN]",
		Short: "Generate or hash an API token for WIRESUM_API_TOKEN_HASH",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				generated, err := auth.GenerateToken()
				if err != nil {
					return err
				}
				token = generated
				fmt.Fprintf(out, "WIRESUM_API_TOKEN=%s\n", token)
			}
			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}
			// Single quotes stop .env loaders from expanding the $ separators.
			fmt.Fprintf(out, "WIRESUM_API_TOKEN_HASH='%s'\n", hash)
			return nil
		},
	}
}
