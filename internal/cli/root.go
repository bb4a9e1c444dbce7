// Package cli implements the wiresum command line: the server process and
// a terminal client for its REST API.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"wiresum/internal/client"
	"wiresum/internal/config"
)

type rootOptions struct {
	server string
	token  string
	format string
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "wiresum",
		Short:         "LLM-curated feed digest",
		Long:          "wiresum pulls feed entries, classifies them against your interests and serves the signal over a small REST API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", "", "Server URL (default: $WIRESUM_SERVER_URL or http://localhost:8000)")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "API token (default: $WIRESUM_API_TOKEN)")
	root.PersistentFlags().StringVarP(&opts.format, "format", "f", "text", "Output format: text or json")

	root.AddCommand(
		newServeCmd(),
		newListCmd(opts),
		newDigestCmd(opts),
		newShowCmd(opts),
		newReadCmd(opts),
		newReprocessCmd(opts),
		newRequeueCmd(opts),
		newSyncCmd(opts),
		newClassifyCmd(opts),
		newStatsCmd(opts),
		newConfigCmd(opts),
		newInterestsCmd(opts),
		newEvalCmd(),
		newHashTokenCmd(),
	)
	return root
}

// client resolves the server URL and token, falling back to process config
// only for values not given as flags.
func (o *rootOptions) client() (*client.Client, error) {
	server, token := o.server, o.token
	if server == "" || token == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if server == "" {
			server = cfg.ServerURL
		}
		if token == "" {
			token = cfg.APIToken
		}
	}
	return client.New(server, token), nil
}

// emit writes v as JSON when --format=json and reports whether it did.
func (o *rootOptions) emit(w io.Writer, v any) (bool, error) {
	switch o.format {
	case "json":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, err
		}
		_, err = fmt.Fprintln(w, string(b))
		return true, err
	case "text", "":
		return false, nil
	default:
		return true, fmt.Errorf("unknown format %q (use text or json)", o.format)
	}
}
