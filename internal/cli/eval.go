package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"wiresum/internal/config"
	"wiresum/internal/eval"
	"wiresum/internal/llm"
)

func newEvalCmd() *cobra.Command {
	var (
		configPath string
		goldenPath string
		verbose    bool
		minScore   float64
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score the classification prompt against a golden set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.APIKey() == "" {
				return errors.New("LLM_API_KEY (or GROQ_API_KEY) is required")
			}
			evalCfg, err := eval.LoadConfig(configPath)
			if err != nil {
				return err
			}
			cases, err := eval.LoadGolden(goldenPath)
			if err != nil {
				return err
			}

			runner := eval.Runner{
				Oracle:  llm.NewClient(cfg.APIKey(), cfg.LLMBaseURL, cfg.HTTPTimeout),
				Out:     cmd.OutOrStdout(),
				Verbose: verbose,
			}
			report, err := runner.Run(cmd.Context(), evalCfg, cases)
			if err != nil {
				return err
			}
			if minScore > 0 && report.Accuracy() < minScore {
				return fmt.Errorf("accuracy %.2f below required %.2f", report.Accuracy(), minScore)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "evals/config.yaml", "Eval config (model, user context, interests)")
	cmd.Flags().StringVar(&goldenPath, "golden", "evals/golden.jsonl", "Golden cases, one JSON object per line")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print reasoning for each case")
	cmd.Flags().Float64Var(&minScore, "min-accuracy", 0, "Exit non-zero when accuracy falls below this fraction")
	return cmd
}
