package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liteseed/arloader/internal/pipeline"
)

var reuploadCmd = &cobra.Command{
	Use:   "reupload",
	Short: "Reupload files whose status is stale or unconfirmed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagLogDir == "" {
			return fmt.Errorf("--log-dir is required")
		}
		w, err := loadWallet(expandHome(flagLogDir))
		if err != nil {
			return err
		}

		sel, err := w.SelectReupload(flagFilePaths, parseStatuses(flagStatuses), flagMaxConfirms)
		if err != nil {
			return err
		}
		if len(sel.Paths) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing selected for reupload")
			return nil
		}

		coSigner, err := coSignerFromFlags()
		if err != nil {
			return err
		}
		cfg := pipelineConfig()
		cfg.WithSolana = coSigner

		inputs := make([]pipeline.Input, len(sel.Paths))
		for i, path := range sel.Paths {
			inputs[i] = pipeline.Input{Path: expandHome(path)}
		}

		summary, err := w.Upload(context.Background(), inputs, cfg)
		if err != nil {
			return err
		}
		return reportSummary(cmd, summary)
	},
}

func init() {
	rootCmd.AddCommand(reuploadCmd)
}
