package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liteseed/arloader/internal/pipeline"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate [files...]",
	Short: "Quote the bundle grouping and price without uploading",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWallet(".")
		if err != nil {
			return err
		}

		inputs := make([]pipeline.Input, len(args))
		for i, path := range args {
			inputs[i] = pipeline.Input{Path: expandHome(path)}
		}

		results, err := w.Estimate(context.Background(), inputs, pipelineConfig())
		if err != nil {
			return err
		}

		for _, r := range results {
			if r.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped: %s\n", r.SkipReason)
				continue
			}
			if r.Err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "bundle %d: error: %v\n", r.GroupIndex, r.Err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bundle %d: %d files, %d bytes, %s winston\n", r.GroupIndex, r.NumFiles, r.TotalBytes, r.Price)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(estimateCmd)
}
