package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liteseed/arloader/internal/pipeline"
	"github.com/liteseed/arloader/pkg/wallet"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [files...]",
	Short: "Bundle and upload files to Arweave",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logDir, err := resolveLogDir(args)
		if err != nil {
			return err
		}
		w, err := loadWallet(logDir)
		if err != nil {
			return err
		}
		coSigner, err := coSignerFromFlags()
		if err != nil {
			return err
		}

		cfg := pipelineConfig()
		cfg.WithSolana = coSigner

		inputs := make([]pipeline.Input, len(args))
		for i, path := range args {
			inputs[i] = pipeline.Input{Path: expandHome(path)}
		}

		if flagNoBundle {
			return uploadEachAlone(cmd, w, inputs, cfg)
		}

		summary, err := w.Upload(context.Background(), inputs, cfg)
		if err != nil {
			return err
		}
		return reportSummary(cmd, summary)
	},
}

// uploadEachAlone runs the --no-bundle path: every input becomes its
// own raw-file transaction, never an ANS-104 data item packed into a
// bundle, and never subject to the bundle-size intake cap.
func uploadEachAlone(cmd *cobra.Command, w *wallet.Wallet, inputs []pipeline.Input, cfg pipeline.Config) error {
	summary, err := w.UploadRaw(context.Background(), inputs, cfg)
	if err != nil {
		return err
	}
	return reportSummary(cmd, summary)
}

func reportSummary(cmd *cobra.Command, summary *pipeline.Summary) error {
	var firstErr error
	for _, res := range summary.Results {
		switch {
		case res.Skipped:
			fmt.Fprintf(cmd.OutOrStdout(), "skipped: %s\n", res.SkipReason)
		case res.Err != nil:
			fmt.Fprintf(cmd.OutOrStdout(), "bundle %d: error: %v\n", res.GroupIndex, res.Err)
			if firstErr == nil {
				firstErr = res.Err
			}
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "bundle %d: tx %s (%d items)\n", res.GroupIndex, res.TxID, len(res.ItemIDs))
		}
	}
	if summary.Cancelled {
		fmt.Fprintln(cmd.OutOrStdout(), "run cancelled; completed bundles are recorded above")
	}
	return firstErr
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
