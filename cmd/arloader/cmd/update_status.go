package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var updateStatusCmd = &cobra.Command{
	Use:   "update-status",
	Short: "Reconcile status records against the gateway",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagLogDir == "" {
			return fmt.Errorf("--log-dir is required")
		}
		w, err := loadWallet(expandHome(flagLogDir))
		if err != nil {
			return err
		}
		results, err := w.ReconcileStatuses(context.Background())
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: error: %v\n", r.ID, r.Err)
				continue
			}
			if r.Changed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", r.ID, r.Before, r.After)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateStatusCmd)
}
