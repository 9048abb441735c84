package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the wallet's confirmed winston balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWallet(".")
		if err != nil {
			return err
		}
		balance, err := w.Balance(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), balance)
		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List transaction ids currently in the gateway mempool",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWallet(".")
		if err != nil {
			return err
		}
		ids, err := w.Pending(context.Background())
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(pendingCmd)
}
