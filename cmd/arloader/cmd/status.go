package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var listStatusCmd = &cobra.Command{
	Use:   "list-status",
	Short: "List every status record in the log directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagLogDir == "" {
			return fmt.Errorf("--log-dir is required")
		}
		w, err := loadWallet(expandHome(flagLogDir))
		if err != nil {
			return err
		}
		records, err := w.ListStatuses()
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"ID", "State", "Files", "Size", "Confirmations"})
		for _, r := range records {
			table.Append([]string{
				r.ID, string(r.State),
				fmt.Sprint(r.NumberOfFiles), fmt.Sprint(r.Size), fmt.Sprint(r.Confirmations),
			})
		}
		table.Render()
		return nil
	},
}

var statusReportCmd = &cobra.Command{
	Use:   "status-report",
	Short: "Summarize status record counts by state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagLogDir == "" {
			return fmt.Errorf("--log-dir is required")
		}
		w, err := loadWallet(expandHome(flagLogDir))
		if err != nil {
			return err
		}
		records, err := w.ListStatuses()
		if err != nil {
			return err
		}

		counts := map[string]int{}
		for _, r := range records {
			counts[string(r.State)]++
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"State", "Count"})
		for state, count := range counts {
			table.Append([]string{state, fmt.Sprint(count)})
		}
		table.Render()
		return nil
	},
}

var getStatusCmd = &cobra.Command{
	Use:   "get-status [id]",
	Short: "Print one status record by transaction id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagLogDir == "" {
			return fmt.Errorf("--log-dir is required")
		}
		w, err := loadWallet(expandHome(flagLogDir))
		if err != nil {
			return err
		}
		rec, err := w.GetStatus(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", rec)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listStatusCmd)
	rootCmd.AddCommand(statusReportCmd)
	rootCmd.AddCommand(getStatusCmd)
}
