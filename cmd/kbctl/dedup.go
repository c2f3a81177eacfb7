package main

import (
	"github.com/spf13/cobra"
)

var dedupDryRun bool

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Merge works that share an external identifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer e.logger.Sync()

		report, err := e.app.Dedup.Run(cmd.Context(), dedupDryRun)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), report)
	},
}

func init() {
	dedupCmd.Flags().BoolVar(&dedupDryRun, "dry-run", false, "report what would be merged without changing data")
}
