package main

import (
	"errors"
	"fmt"

	"paper-kb/pipeline"

	"github.com/spf13/cobra"
)

var ingestLimit int

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Run the pipeline over INPUT_DIR or the given PDF files",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer e.logger.Sync()

		sources := args
		if len(sources) == 0 {
			sources, err = pipeline.ScanSources(e.cfg.InputDir, ingestLimit)
			if err != nil {
				return fmt.Errorf("fehler beim Scannen von %s: %w", e.cfg.InputDir, err)
			}
		}

		report, err := e.app.NewCoordinator(cmd.Context()).Run(cmd.Context(), sources)
		if err != nil {
			return err
		}
		e.app.SaveReport(cmd.Context(), report)
		if err := printResult(cmd.OutOrStdout(), report); err != nil {
			return err
		}
		if !report.Succeeded() {
			return errors.New("kein Element wurde importiert")
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 0, "maximum number of PDFs to process (0 = all)")
}
