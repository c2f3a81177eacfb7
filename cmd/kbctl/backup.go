package main

import (
	"errors"

	"paper-kb/config"
	"paper-kb/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Dump the database with pg_dump, upload it to S3 and rotate old backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DBDriver != "postgres" {
			return errors.New("backup unterstützt nur postgres")
		}
		if cfg.S3URL == "" || cfg.S3Key == "" || cfg.S3Secret == "" {
			return errors.New("S3_URL, S3_KEY und S3_SECRET sind für Backups erforderlich")
		}
		logger, err := zap.NewProduction()
		if err != nil {
			return err
		}
		defer logger.Sync()

		client, err := storage.NewS3Client(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		b := storage.NewBackup(cfg, client, logger)
		if b.Bucket() == "" {
			return errors.New("BACKUP_S3_BUCKET oder S3_BUCKET fehlt")
		}
		key, err := b.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), map[string]string{"bucket": b.Bucket(), "key": key})
	},
}
