package main

import (
	"encoding/json"
	"fmt"
	"io"

	"paper-kb/app"
	"paper-kb/config"
	"paper-kb/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var outputFormat string

var rootCmd = &cobra.Command{
	Use:   "kbctl",
	Short: "Ingest scientific papers into the knowledge base",
	Long: `kbctl runs the paper ingestion pipeline from the command line.

  ingest  PDF -> Markdown -> structured record -> database
  dedup   merge works that share an external identifier
  backup  dump the database to S3 and rotate old backups`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(ingestCmd, dedupCmd, backupCmd)
}

// env bündelt Konfiguration, Logger und die verdrahtete App eines Kommandos.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	app    *app.App
}

func setup(cmd *cobra.Command, validate bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config load error: %w", err)
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	logger, err := app.NewLogger(cfg.LogMode)
	if err != nil {
		return nil, err
	}
	db, err := storage.OpenDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := storage.Migrate(db); err != nil {
		return nil, err
	}
	a, err := app.New(cfg, db, logger, nil, app.DefaultCollaborators(cfg, logger))
	if err != nil {
		return nil, err
	}
	if err := a.EnableArchive(cmd.Context()); err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, app: a}, nil
}

func printResult(w io.Writer, v any) error {
	switch outputFormat {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}
