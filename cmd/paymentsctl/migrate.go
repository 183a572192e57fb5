package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/config"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/database"
)

func migrateCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the payment tables in DB_DSN",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if cfg.DB.DSN == "" {
				return fmt.Errorf("DB_DSN is required")
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			db, err := database.Open(cfg.DB.DSN, logger)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	return cmd
}
