package cmd

import (
	"errors"

	"github.com/BradenHooton/tradeguard/internal/config"
	"github.com/BradenHooton/tradeguard/internal/database"
	"github.com/spf13/cobra"
)

var errNotPostgres = errors.New("migrations apply to the postgres backend only")

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the Postgres schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, func(db *database.DB) error {
			return db.Migrate(cmd.Context())
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, func(db *database.DB) error {
			return db.MigrationStatus(cmd.Context())
		})
	},
}

func withDatabase(cmd *cobra.Command, fn func(db *database.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Backend != config.StorageBackendPostgres {
		return errNotPostgres
	}

	db, err := database.NewConnection(cmd.Context(), &cfg.Database, newLogger())
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(db)
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}
