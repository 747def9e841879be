package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexastudio/creditmeter/bootstrap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the schema migrations for the configured database driver.

SQLite uses the embedded migrations; PostgreSQL uses golang-migrate.
Running it twice is safe.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := bootstrap.Migrate(cfg.Database, cliLogger(cfg)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	fmt.Fprintf(stdout(cmd), "Migrations applied (%s)\n", cfg.Database.Driver)
	return nil
}
