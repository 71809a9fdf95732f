package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/travel-requests/internal/storage/sqlstore"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "apply the embedded storage migrations to the configured sql database",
	}
	migrateRollback bool
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "to rollback the latest version of sql migration")
}

func runMigration(cmd *cobra.Command, _ []string) error {
	driver := cfg.Storage.Driver
	sqlDriver, err := sqlstore.SQLDriverName(driver)
	if err != nil {
		return fmt.Errorf("migrations only apply to sql storage: %w", err)
	}

	db, err := sqlx.Connect(sqlDriver, cfg.Storage.Source)
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	defer db.Close()

	if err := sqlstore.Migrate(cmd.Context(), db.DB, driver, migrateRollback); err != nil {
		return err
	}

	action := "applied"
	if migrateRollback {
		action = "rolled back"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrations %s on %s\n", action, driver)
	return nil
}
