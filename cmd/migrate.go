package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wpbridge/internal/store/pg"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations (managed mode only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.StoreConfig().IsManaged() {
				return fmt.Errorf("migrate requires database.postgres_dsn to be configured")
			}
			if err := pg.Migrate(cfg.Database.PostgresDSN); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}
