package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wpbridge/internal/store/pg"
)

func sitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "Inspect stored site connections",
	}
	cmd.AddCommand(sitesListCmd())
	return cmd
}

func sitesListCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List connections for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.StoreConfig().IsManaged() {
				return fmt.Errorf("sites list requires database.postgres_dsn to be configured")
			}

			db, err := pg.OpenDB(cfg.Database.PostgresDSN)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer db.Close()

			conns, err := pg.NewConnectionStore(db).List(cmd.Context(), account)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SITE\tWRITE\tUPDATED\tLAST USED")
			for _, c := range conns {
				lastUsed := "-"
				if c.LastUsedAt != nil {
					lastUsed = c.LastUsedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\n",
					c.SiteURL, c.WriteMode, c.UpdatedAt.Format("2006-01-02 15:04"), lastUsed)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account ID")
	cmd.MarkFlagRequired("account")
	return cmd
}
