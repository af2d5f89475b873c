package cli

import (
	"fmt"

	"nni-keeper/internal/db"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the model tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			if err := db.InitDB(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", cfg.Database.Driver)
			return nil
		},
	}
}
