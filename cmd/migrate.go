package cmd

import (
	"github.com/spf13/cobra"

	database "github.com/FACorreiaa/go-places-chat/app/db"
)

var migrateDownSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres snapshot store migrations",
	Long: `Applies every pending migration of the Postgres snapshot store. With
--down N the last N migrations are reverted instead.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		connURL, err := database.ConnectionURL(&cfg)
		if err != nil {
			return err
		}
		if migrateDownSteps > 0 {
			return database.RollbackMigrations(connURL, migrateDownSteps, logger)
		}
		return database.RunMigrations(connURL, logger)
	},
}

func init() {
	migrateCmd.Flags().IntVar(&migrateDownSteps, "down", 0, "revert this many migrations")
	rootCmd.AddCommand(migrateCmd)
}
